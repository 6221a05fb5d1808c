package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

// ConnectionView is the externally visible state of a tenant connection.
// It never carries credentials.
type ConnectionView struct {
	Connected        bool                    `json:"connected"`
	Status           domain.ConnectionStatus `json:"status,omitempty"`
	RemoteOrgID      string                  `json:"remoteOrgId,omitempty"`
	RemoteOrgName    string                  `json:"remoteOrgName,omitempty"`
	LastSyncAt       *time.Time              `json:"lastSyncAt,omitempty"`
	LastTestedAt     *time.Time              `json:"lastTestedAt,omitempty"`
	LastErrorAt      *time.Time              `json:"lastErrorAt,omitempty"`
	LastErrorMessage string                  `json:"lastErrorMessage,omitempty"`
}

// TestReport is the result of an on-demand connection test.
type TestReport struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Connection ConnectionView `json:"connection"`
}

// SyncReport counts the records a sync wrote to the cache.
type SyncReport struct {
	People int `json:"people"`
	Songs  int `json:"songs"`
	Teams  int `json:"teams"`
}

// syncPageSize is the per_page requested for bulk reads during a sync.
const syncPageSize = "100"

// ConnectionService orchestrates the tenant connection lifecycle: connect,
// disconnect, status, test and sync.
type ConnectionService struct {
	resolver  *Resolver
	repo      domain.ConnectionRepository
	vault     domain.CredentialVault
	factory   domain.ClientFactory
	validator domain.TransitionValidator
	scheduler domain.SyncScheduler
	cache     domain.RecordCache
	logger    *slog.Logger
	now       domain.Clock
}

// ConnectionDeps groups the adapters a ConnectionService needs.
type ConnectionDeps struct {
	Repo      domain.ConnectionRepository
	Vault     domain.CredentialVault
	Factory   domain.ClientFactory
	Validator domain.TransitionValidator
	Scheduler domain.SyncScheduler
	Cache     domain.RecordCache
	Logger    *slog.Logger
}

// NewConnectionService creates a service sharing resolver's view of storage.
func NewConnectionService(resolver *Resolver, deps ConnectionDeps) *ConnectionService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionService{
		resolver:  resolver,
		repo:      deps.Repo,
		vault:     deps.Vault,
		factory:   deps.Factory,
		validator: deps.Validator,
		scheduler: deps.Scheduler,
		cache:     deps.Cache,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Connect verifies a credential pair against the upstream, stores it
// encrypted as an ACTIVE connection and schedules an initial sync.
func (s *ConnectionService) Connect(ctx context.Context, tc domain.TenantContext, clientID, clientSecret string) (ConnectionView, error) {
	if err := requireRole(tc, domain.RoleAdmin); err != nil {
		return ConnectionView{}, err
	}

	var missing []string
	if clientID == "" {
		missing = append(missing, "clientId")
	}
	if clientSecret == "" {
		missing = append(missing, "clientSecret")
	}
	if len(missing) > 0 {
		return ConnectionView{}, domain.NewInvalidParametersError("", missing...)
	}

	upstream, err := s.factory(domain.Credentials{ClientID: clientID, ClientSecret: clientSecret})
	if err != nil {
		return ConnectionView{}, err
	}
	result := upstream.TestConnection(ctx)
	if !result.Success {
		return ConnectionView{}, &domain.Error{
			Kind:    domain.KindInvalidCredentials,
			Message: "Invalid Planning Center credentials: " + result.Error,
		}
	}

	encryptedID, err := s.vault.Encrypt(clientID)
	if err != nil {
		return ConnectionView{}, err
	}
	encryptedSecret, err := s.vault.Encrypt(clientSecret)
	if err != nil {
		return ConnectionView{}, err
	}

	conn := domain.NewTenantConnection(tc.TenantID, encryptedID, encryptedSecret)
	existing, err := s.repo.Get(ctx, tc.TenantID)
	switch {
	case err == nil:
		status, err := s.validator.Apply(ctx, existing.Status, domain.EventConnect)
		if err != nil {
			return ConnectionView{}, err
		}
		conn.Status = status
		conn.CreatedAt = existing.CreatedAt
		conn.LastSyncAt = existing.LastSyncAt
	case !errors.Is(err, domain.ErrConnectionNotFound):
		return ConnectionView{}, fmt.Errorf("loading tenant connection: %w", err)
	}
	conn.RemoteOrgID = result.RemoteOrgID
	conn.RemoteOrgName = result.RemoteOrgName

	if err := s.repo.Save(ctx, conn); err != nil {
		return ConnectionView{}, fmt.Errorf("saving tenant connection: %w", err)
	}

	s.logger.InfoContext(ctx, "planning center connected",
		"tenant_id", tc.TenantID,
		"user_id", tc.UserID,
		"remote_org_id", conn.RemoteOrgID,
	)

	if err := s.scheduler.ScheduleSync(ctx, tc.TenantID, tc.UserID); err != nil {
		s.logger.WarnContext(ctx, "scheduling initial sync failed",
			"tenant_id", tc.TenantID,
			"error", err,
		)
	}

	return viewOf(conn, true), nil
}

// Disconnect marks the connection DISCONNECTED and wipes the stored
// credentials. The row is kept so status history survives. Disconnecting an
// already disconnected tenant is a no-op.
func (s *ConnectionService) Disconnect(ctx context.Context, tc domain.TenantContext) (ConnectionView, error) {
	if err := requireRole(tc, domain.RoleAdmin); err != nil {
		return ConnectionView{}, err
	}

	conn, err := s.resolver.load(ctx, tc.TenantID)
	if err != nil {
		return ConnectionView{}, err
	}
	if conn.Status == domain.StatusDisconnected {
		return viewOf(conn, true), nil
	}

	status, err := s.validator.Apply(ctx, conn.Status, domain.EventDisconnect)
	if err != nil {
		return ConnectionView{}, err
	}
	conn.Status = status
	conn.EncryptedClientID = ""
	conn.EncryptedClientSecret = ""

	if err := s.repo.Update(ctx, conn); err != nil {
		return ConnectionView{}, fmt.Errorf("updating tenant connection: %w", err)
	}

	s.logger.InfoContext(ctx, "planning center disconnected",
		"tenant_id", tc.TenantID,
		"user_id", tc.UserID,
	)
	return viewOf(conn, true), nil
}

// Status reports the tenant's connection. A tenant that never connected gets
// Connected=false rather than an error.
func (s *ConnectionService) Status(ctx context.Context, tc domain.TenantContext) (ConnectionView, error) {
	conn, err := s.repo.Get(ctx, tc.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrConnectionNotFound) {
			return ConnectionView{}, nil
		}
		return ConnectionView{}, fmt.Errorf("loading tenant connection: %w", err)
	}
	return viewOf(conn, true), nil
}

// Test re-checks the stored credentials against the upstream and records
// the outcome. A failing upstream is reported in the TestReport; unreadable
// credentials are recorded and returned as connection_corrupted.
func (s *ConnectionService) Test(ctx context.Context, tc domain.TenantContext) (TestReport, error) {
	if err := requireRole(tc, domain.RoleAdmin); err != nil {
		return TestReport{}, err
	}

	conn, err := s.resolver.load(ctx, tc.TenantID)
	if err != nil {
		return TestReport{}, err
	}
	if conn.Status == domain.StatusDisconnected {
		return TestReport{}, &domain.Error{
			Kind:    domain.KindConnectionInactive,
			Message: "Planning Center is disconnected; connect again before testing",
		}
	}

	creds, err := s.resolver.Credentials(conn)
	if err != nil {
		if _, recErr := s.resolver.RecordTestResult(ctx, tc.TenantID, domain.TestOutcome{
			Message: "stored credentials could not be decrypted",
		}); recErr != nil {
			s.logger.ErrorContext(ctx, "recording test result failed", "tenant_id", tc.TenantID, "error", recErr)
		}
		return TestReport{}, err
	}

	upstream, err := s.factory(creds)
	if err != nil {
		return TestReport{}, err
	}
	result := upstream.TestConnection(ctx)

	updated, err := s.resolver.RecordTestResult(ctx, tc.TenantID, domain.TestOutcome{
		Success:       result.Success,
		Message:       result.Error,
		RemoteOrgID:   result.RemoteOrgID,
		RemoteOrgName: result.RemoteOrgName,
	})
	if err != nil {
		return TestReport{}, err
	}

	report := TestReport{
		Success:    result.Success,
		Message:    "Connection test successful",
		Connection: viewOf(updated, true),
	}
	if !result.Success {
		report.Message = "Connection test failed: " + result.Error
	}

	s.logger.InfoContext(ctx, "planning center connection tested",
		"tenant_id", tc.TenantID,
		"success", result.Success,
	)
	return report, nil
}

// RequestSync enqueues a background sync for the caller's tenant.
func (s *ConnectionService) RequestSync(ctx context.Context, tc domain.TenantContext) error {
	if err := requireRole(tc, domain.RoleAdmin, domain.RoleLeader); err != nil {
		return err
	}

	conn, err := s.resolver.load(ctx, tc.TenantID)
	if err != nil {
		return err
	}
	if conn.Status != domain.StatusActive {
		return &domain.Error{
			Kind:    domain.KindConnectionInactive,
			Message: fmt.Sprintf("Planning Center connection is not active (status %s)", conn.Status),
		}
	}

	if err := s.scheduler.ScheduleSync(ctx, tc.TenantID, tc.UserID); err != nil {
		return fmt.Errorf("scheduling sync: %w", err)
	}
	return nil
}

// Sync pulls people, songs and teams into the record cache and records the
// outcome against the connection. It is run by the background worker.
func (s *ConnectionService) Sync(ctx context.Context, tenantID string) (SyncReport, error) {
	upstream, err := s.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return SyncReport{}, err
	}

	report, syncErr := s.pull(ctx, tenantID, upstream)

	outcome := domain.TestOutcome{Success: syncErr == nil, Sync: true, At: s.now()}
	if syncErr != nil {
		outcome.Message = "sync failed: " + syncErr.Error()
	}
	if _, err := s.resolver.RecordTestResult(ctx, tenantID, outcome); err != nil {
		return report, errors.Join(syncErr, err)
	}

	if syncErr != nil {
		return report, syncErr
	}

	s.logger.InfoContext(ctx, "planning center sync complete",
		"tenant_id", tenantID,
		"people", report.People,
		"songs", report.Songs,
		"teams", report.Teams,
	)
	return report, nil
}

func (s *ConnectionService) pull(ctx context.Context, tenantID string, upstream domain.Upstream) (SyncReport, error) {
	var report SyncReport
	now := s.now()

	people, err := upstream.ListPeople(ctx, domain.QueryParams{"per_page": syncPageSize})
	if err != nil {
		return report, fmt.Errorf("listing people: %w", err)
	}
	cachedPeople := make([]domain.Person, 0, len(people.Data))
	for _, p := range people.Data {
		cachedPeople = append(cachedPeople, domain.PersonFromResource(p, now))
	}
	if err := s.cache.UpsertPeople(ctx, tenantID, cachedPeople); err != nil {
		return report, fmt.Errorf("caching people: %w", err)
	}
	report.People = len(cachedPeople)

	songs, err := upstream.ListSongs(ctx, domain.QueryParams{"per_page": syncPageSize})
	if err != nil {
		return report, fmt.Errorf("listing songs: %w", err)
	}
	cachedSongs := make([]domain.Song, 0, len(songs.Data))
	for _, song := range songs.Data {
		cachedSongs = append(cachedSongs, domain.SongFromResource(song, now))
	}
	if err := s.cache.UpsertSongs(ctx, tenantID, cachedSongs); err != nil {
		return report, fmt.Errorf("caching songs: %w", err)
	}
	report.Songs = len(cachedSongs)

	teams, err := FetchTeams(ctx, upstream, now)
	if err != nil {
		return report, err
	}
	if err := s.cache.ReplaceTeams(ctx, tenantID, teams); err != nil {
		return report, fmt.Errorf("caching teams: %w", err)
	}
	report.Teams = len(teams)

	return report, nil
}

// FetchTeams reads every team of every service type together with its members.
func FetchTeams(ctx context.Context, upstream domain.Upstream, syncedAt time.Time) ([]domain.Team, error) {
	serviceTypes, err := upstream.ListServiceTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing service types: %w", err)
	}

	var teams []domain.Team
	for _, st := range serviceTypes.Data {
		list, err := upstream.ListTeams(ctx, st.ID)
		if err != nil {
			return nil, fmt.Errorf("listing teams of service type %s: %w", st.ID, err)
		}
		for _, team := range list.Data {
			members, err := upstream.ListTeamMembers(ctx, st.ID, team.ID)
			if err != nil {
				return nil, fmt.Errorf("listing members of team %s: %w", team.ID, err)
			}
			teams = append(teams, domain.TeamFromResource(team, st.ID, members.Data, syncedAt))
		}
	}
	return teams, nil
}

func viewOf(conn domain.TenantConnection, exists bool) ConnectionView {
	return ConnectionView{
		Connected:        exists && conn.Status != domain.StatusDisconnected,
		Status:           conn.Status,
		RemoteOrgID:      conn.RemoteOrgID,
		RemoteOrgName:    conn.RemoteOrgName,
		LastSyncAt:       conn.LastSyncAt,
		LastTestedAt:     conn.LastTestedAt,
		LastErrorAt:      conn.LastErrorAt,
		LastErrorMessage: conn.LastErrorMessage,
	}
}

// requireRole fails with forbidden unless the caller holds one of roles.
func requireRole(tc domain.TenantContext, roles ...domain.Role) error {
	if tc.HasRole(roles...) {
		return nil
	}
	return &domain.Error{
		Kind:    domain.KindForbidden,
		Message: "Insufficient permissions",
	}
}
