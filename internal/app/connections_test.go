package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/neomorfeo/rosterlink/internal/app"
	"github.com/neomorfeo/rosterlink/internal/app/apptest"
	"github.com/neomorfeo/rosterlink/internal/domain"
)

var (
	admin  = domain.TenantContext{TenantID: "t1", UserID: "u1", Role: domain.RoleAdmin}
	leader = domain.TenantContext{TenantID: "t1", UserID: "u2", Role: domain.RoleLeader}
	member = domain.TenantContext{TenantID: "t1", UserID: "u3", Role: domain.RoleMember}
)

type connectionFixture struct {
	svc       *app.ConnectionService
	repo      *apptest.Repo
	upstream  *apptest.Upstream
	scheduler *apptest.Scheduler
	cache     *apptest.Cache
	seen      *[]domain.Credentials
}

func newConnectionFixture(t *testing.T, conns ...domain.TenantConnection) *connectionFixture {
	t.Helper()
	f := &connectionFixture{
		repo:      apptest.NewRepo(conns...),
		upstream:  &apptest.Upstream{Test: domain.ConnectionTestResult{Success: true, RemoteOrgID: "42", RemoteOrgName: "Grace Church"}},
		scheduler: &apptest.Scheduler{},
		cache:     apptest.NewCache(),
		seen:      &[]domain.Credentials{},
	}
	factory := apptest.Factory(f.upstream, f.seen)
	resolver := app.NewResolver(f.repo, apptest.Vault{}, factory, apptest.Transitions{})
	f.svc = app.NewConnectionService(resolver, app.ConnectionDeps{
		Repo:      f.repo,
		Vault:     apptest.Vault{},
		Factory:   factory,
		Validator: apptest.Transitions{},
		Scheduler: f.scheduler,
		Cache:     f.cache,
	})
	return f
}

func TestConnect_Success(t *testing.T) {
	f := newConnectionFixture(t)

	view, err := f.svc.Connect(context.Background(), admin, "app-id", "app-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !view.Connected || view.Status != domain.StatusActive {
		t.Errorf("view = %+v", view)
	}
	if view.RemoteOrgName != "Grace Church" {
		t.Errorf("RemoteOrgName = %q", view.RemoteOrgName)
	}

	stored, err := f.repo.Get(context.Background(), "t1")
	if err != nil {
		t.Fatalf("connection not stored: %v", err)
	}
	if stored.EncryptedClientID == "app-id" || stored.EncryptedClientSecret == "app-secret" {
		t.Error("credentials must be stored encrypted")
	}

	if diff := cmp.Diff([]string{"t1"}, f.scheduler.Scheduled); diff != "" {
		t.Errorf("scheduled syncs mismatch (-want +got):\n%s", diff)
	}
}

func TestConnect_RejectedCredentials(t *testing.T) {
	f := newConnectionFixture(t)
	f.upstream.Test = domain.ConnectionTestResult{Error: "upstream returned 401 Unauthorized"}

	_, err := f.svc.Connect(context.Background(), admin, "bad", "creds")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid_credentials, got %v", err)
	}
	if _, err := f.repo.Get(context.Background(), "t1"); !errors.Is(err, domain.ErrConnectionNotFound) {
		t.Error("rejected credentials must not be stored")
	}
	if len(f.scheduler.Scheduled) != 0 {
		t.Error("no sync should be scheduled")
	}
}

func TestConnect_RequiresAdmin(t *testing.T) {
	f := newConnectionFixture(t)

	_, err := f.svc.Connect(context.Background(), leader, "id", "secret")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(*f.seen) != 0 {
		t.Error("no client should be built for a forbidden caller")
	}
}

func TestConnect_MissingFields(t *testing.T) {
	f := newConnectionFixture(t)

	_, err := f.svc.Connect(context.Background(), admin, "", "")
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != domain.KindInvalidParameters {
		t.Fatalf("expected invalid_parameters, got %v", err)
	}
	if diff := cmp.Diff([]string{"clientId", "clientSecret"}, de.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestConnect_ReconnectKeepsCreatedAt(t *testing.T) {
	old := apptest.ActiveConnection("t1", "old", "old")
	old.Status = domain.StatusDisconnected
	old.CreatedAt = old.CreatedAt.AddDate(-1, 0, 0)
	f := newConnectionFixture(t, old)

	if _, err := f.svc.Connect(context.Background(), admin, "new-id", "new-secret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := f.repo.Get(context.Background(), "t1")
	if !stored.CreatedAt.Equal(old.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", stored.CreatedAt, old.CreatedAt)
	}
	if stored.Status != domain.StatusActive {
		t.Errorf("Status = %q", stored.Status)
	}
}

func TestConnect_ScheduleFailureIsNotFatal(t *testing.T) {
	f := newConnectionFixture(t)
	f.scheduler.Err = errors.New("queue down")

	if _, err := f.svc.Connect(context.Background(), admin, "id", "secret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDisconnect(t *testing.T) {
	f := newConnectionFixture(t, apptest.ActiveConnection("t1", "id", "secret"))

	view, err := f.svc.Disconnect(context.Background(), admin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Connected || view.Status != domain.StatusDisconnected {
		t.Errorf("view = %+v", view)
	}

	stored, err := f.repo.Get(context.Background(), "t1")
	if err != nil {
		t.Fatalf("row should be kept: %v", err)
	}
	if stored.EncryptedClientID != "" || stored.EncryptedClientSecret != "" {
		t.Error("credentials should be wiped")
	}

	// Idempotent.
	if _, err := f.svc.Disconnect(context.Background(), admin); err != nil {
		t.Errorf("second disconnect: %v", err)
	}
}

func TestDisconnect_NotConnected(t *testing.T) {
	f := newConnectionFixture(t)

	_, err := f.svc.Disconnect(context.Background(), admin)
	if !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected not_connected, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	t.Run("never connected", func(t *testing.T) {
		f := newConnectionFixture(t)
		view, err := f.svc.Status(context.Background(), member)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(app.ConnectionView{}, view); diff != "" {
			t.Errorf("view mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("error state", func(t *testing.T) {
		conn := apptest.ActiveConnection("t1", "id", "secret")
		conn.Status = domain.StatusError
		conn.LastErrorMessage = "timeout"
		f := newConnectionFixture(t, conn)

		view, err := f.svc.Status(context.Background(), member)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !view.Connected || view.Status != domain.StatusError || view.LastErrorMessage != "timeout" {
			t.Errorf("view = %+v", view)
		}
	})
}

func TestTest_Success(t *testing.T) {
	conn := apptest.ActiveConnection("t1", "id", "secret")
	conn.Status = domain.StatusError
	f := newConnectionFixture(t, conn)

	report, err := f.svc.Test(context.Background(), admin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Success || report.Connection.Status != domain.StatusActive {
		t.Errorf("report = %+v", report)
	}
}

func TestTest_FailureIsRecorded(t *testing.T) {
	f := newConnectionFixture(t, apptest.ActiveConnection("t1", "id", "secret"))
	f.upstream.Test = domain.ConnectionTestResult{Error: "upstream returned 401 Unauthorized"}

	report, err := f.svc.Test(context.Background(), admin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Success {
		t.Error("expected a failed report")
	}
	if report.Connection.Status != domain.StatusError {
		t.Errorf("Status = %q, want %q", report.Connection.Status, domain.StatusError)
	}
	if report.Connection.LastErrorMessage != "upstream returned 401 Unauthorized" {
		t.Errorf("LastErrorMessage = %q", report.Connection.LastErrorMessage)
	}
}

func TestTest_CorruptedCredentials(t *testing.T) {
	conn := apptest.ActiveConnection("t1", "id", "secret")
	conn.EncryptedClientID = "not-a-token"
	f := newConnectionFixture(t, conn)

	_, err := f.svc.Test(context.Background(), admin)
	if !errors.Is(err, domain.ErrConnectionCorrupted) {
		t.Fatalf("expected connection_corrupted, got %v", err)
	}

	stored, _ := f.repo.Get(context.Background(), "t1")
	if stored.Status != domain.StatusError {
		t.Errorf("Status = %q, want %q", stored.Status, domain.StatusError)
	}
}

func TestTest_Disconnected(t *testing.T) {
	conn := apptest.ActiveConnection("t1", "id", "secret")
	conn.Status = domain.StatusDisconnected
	f := newConnectionFixture(t, conn)

	_, err := f.svc.Test(context.Background(), admin)
	if !errors.Is(err, domain.ErrConnectionInactive) {
		t.Fatalf("expected connection_inactive, got %v", err)
	}
}

func TestRequestSync(t *testing.T) {
	f := newConnectionFixture(t, apptest.ActiveConnection("t1", "id", "secret"))

	if err := f.svc.RequestSync(context.Background(), leader); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.scheduler.Scheduled) != 1 {
		t.Errorf("scheduled = %v", f.scheduler.Scheduled)
	}

	if err := f.svc.RequestSync(context.Background(), member); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("member: expected forbidden, got %v", err)
	}
}

func syncUpstream(u *apptest.Upstream) {
	u.People = []domain.Resource[domain.PersonAttributes]{
		{ID: "p1", Attributes: domain.PersonAttributes{FirstName: "Ann", LastName: "Lee"}},
		{ID: "p2", Attributes: domain.PersonAttributes{FirstName: "Bo", LastName: "Kim"}},
	}
	u.Songs = []domain.Resource[domain.SongAttributes]{
		{ID: "s1", Attributes: domain.SongAttributes{Title: "Amazing Grace", Themes: domain.Themes{"Grace"}}},
	}
	u.ServiceTypes = []domain.Resource[domain.ServiceTypeAttributes]{{ID: "st1"}}
	u.Teams = map[string][]domain.Resource[domain.TeamAttributes]{
		"st1": {{ID: "team1", Attributes: domain.TeamAttributes{Name: "Band"}}},
	}
	u.Members = map[string][]domain.Resource[domain.TeamMemberAttributes]{
		"team1": {{ID: "p1", Attributes: domain.TeamMemberAttributes{Name: "Ann Lee"}}},
	}
}

func TestSync(t *testing.T) {
	f := newConnectionFixture(t, apptest.ActiveConnection("t1", "id", "secret"))
	syncUpstream(f.upstream)

	report, err := f.svc.Sync(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(app.SyncReport{People: 2, Songs: 1, Teams: 1}, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	people, _ := f.cache.ListPeople(context.Background(), "t1")
	if len(people) != 2 {
		t.Errorf("cached people = %d, want 2", len(people))
	}
	teams, _ := f.cache.ListTeams(context.Background(), "t1")
	if len(teams) != 1 || len(teams[0].Members) != 1 {
		t.Errorf("cached teams = %+v", teams)
	}

	stored, _ := f.repo.Get(context.Background(), "t1")
	if stored.LastSyncAt == nil {
		t.Error("LastSyncAt should be set")
	}
}

func TestSync_FailureMovesToError(t *testing.T) {
	f := newConnectionFixture(t, apptest.ActiveConnection("t1", "id", "secret"))
	syncUpstream(f.upstream)
	f.upstream.Errs = map[string]error{"ListSongs": domain.NewUpstreamError(503, "upstream returned 503 Service Unavailable", nil)}

	_, err := f.svc.Sync(context.Background(), "t1")
	if !errors.Is(err, domain.ErrUpstreamFailure) {
		t.Fatalf("expected upstream_failure, got %v", err)
	}

	stored, _ := f.repo.Get(context.Background(), "t1")
	if stored.Status != domain.StatusError {
		t.Errorf("Status = %q, want %q", stored.Status, domain.StatusError)
	}
	if stored.LastSyncAt != nil {
		t.Error("a failed sync must not set LastSyncAt")
	}
}
