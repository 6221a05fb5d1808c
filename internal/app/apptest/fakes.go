// Package apptest provides in-memory doubles of the domain ports for tests.
package apptest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

// Compile-time checks.
var (
	_ domain.Upstream             = (*Upstream)(nil)
	_ domain.ConnectionRepository = (*Repo)(nil)
	_ domain.CredentialVault      = (*Vault)(nil)
	_ domain.TransitionValidator  = Transitions{}
	_ domain.SyncScheduler        = (*Scheduler)(nil)
	_ domain.UpstreamResolver     = (*Resolver)(nil)
)

// Upstream is a scripted domain.Upstream that records every call.
type Upstream struct {
	mu    sync.Mutex
	calls []string

	Test         domain.ConnectionTestResult
	People       []domain.Resource[domain.PersonAttributes]
	Blockouts    map[string][]domain.Resource[domain.BlockoutAttributes]
	ServiceTypes []domain.Resource[domain.ServiceTypeAttributes]
	Plans        map[string][]domain.Resource[domain.PlanAttributes]
	Teams        map[string][]domain.Resource[domain.TeamAttributes]
	Members      map[string][]domain.Resource[domain.TeamMemberAttributes]
	Songs        []domain.Resource[domain.SongAttributes]

	// Err, when set, is returned by every operation except TestConnection.
	Err error
	// Errs overrides Err per operation name, e.g. "ListSongs".
	Errs map[string]error

	// LastParams holds the query parameters of the most recent list call.
	LastParams domain.QueryParams
	// Created and Updated record plan-person writes.
	Created []domain.PlanPersonInput
	Updated []domain.PlanPersonInput
}

// Calls returns the operation names invoked so far, in order.
func (u *Upstream) Calls() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.calls...)
}

// CallCount returns how many times op was invoked.
func (u *Upstream) CallCount(op string) int {
	n := 0
	for _, c := range u.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

func (u *Upstream) record(op string, params domain.QueryParams) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, op)
	if params != nil {
		u.LastParams = params
	}
	if err, ok := u.Errs[op]; ok {
		return err
	}
	return u.Err
}

func (u *Upstream) TestConnection(_ context.Context) domain.ConnectionTestResult {
	_ = u.record("TestConnection", nil)
	return u.Test
}

func (u *Upstream) ListPeople(_ context.Context, params domain.QueryParams) (domain.Collection[domain.PersonAttributes], error) {
	if err := u.record("ListPeople", params); err != nil {
		return domain.Collection[domain.PersonAttributes]{}, err
	}
	return collection(u.People), nil
}

func (u *Upstream) GetPerson(_ context.Context, id string) (domain.Resource[domain.PersonAttributes], error) {
	if err := u.record("GetPerson", nil); err != nil {
		return domain.Resource[domain.PersonAttributes]{}, err
	}
	for _, p := range u.People {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Resource[domain.PersonAttributes]{}, notFound()
}

func (u *Upstream) ListBlockouts(_ context.Context, personID string, params domain.QueryParams) (domain.Collection[domain.BlockoutAttributes], error) {
	if err := u.record("ListBlockouts", params); err != nil {
		return domain.Collection[domain.BlockoutAttributes]{}, err
	}
	return collection(u.Blockouts[personID]), nil
}

func (u *Upstream) ListServiceTypes(_ context.Context) (domain.Collection[domain.ServiceTypeAttributes], error) {
	if err := u.record("ListServiceTypes", nil); err != nil {
		return domain.Collection[domain.ServiceTypeAttributes]{}, err
	}
	return collection(u.ServiceTypes), nil
}

func (u *Upstream) ListPlans(_ context.Context, serviceTypeID string, params domain.QueryParams) (domain.Collection[domain.PlanAttributes], error) {
	if err := u.record("ListPlans", params); err != nil {
		return domain.Collection[domain.PlanAttributes]{}, err
	}
	return collection(u.Plans[serviceTypeID]), nil
}

func (u *Upstream) GetPlan(_ context.Context, serviceTypeID, planID string) (domain.Resource[domain.PlanAttributes], error) {
	if err := u.record("GetPlan", nil); err != nil {
		return domain.Resource[domain.PlanAttributes]{}, err
	}
	for _, p := range u.Plans[serviceTypeID] {
		if p.ID == planID {
			return p, nil
		}
	}
	return domain.Resource[domain.PlanAttributes]{}, notFound()
}

func (u *Upstream) ListTeams(_ context.Context, serviceTypeID string) (domain.Collection[domain.TeamAttributes], error) {
	if err := u.record("ListTeams", nil); err != nil {
		return domain.Collection[domain.TeamAttributes]{}, err
	}
	return collection(u.Teams[serviceTypeID]), nil
}

func (u *Upstream) ListTeamMembers(_ context.Context, _, teamID string) (domain.Collection[domain.TeamMemberAttributes], error) {
	if err := u.record("ListTeamMembers", nil); err != nil {
		return domain.Collection[domain.TeamMemberAttributes]{}, err
	}
	return collection(u.Members[teamID]), nil
}

func (u *Upstream) ListSongs(_ context.Context, params domain.QueryParams) (domain.Collection[domain.SongAttributes], error) {
	if err := u.record("ListSongs", params); err != nil {
		return domain.Collection[domain.SongAttributes]{}, err
	}
	return collection(u.Songs), nil
}

func (u *Upstream) SearchSongs(_ context.Context, query string) (domain.Collection[domain.SongAttributes], error) {
	if err := u.record("SearchSongs", domain.QueryParams{"where[search]": query}); err != nil {
		return domain.Collection[domain.SongAttributes]{}, err
	}
	var out []domain.Resource[domain.SongAttributes]
	for _, s := range u.Songs {
		if strings.Contains(strings.ToLower(s.Attributes.Title), strings.ToLower(query)) {
			out = append(out, s)
		}
	}
	return collection(out), nil
}

func (u *Upstream) CreatePlanPerson(_ context.Context, _ string, in domain.PlanPersonInput) (domain.Resource[domain.PlanPersonAttributes], error) {
	if err := u.record("CreatePlanPerson", nil); err != nil {
		return domain.Resource[domain.PlanPersonAttributes]{}, err
	}
	u.mu.Lock()
	u.Created = append(u.Created, in)
	id := "pp-" + in.PersonID
	u.mu.Unlock()
	return planPerson(id, in), nil
}

func (u *Upstream) UpdatePlanPerson(_ context.Context, _, planPersonID string, in domain.PlanPersonInput) (domain.Resource[domain.PlanPersonAttributes], error) {
	if err := u.record("UpdatePlanPerson", nil); err != nil {
		return domain.Resource[domain.PlanPersonAttributes]{}, err
	}
	u.mu.Lock()
	u.Updated = append(u.Updated, in)
	u.mu.Unlock()
	return planPerson(planPersonID, in), nil
}

func planPerson(id string, in domain.PlanPersonInput) domain.Resource[domain.PlanPersonAttributes] {
	status := in.Status
	if status == "" {
		status = "U"
	}
	return domain.Resource[domain.PlanPersonAttributes]{
		ID:   id,
		Type: "PlanPerson",
		Attributes: domain.PlanPersonAttributes{
			Status:           status,
			TeamPositionName: in.Position,
		},
	}
}

func collection[A any](data []domain.Resource[A]) domain.Collection[A] {
	return domain.Collection[A]{
		Data: data,
		Meta: domain.CollectionMeta{TotalCount: len(data), Count: len(data)},
	}
}

func notFound() error {
	return domain.NewUpstreamError(404, "upstream returned 404 Not Found: resource not found", nil)
}

// Repo is an in-memory domain.ConnectionRepository.
type Repo struct {
	mu    sync.Mutex
	conns map[string]domain.TenantConnection
	// Err, when set, is returned by every method.
	Err error
}

// NewRepo returns a repository seeded with conns.
func NewRepo(conns ...domain.TenantConnection) *Repo {
	r := &Repo{conns: make(map[string]domain.TenantConnection)}
	for _, c := range conns {
		r.conns[c.TenantID] = c
	}
	return r
}

func (r *Repo) Get(_ context.Context, tenantID string) (domain.TenantConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return domain.TenantConnection{}, r.Err
	}
	c, ok := r.conns[tenantID]
	if !ok {
		return domain.TenantConnection{}, domain.ErrConnectionNotFound
	}
	return c, nil
}

func (r *Repo) Save(_ context.Context, conn domain.TenantConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.conns[conn.TenantID] = conn
	return nil
}

func (r *Repo) Update(_ context.Context, conn domain.TenantConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.conns[conn.TenantID]; !ok {
		return domain.ErrConnectionNotFound
	}
	r.conns[conn.TenantID] = conn
	return nil
}

// Vault is a reversible, non-cryptographic domain.CredentialVault.
type Vault struct{}

const vaultPrefix = "enc:"

func (Vault) Encrypt(plaintext string) (string, error) {
	return vaultPrefix + plaintext, nil
}

func (Vault) Decrypt(token string) (string, error) {
	plain, ok := strings.CutPrefix(token, vaultPrefix)
	if !ok {
		return "", &domain.Error{Kind: domain.KindDecryptionFailure, Message: "malformed token"}
	}
	return plain, nil
}

func (Vault) IsValidEncryptedString(token string) bool {
	return strings.HasPrefix(token, vaultPrefix)
}

// Transitions applies domain.Transitions without an FSM library.
type Transitions struct{}

func (Transitions) Apply(_ context.Context, current domain.ConnectionStatus, event domain.ConnectionEvent) (domain.ConnectionStatus, error) {
	for _, t := range domain.Transitions {
		if t.Event == event && t.Src == current {
			return t.Dst, nil
		}
	}
	return "", &domain.TransitionError{Event: event, Current: current}
}

// Scheduler records scheduled syncs.
type Scheduler struct {
	mu        sync.Mutex
	Scheduled []string
	Err       error
}

func (s *Scheduler) ScheduleSync(_ context.Context, tenantID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Scheduled = append(s.Scheduled, tenantID)
	return nil
}

// Resolver hands out a fixed upstream and counts resolutions.
type Resolver struct {
	mu       sync.Mutex
	Upstream domain.Upstream
	Err      error
	resolved int
}

func (r *Resolver) Resolve(_ context.Context, _ string) (domain.Upstream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved++
	if r.Err != nil {
		return nil, r.Err
	}
	if r.Upstream == nil {
		return nil, errors.New("apptest: resolver has no upstream")
	}
	return r.Upstream, nil
}

// Resolved returns how many times Resolve was called.
func (r *Resolver) Resolved() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}

// Factory returns a ClientFactory handing out u and recording the credentials it saw.
func Factory(u domain.Upstream, seen *[]domain.Credentials) domain.ClientFactory {
	var mu sync.Mutex
	return func(creds domain.Credentials) (domain.Upstream, error) {
		mu.Lock()
		defer mu.Unlock()
		if seen != nil {
			*seen = append(*seen, creds)
		}
		return u, nil
	}
}

// ActiveConnection returns an ACTIVE connection whose credentials decrypt
// under Vault to clientID and secret.
func ActiveConnection(tenantID, clientID, secret string) domain.TenantConnection {
	return domain.NewTenantConnection(tenantID, vaultPrefix+clientID, vaultPrefix+secret)
}
