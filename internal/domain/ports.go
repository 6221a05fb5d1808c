package domain

import (
	"context"
	"time"
)

// ConnectionRepository defines the persistence contract for tenant connections.
type ConnectionRepository interface {
	// Get returns ErrConnectionNotFound when the tenant has no connection row.
	Get(ctx context.Context, tenantID string) (TenantConnection, error)
	// Save inserts or replaces the tenant's connection.
	Save(ctx context.Context, conn TenantConnection) error
	// Update modifies an existing connection; ErrConnectionNotFound if absent.
	Update(ctx context.Context, conn TenantConnection) error
}

// RecordCache stores normalized upstream records keyed by (tenantID, upstream id)
// so repeat queries can be answered without an upstream call.
type RecordCache interface {
	UpsertPeople(ctx context.Context, tenantID string, people []Person) error
	ListPeople(ctx context.Context, tenantID string) ([]Person, error)
	UpsertSongs(ctx context.Context, tenantID string, songs []Song) error
	SongsByTheme(ctx context.Context, tenantID, theme string) ([]Song, error)
	// ReplaceTeams replaces the tenant's cached teams and memberships.
	ReplaceTeams(ctx context.Context, tenantID string, teams []Team) error
	ListTeams(ctx context.Context, tenantID string) ([]Team, error)
}

// QueryCache is a short-lived, in-process cache of shaped query results.
// Keys must be tenant-scoped by the caller.
type QueryCache interface {
	Get(key string) (any, bool)
	Add(key string, value any)
}

// CredentialVault encrypts tenant secrets for storage.
type CredentialVault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) (string, error)
	IsValidEncryptedString(token string) bool
}

// TransitionValidator applies a connection event to a status.
type TransitionValidator interface {
	Apply(ctx context.Context, current ConnectionStatus, event ConnectionEvent) (ConnectionStatus, error)
}

// SyncScheduler enqueues a background sync for a tenant.
type SyncScheduler interface {
	ScheduleSync(ctx context.Context, tenantID, requestedBy string) error
}

// ClientFactory constructs an Upstream for one credential pair. Each call
// returns a client that exclusively owns its rate limiter.
type ClientFactory func(creds Credentials) (Upstream, error)

// UpstreamResolver produces an Upstream for a tenant's active connection.
type UpstreamResolver interface {
	Resolve(ctx context.Context, tenantID string) (Upstream, error)
}

// Dispatcher routes a command to its handler and always returns an envelope.
type Dispatcher interface {
	Dispatch(ctx context.Context, tc TenantContext, cmd Command) Envelope
	Commands() []CommandInfo
}

// Clock returns the current time. Overridden in tests.
type Clock func() time.Time
