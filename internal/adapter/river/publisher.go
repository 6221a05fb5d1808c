package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

// Compile-time check: Publisher implements domain.SyncScheduler.
var _ domain.SyncScheduler = (*Publisher)(nil)

// SyncJobArgs asks a worker to pull a tenant's upstream records into the
// record cache. River serializes it as JSON into its job table.
type SyncJobArgs struct {
	TenantID    string `json:"tenant_id" river:"unique"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (SyncJobArgs) Kind() string { return "connection.sync" }

// InsertOpts collapses repeated sync requests for one tenant within a minute.
func (SyncJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 3,
		Queue:       SyncQueue,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: time.Minute,
		},
	}
}

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.SyncScheduler by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// ScheduleSync enqueues a sync job for the tenant.
func (p *Publisher) ScheduleSync(ctx context.Context, tenantID, requestedBy string) error {
	_, err := p.client.Insert(ctx, SyncJobArgs{TenantID: tenantID, RequestedBy: requestedBy}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing sync job: %w", err)
	}
	return nil
}
