package river

import (
	"context"
	"errors"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

// SyncFunc pulls one tenant's records from the upstream.
type SyncFunc func(ctx context.Context, tenantID string) error

// SyncWorker processes sync jobs from the River queue.
type SyncWorker struct {
	river.WorkerDefaults[SyncJobArgs]

	Sync SyncFunc
}

// Work runs a single sync. Failures caused by the connection's state are not
// retried; everything else goes back to River for another attempt.
func (w *SyncWorker) Work(ctx context.Context, job *river.Job[SyncJobArgs]) error {
	logger := slog.With(
		"tenant_id", job.Args.TenantID,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	logger.InfoContext(ctx, "processing sync job", "requested_by", job.Args.RequestedBy)

	err := w.Sync(ctx, job.Args.TenantID)
	if err == nil {
		return nil
	}

	if permanent(err) {
		logger.WarnContext(ctx, "sync job cancelled", "error_kind", domain.KindOf(err), "error", err)
		return river.JobCancel(err)
	}
	logger.ErrorContext(ctx, "sync job failed", "error", err)
	return err
}

func permanent(err error) bool {
	return errors.Is(err, domain.ErrNotConnected) ||
		errors.Is(err, domain.ErrConnectionInactive) ||
		errors.Is(err, domain.ErrConnectionCorrupted) ||
		errors.Is(err, domain.ErrInvalidCredentials)
}
