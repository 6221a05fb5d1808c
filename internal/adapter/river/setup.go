package river

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
)

// SyncQueue is the River queue sync jobs are inserted into and worked from.
const SyncQueue = "sync"

// Options tunes the River client built by Setup.
type Options struct {
	// Workers caps concurrent sync jobs. Values below 1 mean 1.
	Workers int
	// JobTimeout bounds a single sync attempt. Zero keeps River's default.
	JobTimeout time.Duration
	// Logger receives River's own logs. Nil keeps River's default.
	Logger *slog.Logger
}

// Setup migrates River's tables in db and returns an unstarted client with
// the sync worker registered on SyncQueue. Start it to begin working jobs;
// Stop drains in-flight syncs.
func Setup(ctx context.Context, db *sql.DB, sync SyncFunc, opts Options) (*Client, error) {
	driver := riversqlite.New(db)

	if err := migrateQueue(ctx, driver); err != nil {
		return nil, err
	}

	workers := river.NewWorkers()
	if err := river.AddWorkerSafely(workers, &SyncWorker{Sync: sync}); err != nil {
		return nil, fmt.Errorf("registering sync worker: %w", err)
	}

	client, err := river.NewClient(driver, &river.Config{
		JobTimeout: opts.JobTimeout,
		Logger:     opts.Logger,
		Queues: map[string]river.QueueConfig{
			SyncQueue: {MaxWorkers: max(opts.Workers, 1)},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}
	return client, nil
}

// migrateQueue brings River's job tables up to date. They live next to the
// connection tables but are versioned by River, not by goose.
func migrateQueue(ctx context.Context, driver *riversqlite.Driver) error {
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return fmt.Errorf("creating river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("running river migrations: %w", err)
	}
	if len(res.Versions) > 0 {
		slog.DebugContext(ctx, "river migrations applied", "count", len(res.Versions))
	}
	return nil
}
