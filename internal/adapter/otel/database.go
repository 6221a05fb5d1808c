package otel

import (
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// sqliteDriver is the database/sql driver name registered by modernc.org/sqlite.
const sqliteDriver = "sqlite"

// dbSpanOptions keeps one span per statement. Row iteration and session
// resets would otherwise dominate traces of a sync run.
var dbSpanOptions = otelsql.SpanOptions{
	OmitRows:             true,
	OmitConnResetSession: true,
	DisableErrSkip:       true,
}

// OpenDB opens the SQLite file at path through otelsql, applies configure
// (pool size and pragmas) and registers connection pool metrics.
func OpenDB(path string, configure func(*sql.DB) error) (*sql.DB, error) {
	db, err := otelsql.Open(sqliteDriver, path,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
		otelsql.WithSpanOptions(dbSpanOptions),
	)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	if configure != nil {
		if err := configure(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring %s: %w", path, err)
		}
	}

	if _, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemSqlite)); err != nil {
		db.Close()
		return nil, fmt.Errorf("registering db stats metrics: %w", err)
	}
	return db, nil
}
