package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/neomorfeo/rosterlink/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time checks.
var (
	_ domain.ConnectionRepository = (*Store)(nil)
	_ domain.RecordCache          = (*Store)(nil)
)

// Store implements domain.ConnectionRepository and domain.RecordCache using SQLite.
type Store struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready store.
func New(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := Configure(db); err != nil {
		return nil, err
	}

	return NewFromDB(db)
}

// Configure applies the connection settings the store relies on. SQLite has a
// single writer, and an in-memory database exists only on its one connection.
func Configure(db *sql.DB) error {
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("setting busy timeout: %w", err)
	}
	return nil
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready store.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*Store, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

const timeFormat = time.RFC3339Nano

const connectionColumns = `tenant_id, encrypted_client_id, encrypted_client_secret, status,
	remote_org_id, remote_org_name, last_error_at, last_error_message,
	last_tested_at, last_sync_at, created_at, updated_at`

// Get returns the tenant's connection or domain.ErrConnectionNotFound.
func (s *Store) Get(ctx context.Context, tenantID string) (domain.TenantConnection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM tenant_connections WHERE tenant_id = ?`, tenantID)

	var c domain.TenantConnection
	var status, createdAt, updatedAt string
	var lastErrorAt, lastTestedAt, lastSyncAt sql.NullString

	err := row.Scan(&c.TenantID, &c.EncryptedClientID, &c.EncryptedClientSecret, &status,
		&c.RemoteOrgID, &c.RemoteOrgName, &lastErrorAt, &c.LastErrorMessage,
		&lastTestedAt, &lastSyncAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TenantConnection{}, domain.ErrConnectionNotFound
		}
		return domain.TenantConnection{}, fmt.Errorf("scanning tenant connection: %w", err)
	}

	c.Status = domain.ConnectionStatus(status)
	c.LastErrorAt = parseNullTime(lastErrorAt)
	c.LastTestedAt = parseNullTime(lastTestedAt)
	c.LastSyncAt = parseNullTime(lastSyncAt)
	c.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	c.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	return c, nil
}

// Save inserts the connection or replaces every mutable column of an existing
// one. created_at of an existing row is preserved.
func (s *Store) Save(ctx context.Context, c domain.TenantConnection) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_connections (`+connectionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id) DO UPDATE SET
			encrypted_client_id = excluded.encrypted_client_id,
			encrypted_client_secret = excluded.encrypted_client_secret,
			status = excluded.status,
			remote_org_id = excluded.remote_org_id,
			remote_org_name = excluded.remote_org_name,
			last_error_at = excluded.last_error_at,
			last_error_message = excluded.last_error_message,
			last_tested_at = excluded.last_tested_at,
			last_sync_at = excluded.last_sync_at,
			updated_at = excluded.updated_at`,
		c.TenantID, c.EncryptedClientID, c.EncryptedClientSecret, string(c.Status),
		c.RemoteOrgID, c.RemoteOrgName, formatNullTime(c.LastErrorAt), c.LastErrorMessage,
		formatNullTime(c.LastTestedAt), formatNullTime(c.LastSyncAt),
		c.CreatedAt.UTC().Format(timeFormat), now.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("saving tenant connection: %w", err)
	}
	return nil
}

// Update modifies an existing connection.
func (s *Store) Update(ctx context.Context, c domain.TenantConnection) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tenant_connections SET
			encrypted_client_id = ?, encrypted_client_secret = ?, status = ?,
			remote_org_id = ?, remote_org_name = ?, last_error_at = ?, last_error_message = ?,
			last_tested_at = ?, last_sync_at = ?, updated_at = ?
		 WHERE tenant_id = ?`,
		c.EncryptedClientID, c.EncryptedClientSecret, string(c.Status),
		c.RemoteOrgID, c.RemoteOrgName, formatNullTime(c.LastErrorAt), c.LastErrorMessage,
		formatNullTime(c.LastTestedAt), formatNullTime(c.LastSyncAt),
		time.Now().UTC().Format(timeFormat), c.TenantID,
	)
	if err != nil {
		return fmt.Errorf("updating tenant connection: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrConnectionNotFound
	}

	return nil
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeFormat, s.String)
	if err != nil {
		return nil
	}
	return &t
}
