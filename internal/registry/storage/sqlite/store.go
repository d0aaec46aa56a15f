// Package sqlite implements the registry stores over a single SQLite file.
//
// One SQLite database models one entity group: BEGIN IMMEDIATE transactions
// serialize writers, and a group_clock row keeps commit instants strictly
// increasing even when the wall clock stalls or steps backwards.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/registrolabs/corenic/internal/platform/storage/sqlitemigrate"
	"github.com/registrolabs/corenic/internal/registry/storage"
	"github.com/registrolabs/corenic/internal/registry/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements registry persistence over SQLite.
//
// A single SQLite file backs one entity group so every flow in the group
// shares the same transaction and visibility boundaries.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Option adjusts store construction.
type Option func(*Store)

// WithClock overrides the wall clock used to derive transaction instants.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens a registry SQLite store and applies bundled migrations.
//
// The DSN requests immediate transactions so every RunInTransaction call
// takes the write lock up front instead of upgrading mid-flow.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	store := &Store{
		sqlDB: sqlDB,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// DB returns the raw database handle for maintenance tooling.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// RunInTransaction executes fn inside one entity-group transaction.
//
// The transaction instant is derived once at open: max(now, last committed
// instant + 1ms), so commit instants within the group strictly increase.
// Dry runs take the same code path and roll back instead of committing.
func (s *Store) RunInTransaction(ctx context.Context, persist bool, fn func(tx storage.Transaction) error) error {
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return mapContention(fmt.Errorf("begin transaction: %w", err))
	}

	instant, err := nextInstant(ctx, sqlTx, s.now())
	if err != nil {
		_ = sqlTx.Rollback()
		return mapContention(err)
	}

	tx := &Tx{sqlTx: sqlTx, instant: instant}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return mapContention(err)
	}

	if !persist {
		if err := sqlTx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return fmt.Errorf("rollback dry run: %w", err)
		}
		return nil
	}

	if tx.dirty {
		if _, err := sqlTx.ExecContext(ctx,
			"UPDATE group_clock SET last_write_at = ? WHERE id = 1",
			toMillis(instant),
		); err != nil {
			_ = sqlTx.Rollback()
			return mapContention(fmt.Errorf("advance group clock: %w", err))
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return mapContention(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// nextInstant reads the group's write clock and picks the transaction
// instant: the wall clock, bumped past the last committed write when the
// wall clock has not moved.
func nextInstant(ctx context.Context, sqlTx *sql.Tx, now time.Time) (time.Time, error) {
	row := sqlTx.QueryRowContext(ctx, "SELECT last_write_at FROM group_clock WHERE id = 1")
	var lastMillis int64
	if err := row.Scan(&lastMillis); err != nil {
		return time.Time{}, fmt.Errorf("read group clock: %w", err)
	}

	instant := now.UTC().Truncate(time.Millisecond)
	floor := fromMillis(lastMillis).Add(time.Millisecond)
	if instant.Before(floor) {
		instant = floor
	}
	return instant, nil
}

// mapContention folds SQLite busy/locked failures into the retryable
// contention sentinel so callers can retry the whole transaction.
func mapContention(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") {
		return fmt.Errorf("%w: %v", storage.ErrContention, err)
	}
	return err
}

// AppendTelemetryEvent records one dispatched-command telemetry row. It runs
// outside flow transactions in its own implicit transaction.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	dryRun := 0
	if evt.DryRun {
		dryRun = 1
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO telemetry_events (
    occurred_at, command, resource, target, registrar_id,
    result_code, server_trid, client_trid, duration_ms, dry_run
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		toMillis(evt.Timestamp),
		evt.Command,
		evt.Resource,
		evt.Target,
		evt.RegistrarID,
		evt.ResultCode,
		evt.ServerTRID,
		evt.ClientTRID,
		evt.DurationMS,
		dryRun,
	)
	if err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}
