// Package stores archives terminated plan executions in SQLite. The
// TOML record files remain the source of truth; the archive exists so
// operators can query outcomes without walking the storage areas.
package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// HistoryStore is the SQLite-backed execution history archive.
type HistoryStore struct {
	db   *sql.DB
	path string
}

// Config holds history store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewHistoryStore creates a new history store instance.
func NewHistoryStore(cfg Config) (*HistoryStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &HistoryStore{path: cfg.Path}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *HistoryStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *HistoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *HistoryStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RecordTermination archives an execution with its event trail in one
// transaction.
func (s *HistoryStore) RecordTermination(ctx context.Context, exec *Execution) error {
	if !exec.Reason.Valid() {
		return fmt.Errorf("invalid termination reason: %q", exec.Reason)
	}

	details, err := marshalDetails(exec.Details)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO executions (
			plan_id, owner, instrument, quorum, committed, reason,
			details, record_path, started_at, terminated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		exec.PlanID,
		exec.Owner,
		exec.Instrument,
		exec.Quorum,
		exec.Committed,
		exec.Reason,
		details,
		exec.RecordPath,
		exec.StartedAt,
		exec.TerminatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to archive execution %s: %w", exec.PlanID, err)
	}

	for _, ev := range exec.Events {
		evDetails, err := marshalDetails(ev.Details)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO execution_events (plan_id, what, details, at)
			VALUES (?, ?, ?, ?)
		`, exec.PlanID, ev.What, evDetails, ev.At)
		if err != nil {
			return fmt.Errorf("failed to archive event for %s: %w", exec.PlanID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive: %w", err)
	}
	return nil
}

// GetExecution retrieves one archived execution with its events.
func (s *HistoryStore) GetExecution(ctx context.Context, planID string) (*Execution, error) {
	exec := &Execution{}
	var details sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT plan_id, owner, instrument, quorum, committed, reason,
		       details, record_path, started_at, terminated_at
		FROM executions
		WHERE plan_id = ?
	`, planID).Scan(
		&exec.PlanID,
		&exec.Owner,
		&exec.Instrument,
		&exec.Quorum,
		&exec.Committed,
		&exec.Reason,
		&details,
		&exec.RecordPath,
		&exec.StartedAt,
		&exec.TerminatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("execution not found: %s", planID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	if exec.Details, err = unmarshalDetails(details); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT what, details, at
		FROM execution_events
		WHERE plan_id = ?
		ORDER BY id ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev ExecutionEvent
		var evDetails sql.NullString
		if err := rows.Scan(&ev.What, &evDetails, &ev.At); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if ev.Details, err = unmarshalDetails(evDetails); err != nil {
			return nil, err
		}
		exec.Events = append(exec.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return exec, nil
}

// ListExecutions lists archived executions newest first. An empty
// reason matches every outcome.
func (s *HistoryStore) ListExecutions(ctx context.Context, reason TerminationReason, limit, offset int) ([]*Execution, error) {
	query := `
		SELECT plan_id, owner, instrument, quorum, committed, reason,
		       details, record_path, started_at, terminated_at
		FROM executions
	`
	args := []any{}
	if reason != "" {
		if !reason.Valid() {
			return nil, fmt.Errorf("invalid termination reason: %q", reason)
		}
		query += " WHERE reason = ?"
		args = append(args, reason)
	}
	query += " ORDER BY terminated_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	execs := []*Execution{}
	for rows.Next() {
		exec := &Execution{}
		var details sql.NullString
		err := rows.Scan(
			&exec.PlanID,
			&exec.Owner,
			&exec.Instrument,
			&exec.Quorum,
			&exec.Committed,
			&exec.Reason,
			&details,
			&exec.RecordPath,
			&exec.StartedAt,
			&exec.TerminatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		if exec.Details, err = unmarshalDetails(details); err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return execs, nil
}

func marshalDetails(details []string) (any, error) {
	if len(details) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal details: %w", err)
	}
	return string(data), nil
}

func unmarshalDetails(raw sql.NullString) ([]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var details []string
	if err := json.Unmarshal([]byte(raw.String), &details); err != nil {
		return nil, fmt.Errorf("failed to unmarshal details: %w", err)
	}
	return details, nil
}
