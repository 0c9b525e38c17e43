// Package runstore keeps a local sqlite ledger of export runs so earlier
// exports stay inspectable after their console output is gone.
package runstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run status values. Failed runs are recorded too; their stats cover
// whatever completed before the failure.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one row of the export ledger.
type Run struct {
	ID          int64
	SceneName   string
	OutputRoot  string
	Frames      int
	Annotations int
	Instances   int
	ErrorCount  int
	Status      string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Duration is how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store wraps the ledger database handle.
type Store struct {
	*sql.DB
}

// Open opens the ledger at path, creating it if needed, and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}

	s := &Store{db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Note: we don't close m because it would close the underlying DB
	// connection.
	m.Log = &migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// RecordRun appends one run to the ledger and returns its row id.
func (s *Store) RecordRun(run Run) (int64, error) {
	res, err := s.Exec(`
		INSERT INTO export_runs (
			scene_name, output_root, frames_processed, annotations_converted,
			instances_created, error_count, status, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.SceneName, run.OutputRoot, run.Frames, run.Annotations,
		run.Instances, run.ErrorCount, run.Status,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("record run: %w", err)
	}
	return res.LastInsertId()
}

// ListRuns returns the most recent runs, newest first. A non-positive
// limit returns the default page of 20.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.Query(`
		SELECT id, scene_name, output_root, frames_processed, annotations_converted,
		       instances_created, error_count, status, started_at, finished_at
		FROM export_runs
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.SceneName, &r.OutputRoot, &r.Frames, &r.Annotations,
			&r.Instances, &r.ErrorCount, &r.Status, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", started, err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at %q: %w", finished, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// migrateLogger routes golang-migrate output through the standard logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}
