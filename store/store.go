// Package store keeps a history of completed local RMSD analyses in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tikz/localrmsd/align"
	"github.com/tikz/localrmsd/rmsd"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrNotFound is returned when no run has the requested ID.
	ErrNotFound = errors.New("run not found")

	// ErrNotCompleted is returned when saving a cancelled analysis.
	ErrNotCompleted = errors.New("analysis not completed")
)

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 20

// Run is a stored analysis.
type Run struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"createdAt"`
	A         string      `json:"a"`
	B         string      `json:"b"`
	ChainA    string      `json:"chainA"`
	ChainB    string      `json:"chainB"`
	Window    int         `json:"window"`
	Length    int         `json:"length"`
	GlobalRMS float64     `json:"globalRms"`
	Verdict   string      `json:"verdict"`
	Series    rmsd.Series `json:"series,omitempty"`
	Stats     rmsd.Stats  `json:"stats"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, now: time.Now}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// MigrateUp runs all pending migrations up to the latest version.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// Closing m would close the shared *sql.DB.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}

// MigrateVersion returns the current migration version and dirty state.
// Returns 0, false, nil if no migrations have been applied yet.
func (s *Store) MigrateVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}

	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}

	return m, nil
}

// migrateLogger implements migrate.Logger on top of slog.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	slog.Debug(fmt.Sprintf("[migrate] "+format, v...))
}

func (migrateLogger) Verbose() bool {
	return false
}

// Save stores a completed analysis under a new ID.
func (s *Store) Save(ctx context.Context, res *align.LocalResult) (*Run, error) {
	if res.Outcome != align.Completed {
		return nil, fmt.Errorf("%w: %s vs %s was %s", ErrNotCompleted, res.A, res.B, res.Outcome)
	}

	series, err := json.Marshal(res.Series)
	if err != nil {
		return nil, fmt.Errorf("encode series: %w", err)
	}

	run := &Run{
		ID:        uuid.NewString(),
		CreatedAt: s.now().UTC(),
		A:         res.A,
		B:         res.B,
		ChainA:    res.ChainA,
		ChainB:    res.ChainB,
		Window:    res.Window,
		Length:    res.Length,
		GlobalRMS: res.GlobalRMS,
		Verdict:   res.Compatibility.Verdict.String(),
		Series:    res.Series,
		Stats:     res.Series.Stats(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, structure_a, structure_b, chain_a, chain_b,
			window_size, length, global_rms, verdict, series)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UnixNano(), run.A, run.B, run.ChainA, run.ChainB,
		run.Window, run.Length, run.GlobalRMS, run.Verdict, string(series))
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	return run, nil
}

const runColumns = `id, created_at, structure_a, structure_b, chain_a, chain_b,
	window_size, length, global_rms, verdict, series`

// Get returns the run with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns up to limit runs, newest first. A structure filter keeps the
// runs where it is either side of the comparison.
func (s *Store) List(ctx context.Context, structure string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs
		WHERE ? = '' OR structure_a = ? OR structure_b = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, structure, structure, structure, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run     Run
		created int64
		series  string
	)
	err := sc.Scan(&run.ID, &created, &run.A, &run.B, &run.ChainA, &run.ChainB,
		&run.Window, &run.Length, &run.GlobalRMS, &run.Verdict, &series)
	if err != nil {
		return nil, err
	}

	run.CreatedAt = time.Unix(0, created).UTC()
	if err := json.Unmarshal([]byte(series), &run.Series); err != nil {
		return nil, fmt.Errorf("decode series of run %s: %w", run.ID, err)
	}
	run.Stats = run.Series.Stats()

	return &run, nil
}
