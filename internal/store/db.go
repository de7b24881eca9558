// Package store persists clipboard history in SQLite and owns its uniqueness
// and ordering rules.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

var (
	// ErrStorageUnavailable wraps every failure of the underlying database.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNotFound is returned when an operation targets an unknown id.
	ErrNotFound = errors.New("entry not found")
)

// Clock supplies the time stamped onto entries.
type Clock interface {
	NowUTC() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) NowUTC() time.Time {
	return time.Now().UTC()
}

// Store is the clipboard history database. Mutations are serialised through
// a single writer; reads run concurrently and see committed data only.
type Store struct {
	db    *sqlx.DB
	path  string
	clock Clock

	// writeMu serialises write transactions.
	writeMu sync.Mutex
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces the clock used for entry timestamps.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Open opens (creating if needed) the database at path and brings its
// schema up to date.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrStorageUnavailable, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", ErrStorageUnavailable, err)
	}

	s := New(db, opts...)
	s.path = path

	if _, err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	slog.Debug("history database ready", "path", path)
	return s, nil
}

// New wraps an already opened database without touching its schema.
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, clock: SystemClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the database file path, empty for stores built with New.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Close()
}

// Ping checks if the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func newProvider(s *Store) (*goose.Provider, error) {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(goose.DialectSQLite3, s.db.DB, fsys)
}

// Migrate applies pending schema migrations and returns the resulting
// schema version.
func (s *Store) Migrate(ctx context.Context) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	provider, err := newProvider(s)
	if err != nil {
		return 0, fmt.Errorf("failed to load migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, unavailable("migrate", err)
	}
	for _, r := range results {
		slog.Info("applied migration", "version", r.Source.Version, "duration_ms", r.Duration.Milliseconds())
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, unavailable("schema version", err)
	}
	return version, nil
}

// SchemaVersion returns the applied schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	provider, err := newProvider(s)
	if err != nil {
		return 0, fmt.Errorf("failed to load migrations: %w", err)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, unavailable("schema version", err)
	}
	return version, nil
}

// withTx runs fn inside a write transaction under the writer lock.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable(op, err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return unavailable(op, err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable(op, err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
