package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goodtune/apptime/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"

	_ "modernc.org/sqlite"
)

// DefaultEntityCacheSize bounds the name -> id cache of the entity registry.
const DefaultEntityCacheSize = 128

// Store implements storage.Store on top of a SQLite database file.
// The layout is an "apps" registry and a "time_tracking" session log.
// Queries address rows by rowid, so files written by the earlier tracker,
// whose tables have no id column, open and read unchanged.
type Store struct {
	db       *sql.DB
	entities *entityStore
	sessions *sessionStore
}

// Open opens (creating if needed) the SQLite database at path and applies
// any pending migrations.
func Open(path string, cacheSize int) (*Store, error) {
	if path != ":memory:" {
		if err := storage.EnsureParentDir(path); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite limitation
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := runMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if cacheSize <= 0 {
		cacheSize = DefaultEntityCacheSize
	}
	cache, err := lru.New[string, int64](cacheSize)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create entity cache: %w", err)
	}

	return &Store{
		db:       db,
		entities: &entityStore{db: db, cache: cache},
		sessions: &sessionStore{db: db},
	}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Entities returns the app registry.
func (s *Store) Entities() storage.EntityRegistry { return s.entities }

// Sessions returns the session log.
func (s *Store) Sessions() storage.SessionLog { return s.sessions }

// Reset drops both relations and recreates them empty.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}

	for _, stmt := range []string{
		`DROP TABLE IF EXISTS time_tracking`,
		`DROP TABLE IF EXISTS apps`,
		`DELETE FROM migrations`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("reset: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}

	s.entities.cache.Purge()

	return runMigrations(ctx, s.db)
}

// runMigrations applies all pending migrations in version order.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for i, migration := range migrations {
		version := i + 1
		if version <= currentVersion {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
		}

		if _, err := tx.ExecContext(ctx, migration); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", version, err)
		}

		if _, err := tx.ExecContext(ctx, "INSERT INTO migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	return nil
}

// migrations are applied in slice order; version = index + 1.
var migrations = []string{
	migration001Apps,
	migration002TimeTracking,
}

const migration001Apps = `
CREATE TABLE IF NOT EXISTS apps (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);
`

const migration002TimeTracking = `
CREATE TABLE IF NOT EXISTS time_tracking (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	app_id INTEGER NOT NULL REFERENCES apps(id),
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	seconds INTEGER NOT NULL CHECK (seconds >= 0)
);

CREATE INDEX IF NOT EXISTS idx_time_tracking_app ON time_tracking(app_id, start_time);
`
