package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goodtune/apptime/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

type entityStore struct {
	db    *sql.DB
	cache *lru.Cache[string, int64]
}

// Ensure returns the id registered for name, inserting a row on first use.
func (s *entityStore) Ensure(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("ensure app: empty name")
	}
	if id, ok := s.cache.Get(name); ok {
		return id, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin ensure app %q: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO apps (name) VALUES (?)`, name); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("insert app %q: %w", name, err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT rowid FROM apps WHERE name = ?`, name).Scan(&id); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("select app %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit app %q: %w", name, err)
	}

	s.cache.Add(name, id)
	return id, nil
}

func (s *entityStore) Lookup(ctx context.Context, name string) (*storage.Entity, error) {
	if id, ok := s.cache.Get(name); ok {
		return &storage.Entity{ID: id, Name: name}, nil
	}

	entity := storage.Entity{Name: name}
	err := s.db.QueryRowContext(ctx, `SELECT rowid FROM apps WHERE name = ?`, name).Scan(&entity.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup app %q: %w", name, err)
	}

	s.cache.Add(name, entity.ID)
	return &entity, nil
}

func (s *entityStore) List(ctx context.Context) ([]storage.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT rowid, name FROM apps WHERE name IS NOT NULL ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	defer rows.Close()

	entities := make([]storage.Entity, 0)
	for rows.Next() {
		var entity storage.Entity
		if err := rows.Scan(&entity.ID, &entity.Name); err != nil {
			return nil, fmt.Errorf("scan app: %w", err)
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}
