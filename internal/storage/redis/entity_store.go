package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/goodtune/apptime/internal/storage"
	"github.com/redis/go-redis/v9"
)

type entityStore struct {
	client *redis.Client
	script *redis.Script
}

// Ensure returns the id of name, allocating one atomically on first use
func (s *entityStore) Ensure(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("ensure app: empty name")
	}

	keys := []string{keyApps, keyAppIDs, keyAppSeq}
	id, err := s.script.Run(ctx, s.client, keys, name).Int64()
	if err != nil {
		return 0, fmt.Errorf("ensure app %q: %w", name, err)
	}
	return id, nil
}

// Lookup returns the registered app with the given name
func (s *entityStore) Lookup(ctx context.Context, name string) (*storage.Entity, error) {
	id, err := s.client.HGet(ctx, keyApps, name).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup app %q: %w", name, err)
	}
	return &storage.Entity{ID: id, Name: name}, nil
}

// List returns every registered app ordered by id
func (s *entityStore) List(ctx context.Context) ([]storage.Entity, error) {
	data, err := s.client.HGetAll(ctx, keyApps).Result()
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}

	entities := make([]storage.Entity, 0, len(data))
	for name, rawID := range data {
		id, err := parseID(rawID)
		if err != nil {
			return nil, err
		}
		entities = append(entities, storage.Entity{ID: id, Name: name})
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	return entities, nil
}
