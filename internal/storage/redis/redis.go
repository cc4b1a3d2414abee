package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/apptime/internal/config"
	"github.com/goodtune/apptime/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	keyApps     = "apptime:apps"
	keyAppIDs   = "apptime:apps:ids"
	keyAppSeq   = "apptime:apps:seq"
	keySessions = "apptime:sessions"
	keyTotals   = "apptime:totals"
)

// Store implements the storage.Store interface using Redis
type Store struct {
	client       *redis.Client
	entityStore  *entityStore
	sessionStore *sessionStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Host may already carry the port
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client:       client,
		entityStore:  &entityStore{client: client, script: redis.NewScript(ensureAppScript)},
		sessionStore: &sessionStore{client: client, script: redis.NewScript(appendSessionScript)},
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Entities returns the EntityRegistry implementation
func (s *Store) Entities() storage.EntityRegistry {
	return s.entityStore
}

// Sessions returns the SessionLog implementation
func (s *Store) Sessions() storage.SessionLog {
	return s.sessionStore
}

// Reset deletes every apptime key.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, keyApps, keyAppIDs, keyAppSeq, keySessions, keyTotals).Err(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}
