package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/goodtune/apptime/internal/storage"
	"github.com/redis/go-redis/v9"
)

type sessionStore struct {
	client *redis.Client
	script *redis.Script
}

// Append atomically pushes the record and increments the app total
func (s *sessionStore) Append(ctx context.Context, record storage.SessionRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	data, err := encodeSession(record)
	if err != nil {
		return err
	}

	keys := []string{keyAppIDs, keySessions, keyTotals}
	args := []interface{}{record.EntityID, data, record.Seconds}

	err = s.script.Run(ctx, s.client, keys, args...).Err()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: id %d", storage.ErrUnknownEntity, record.EntityID)
	}
	if err != nil {
		return fmt.Errorf("append session: %w", err)
	}
	return nil
}

// SumByEntity reads the running totals maintained by Append
func (s *sessionStore) SumByEntity(ctx context.Context) ([]storage.EntityTotal, error) {
	pipe := s.client.Pipeline()
	totalsCmd := pipe.HGetAll(ctx, keyTotals)
	namesCmd := pipe.HGetAll(ctx, keyAppIDs)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("sum sessions: %w", err)
	}

	names := namesCmd.Val()
	totals := make([]storage.EntityTotal, 0, len(totalsCmd.Val()))
	for rawID, rawSeconds := range totalsCmd.Val() {
		name, ok := names[rawID]
		if !ok {
			continue
		}
		seconds, err := strconv.ParseInt(rawSeconds, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse total for app %s: %w", rawID, err)
		}
		totals = append(totals, storage.EntityTotal{Name: name, TotalSeconds: seconds})
	}
	return totals, nil
}

// List returns logged sessions, optionally for a single app
func (s *sessionStore) List(ctx context.Context, name string) ([]storage.SessionRecord, error) {
	pipe := s.client.Pipeline()
	logCmd := pipe.LRange(ctx, keySessions, 0, -1)
	namesCmd := pipe.HGetAll(ctx, keyAppIDs)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	raw := logCmd.Val()
	names := namesCmd.Val()

	records := make([]storage.SessionRecord, 0, len(raw))
	for _, item := range raw {
		record, err := decodeSession(item)
		if err != nil {
			return nil, err
		}
		record.Entity = names[strconv.FormatInt(record.EntityID, 10)]
		if name != "" && record.Entity != name {
			continue
		}
		records = append(records, record)
	}

	storage.SortByStart(records)
	return records, nil
}
