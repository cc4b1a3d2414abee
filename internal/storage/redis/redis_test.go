package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/apptime/internal/config"
	"github.com/goodtune/apptime/internal/storage"
	"github.com/goodtune/apptime/internal/storage/storagetest"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays zero
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func TestStoreConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, _ := setupTestStore(t)
		return store
	})
}

func TestOpen_InvalidTimeout(t *testing.T) {
	_, err := Open(config.RedisConfig{Host: "localhost", DialTimeout: "soon", ReadTimeout: "1s", WriteTimeout: "1s"})
	if err == nil {
		t.Fatal("expected an error for an invalid dial timeout")
	}
}

func TestOpen_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(config.RedisConfig{Host: addr, DialTimeout: "200ms", ReadTimeout: "200ms", WriteTimeout: "200ms"})
	if err == nil {
		t.Fatal("expected an error when Redis is not reachable")
	}
}

func TestSessionStore_TotalsKeyTracksAppends(t *testing.T) {
	store, mr := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	id, err := store.Entities().Ensure(ctx, "code")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	for _, secs := range []int64{100, 50} {
		record := storage.SessionRecord{EntityID: id, StartTime: start, EndTime: start.Add(time.Duration(secs) * time.Second), Seconds: secs}
		if err := store.Sessions().Append(ctx, record); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	if got := mr.HGet(keyTotals, "1"); got != "150" {
		t.Errorf("totals[1] = %q, want 150", got)
	}

	entries, err := mr.List(keySessions)
	if err != nil {
		t.Fatalf("List(%s) error = %v", keySessions, err)
	}
	if len(entries) != 2 {
		t.Errorf("session log has %d entries, want 2", len(entries))
	}
}

func TestStore_ResetDeletesKeys(t *testing.T) {
	store, mr := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if _, err := store.Entities().Ensure(ctx, "code"); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	for _, key := range []string{keyApps, keyAppIDs, keyAppSeq, keySessions, keyTotals} {
		if mr.Exists(key) {
			t.Errorf("key %s survived reset", key)
		}
	}
}
