package main

import (
	"context"
	"testing"
	"time"

	"github.com/goodtune/apptime/internal/presence"
	"github.com/goodtune/apptime/internal/storage/sqlite"
	"github.com/goodtune/apptime/internal/usage"
	"github.com/rs/zerolog"
)

func newRegisterTestPoller(t *testing.T) (*usage.Poller, *sqlite.Store) {
	t.Helper()

	store, err := sqlite.Open(":memory:", 0)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	poller := usage.NewPoller(
		usage.PollerConfig{Apps: []string{"code", "firefox"}, Interval: time.Second},
		presence.NewStatic(),
		store,
		nil,
		zerolog.Nop(),
	)
	return poller, store
}

func TestRegisterApps(t *testing.T) {
	poller, store := newRegisterTestPoller(t)

	stopped, err := registerApps(context.Background(), poller)
	if err != nil || stopped {
		t.Fatalf("registerApps() = %v, %v; want false, nil", stopped, err)
	}

	entities, err := store.Entities().List(context.Background())
	if err != nil {
		t.Fatalf("list apps: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("registered %d apps, want 2", len(entities))
	}
}

func TestRegisterApps_SignalDuringStartup(t *testing.T) {
	poller, _ := newRegisterTestPoller(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stopped, err := registerApps(ctx, poller)
	if err != nil {
		t.Fatalf("registerApps() error = %v, want nil on cancellation", err)
	}
	if !stopped {
		t.Fatal("registerApps() should report a stop on cancellation")
	}
}
