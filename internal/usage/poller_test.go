package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/apptime/internal/presence"
	"github.com/goodtune/apptime/internal/storage"
	"github.com/goodtune/apptime/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingLog rejects appends for the apps in fail.
type failingLog struct {
	storage.SessionLog
	fail map[string]bool
}

var errDiskFull = errors.New("disk full")

func (l *failingLog) Append(ctx context.Context, record storage.SessionRecord) error {
	if l.fail[record.Entity] {
		return errDiskFull
	}
	return l.SessionLog.Append(ctx, record)
}

type failingStore struct {
	storage.Store
	log *failingLog
}

func (s *failingStore) Sessions() storage.SessionLog { return s.log }

func openTestStore(t *testing.T) storage.Store {
	t.Helper()

	store, err := sqlite.Open(":memory:", 0)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestPoller(t *testing.T, apps []string, oracle presence.Oracle, store storage.Store) (*Poller, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: epoch}
	poller := NewPoller(PollerConfig{Apps: apps, Interval: time.Millisecond}, oracle, store, clock, zerolog.Nop())
	if err := poller.Register(context.Background()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return poller, clock
}

func totals(t *testing.T, store storage.Store) map[string]int64 {
	t.Helper()

	rows, err := store.Sessions().SumByEntity(context.Background())
	if err != nil {
		t.Fatalf("SumByEntity() error = %v", err)
	}
	got := make(map[string]int64, len(rows))
	for _, row := range rows {
		got[row.Name] = row.TotalSeconds
	}
	return got
}

func TestPoller_Register(t *testing.T) {
	store := openTestStore(t)
	newTestPoller(t, []string{"code", "firefox", "nvim"}, presence.NewStatic(), store)

	entities, err := store.Entities().List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entities) != 3 {
		t.Fatalf("registered %d apps, want 3", len(entities))
	}
	for i, name := range []string{"code", "firefox", "nvim"} {
		if entities[i].Name != name {
			t.Errorf("entities[%d] = %q, want %q", i, entities[i].Name, name)
		}
	}
}

func TestPoller_TickRecordsCompletedSession(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	oracle := presence.NewStatic("code")
	poller, clock := newTestPoller(t, []string{"code", "firefox"}, oracle, store)

	for _, secs := range []int{0, 60, 120} {
		clock.Set(at(secs))
		if err := poller.Tick(ctx); err != nil {
			t.Fatalf("Tick() at t=%d error = %v", secs, err)
		}
	}
	if got := totals(t, store); len(got) != 0 {
		t.Fatalf("sessions written while still running: %v", got)
	}

	oracle.Set("code", false)
	clock.Set(at(180))
	if err := poller.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	records, err := store.Sessions().List(ctx, "code")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if !rec.StartTime.Equal(at(0)) || !rec.EndTime.Equal(at(180)) || rec.Seconds != 180 {
		t.Errorf("record = %+v, want start=0 end=180 seconds=180", rec)
	}
	if _, ok := totals(t, store)["firefox"]; ok {
		t.Error("firefox was never running but has a total")
	}
}

func TestPoller_PresenceFailureTreatedAsStopped(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	fail := false
	oracle := presence.OracleFunc(func(context.Context, string) (bool, error) {
		if fail {
			return false, errors.New("process table unavailable")
		}
		return true, nil
	})
	poller, clock := newTestPoller(t, []string{"code"}, oracle, store)

	if err := poller.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	fail = true
	clock.Advance(30 * time.Second)
	if err := poller.Tick(ctx); err != nil {
		t.Fatalf("Tick() with failing oracle error = %v", err)
	}

	if got := totals(t, store)["code"]; got != 30 {
		t.Errorf("code total = %d, want 30", got)
	}
}

func TestPoller_AppendFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	base := openTestStore(t)
	store := &failingStore{Store: base, log: &failingLog{SessionLog: base.Sessions(), fail: map[string]bool{"code": true}}}
	oracle := presence.NewStatic("code")
	poller, clock := newTestPoller(t, []string{"code"}, oracle, store)

	if err := poller.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	oracle.Set("code", false)
	clock.Advance(time.Minute)
	err := poller.Tick(ctx)
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("Tick() error = %v, want %v", err, errDiskFull)
	}
}

func TestPoller_FlushWritesOpenSessionsOnce(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	oracle := presence.NewStatic("firefox")
	poller, clock := newTestPoller(t, []string{"code", "firefox"}, oracle, store)

	clock.Set(at(400))
	if err := poller.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	clock.Set(at(500))
	if err := poller.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := poller.Flush(ctx); err != nil {
		t.Fatalf("second Flush() error = %v", err)
	}

	got := totals(t, store)
	if len(got) != 1 || got["firefox"] != 100 {
		t.Errorf("totals = %v, want only firefox=100", got)
	}
	if poller.Tracker().Len() != 0 {
		t.Error("tracker still has open sessions after flush")
	}
}

func TestPoller_FlushContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	base := openTestStore(t)
	store := &failingStore{Store: base, log: &failingLog{SessionLog: base.Sessions(), fail: map[string]bool{"code": true}}}
	oracle := presence.NewStatic("code", "firefox", "nvim")
	poller, clock := newTestPoller(t, []string{"code", "firefox", "nvim"}, oracle, store)

	if err := poller.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	clock.Advance(10 * time.Second)
	err := poller.Flush(ctx)
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("Flush() error = %v, want %v", err, errDiskFull)
	}

	got := totals(t, base)
	if got["firefox"] != 10 || got["nvim"] != 10 {
		t.Errorf("totals = %v, want firefox and nvim written", got)
	}
	if _, ok := got["code"]; ok {
		t.Error("code append was expected to fail")
	}
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	oracle := presence.NewStatic("code")
	clock := &fakeClock{now: epoch}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := 0
	poller := NewPoller(PollerConfig{
		Apps:     []string{"code"},
		Interval: time.Millisecond,
		Heartbeat: func() {
			ticks++
			clock.Advance(time.Minute)
			if ticks == 3 {
				cancel()
			}
		},
	}, oracle, store, clock, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v, want nil on cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}

	if ticks != 3 {
		t.Errorf("ran %d ticks, want 3", ticks)
	}
	if !poller.Tracker().IsOpen("code") {
		t.Fatal("code should still be open before flush")
	}

	if err := poller.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := totals(t, store)["code"]; got != 180 {
		t.Errorf("code total = %d, want 180", got)
	}
}

func TestPoller_CancelledTickAbandonsRemainingApps(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var asked []string
	oracle := presence.OracleFunc(func(_ context.Context, name string) (bool, error) {
		asked = append(asked, name)
		cancel()
		return true, nil
	})
	poller, _ := newTestPoller(t, []string{"code", "firefox"}, oracle, store)

	if err := poller.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(asked) != 1 || asked[0] != "code" {
		t.Errorf("oracle asked about %v, want only code", asked)
	}
	if !poller.Tracker().IsOpen("code") {
		t.Error("the observation made before cancellation should stand")
	}
}

func TestPoller_ClockStepBackRecordsZeroSeconds(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	oracle := presence.NewStatic("firefox")
	poller, clock := newTestPoller(t, []string{"firefox"}, oracle, store)

	clock.Set(at(600))
	if err := poller.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	// the wall clock is stepped back before the app stops
	oracle.Set("firefox", false)
	clock.Set(at(540))
	if err := poller.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	records, err := store.Sessions().List(ctx, "firefox")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Seconds != 0 {
		t.Errorf("seconds = %d, want 0", rec.Seconds)
	}
	if !rec.StartTime.Equal(at(600)) || !rec.EndTime.Equal(at(540)) {
		t.Errorf("record = %+v, want start=600 end=540", rec)
	}
}
