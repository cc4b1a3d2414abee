// Package storagetest holds behaviour tests shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/apptime/internal/storage"
	"github.com/google/go-cmp/cmp"
)

// Opener returns a fresh, empty store. The caller closes it.
type Opener func(t *testing.T) storage.Store

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func at(secs int) time.Time {
	return base.Add(time.Duration(secs) * time.Second)
}

// Run exercises the storage.Store contract against the backend from open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store storage.Store)
	}{
		{"EnsureIsIdempotent", testEnsureIsIdempotent},
		{"EnsureRejectsEmptyName", testEnsureRejectsEmptyName},
		{"LookupMissing", testLookupMissing},
		{"SumByEntity", testSumByEntity},
		{"AppendUnknownEntity", testAppendUnknownEntity},
		{"AppendInvalidSession", testAppendInvalidSession},
		{"AppendClampedSession", testAppendClampedSession},
		{"ListOrdersByStart", testListOrdersByStart},
		{"Reset", testReset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := open(t)
			defer func() { _ = store.Close() }()
			tt.fn(t, store)
		})
	}
}

func mustEnsure(t *testing.T, store storage.Store, name string) int64 {
	t.Helper()

	id, err := store.Entities().Ensure(context.Background(), name)
	if err != nil {
		t.Fatalf("ensure %q: %v", name, err)
	}
	return id
}

func mustAppend(t *testing.T, store storage.Store, id int64, start, end time.Time) {
	t.Helper()

	record := storage.SessionRecord{
		EntityID:  id,
		StartTime: start,
		EndTime:   end,
		Seconds:   int64(end.Sub(start) / time.Second),
	}
	if err := store.Sessions().Append(context.Background(), record); err != nil {
		t.Fatalf("append session for %d: %v", id, err)
	}
}

func sums(t *testing.T, store storage.Store) map[string]int64 {
	t.Helper()

	rows, err := store.Sessions().SumByEntity(context.Background())
	if err != nil {
		t.Fatalf("sum by entity: %v", err)
	}
	got := make(map[string]int64, len(rows))
	for _, row := range rows {
		got[row.Name] = row.TotalSeconds
	}
	return got
}

func testEnsureIsIdempotent(t *testing.T, store storage.Store) {
	ctx := context.Background()

	code := mustEnsure(t, store, "code")
	firefox := mustEnsure(t, store, "firefox")
	if again := mustEnsure(t, store, "code"); again != code {
		t.Fatalf("second ensure returned %d, want %d", again, code)
	}
	if code == firefox {
		t.Fatalf("distinct apps share id %d", code)
	}

	entity, err := store.Entities().Lookup(ctx, "firefox")
	if err != nil {
		t.Fatalf("lookup firefox: %v", err)
	}
	if entity.ID != firefox || entity.Name != "firefox" {
		t.Errorf("lookup = %+v, want id %d", entity, firefox)
	}

	entities, err := store.Entities().List(ctx)
	if err != nil {
		t.Fatalf("list apps: %v", err)
	}
	want := []storage.Entity{{ID: code, Name: "code"}, {ID: firefox, Name: "firefox"}}
	if diff := cmp.Diff(want, entities); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}
}

func testEnsureRejectsEmptyName(t *testing.T, store storage.Store) {
	if _, err := store.Entities().Ensure(context.Background(), ""); err == nil {
		t.Fatal("expected an error for an empty app name")
	}
}

func testLookupMissing(t *testing.T, store storage.Store) {
	_, err := store.Entities().Lookup(context.Background(), "spotify")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("lookup error = %v, want ErrNotFound", err)
	}
}

func testSumByEntity(t *testing.T, store storage.Store) {
	code := mustEnsure(t, store, "code")
	firefox := mustEnsure(t, store, "firefox")
	mustEnsure(t, store, "nvim")

	if got := sums(t, store); len(got) != 0 {
		t.Fatalf("sums on an empty log = %v", got)
	}

	mustAppend(t, store, code, at(0), at(100))
	mustAppend(t, store, code, at(200), at(250))
	mustAppend(t, store, firefox, at(0), at(30))

	want := map[string]int64{"code": 150, "firefox": 30}
	if diff := cmp.Diff(want, sums(t, store)); diff != "" {
		t.Errorf("sums mismatch (-want +got):\n%s", diff)
	}
}

func testAppendUnknownEntity(t *testing.T, store storage.Store) {
	mustEnsure(t, store, "code")

	err := store.Sessions().Append(context.Background(), storage.SessionRecord{
		EntityID:  9999,
		StartTime: at(0),
		EndTime:   at(10),
		Seconds:   10,
	})
	if !errors.Is(err, storage.ErrUnknownEntity) {
		t.Fatalf("append error = %v, want ErrUnknownEntity", err)
	}
	if got := sums(t, store); len(got) != 0 {
		t.Errorf("rejected append left data behind: %v", got)
	}
}

func testAppendInvalidSession(t *testing.T, store storage.Store) {
	id := mustEnsure(t, store, "code")

	records := []storage.SessionRecord{
		{EntityID: id, StartTime: at(0), EndTime: at(10), Seconds: -1},
		{EntityID: id, StartTime: at(10), EndTime: at(0), Seconds: 10},
		{EntityID: 0, StartTime: at(0), EndTime: at(10), Seconds: 10},
	}
	for _, record := range records {
		err := store.Sessions().Append(context.Background(), record)
		if !errors.Is(err, storage.ErrInvalidSession) {
			t.Errorf("append %+v error = %v, want ErrInvalidSession", record, err)
		}
	}
}

func testAppendClampedSession(t *testing.T, store storage.Store) {
	id := mustEnsure(t, store, "code")

	record := storage.SessionRecord{EntityID: id, StartTime: at(100), EndTime: at(90), Seconds: 0}
	if err := store.Sessions().Append(context.Background(), record); err != nil {
		t.Fatalf("append clamped session: %v", err)
	}

	if got := sums(t, store)["code"]; got != 0 {
		t.Errorf("code total = %d, want 0", got)
	}
}

func testListOrdersByStart(t *testing.T, store storage.Store) {
	ctx := context.Background()
	code := mustEnsure(t, store, "code")
	foot := mustEnsure(t, store, "foot")

	mustAppend(t, store, code, at(300), at(400))
	mustAppend(t, store, foot, at(50), at(60))
	mustAppend(t, store, code, at(0), at(100))

	records, err := store.Sessions().List(ctx, "code")
	if err != nil {
		t.Fatalf("list code: %v", err)
	}
	want := []storage.SessionRecord{
		{EntityID: code, Entity: "code", StartTime: at(0), EndTime: at(100), Seconds: 100},
		{EntityID: code, Entity: "code", StartTime: at(300), EndTime: at(400), Seconds: 100},
	}
	if diff := cmp.Diff(want, records, timeEqual); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}

	all, err := store.Sessions().List(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	var names []string
	for _, record := range all {
		names = append(names, record.Entity)
	}
	if diff := cmp.Diff([]string{"code", "foot", "code"}, names); diff != "" {
		t.Errorf("list all order mismatch (-want +got):\n%s", diff)
	}

	none, err := store.Sessions().List(ctx, "spotify")
	if err != nil {
		t.Fatalf("list spotify: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("list spotify = %v, want none", none)
	}
}

func testReset(t *testing.T, store storage.Store) {
	ctx := context.Background()
	id := mustEnsure(t, store, "code")
	mustAppend(t, store, id, at(0), at(60))

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	entities, err := store.Entities().List(ctx)
	if err != nil {
		t.Fatalf("list apps: %v", err)
	}
	if len(entities) != 0 {
		t.Errorf("apps after reset = %v", entities)
	}
	if got := sums(t, store); len(got) != 0 {
		t.Errorf("sums after reset = %v", got)
	}
	if _, err := store.Entities().Lookup(ctx, "code"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("lookup after reset error = %v, want ErrNotFound", err)
	}

	id = mustEnsure(t, store, "code")
	mustAppend(t, store, id, at(0), at(5))
	if got := sums(t, store)["code"]; got != 5 {
		t.Errorf("code total after reset = %d, want 5", got)
	}
}

// timeEqual compares time.Time values by instant, ignoring location.
var timeEqual = cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })
