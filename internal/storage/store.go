package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a record is missing from storage.
	ErrNotFound = errors.New("storage: record not found")

	// ErrUnknownEntity is returned when a session references an entity id
	// that was never registered.
	ErrUnknownEntity = errors.New("storage: unknown entity")

	// ErrInvalidSession is returned for session records that cannot be
	// persisted (negative duration, end before start, missing entity).
	ErrInvalidSession = errors.New("storage: invalid session")
)

// Store represents the root storage interface.
type Store interface {
	Close() error
	Entities() EntityRegistry
	Sessions() SessionLog

	// Reset drops the entity registry and the session log. Irreversible.
	Reset(ctx context.Context) error
}

// EntityRegistry maps tracked app names to stable integer ids.
// Rows are created once and never updated.
type EntityRegistry interface {
	Ensure(ctx context.Context, name string) (int64, error)
	Lookup(ctx context.Context, name string) (*Entity, error)
	List(ctx context.Context) ([]Entity, error)
}

// SessionLog is the append-only log of completed sessions.
type SessionLog interface {
	Append(ctx context.Context, record SessionRecord) error
	SumByEntity(ctx context.Context) ([]EntityTotal, error)
	// List returns the sessions of one entity ordered by start time, or of
	// every entity when name is empty.
	List(ctx context.Context, name string) ([]SessionRecord, error)
}
