// Package presence answers whether a named process is currently running.
package presence

import (
	"context"
	"sync"
)

// Oracle reports whether a process named name is running right now.
type Oracle interface {
	IsRunning(ctx context.Context, name string) (bool, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, name string) (bool, error)

// IsRunning calls f(ctx, name).
func (f OracleFunc) IsRunning(ctx context.Context, name string) (bool, error) {
	return f(ctx, name)
}

// Static is an Oracle backed by a fixed set of running names. It is safe for
// concurrent use and may be updated between queries.
type Static struct {
	mu      sync.RWMutex
	running map[string]bool
}

// NewStatic returns a Static oracle reporting names as running.
func NewStatic(names ...string) *Static {
	s := &Static{running: make(map[string]bool, len(names))}
	for _, name := range names {
		s.running[name] = true
	}
	return s
}

// Set marks name as running or stopped.
func (s *Static) Set(name string, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if running {
		s.running[name] = true
	} else {
		delete(s.running, name)
	}
}

// IsRunning implements Oracle.
func (s *Static) IsRunning(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.running[name], nil
}
