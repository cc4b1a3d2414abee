package presence

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// commLen is the length Linux truncates process names to (TASK_COMM_LEN - 1).
const commLen = 15

// DefaultSnapshotTTL bounds how long one process listing answers queries.
// A poll tick asks about every watched app in quick succession, so one
// listing serves the whole tick.
const DefaultSnapshotTTL = time.Second

// Lister returns the names of every running process.
type Lister func(ctx context.Context) ([]string, error)

// ProcessTable is an Oracle that matches against the host's process table.
type ProcessTable struct {
	list   Lister
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.Mutex
	names   map[string]bool
	fetched time.Time
}

// ProcessTableOption configures a ProcessTable.
type ProcessTableOption func(*ProcessTable)

// WithLister replaces the gopsutil process listing.
func WithLister(list Lister) ProcessTableOption {
	return func(p *ProcessTable) { p.list = list }
}

// WithSnapshotTTL sets how long a listing is reused. Zero disables reuse.
func WithSnapshotTTL(ttl time.Duration) ProcessTableOption {
	return func(p *ProcessTable) { p.ttl = ttl }
}

// WithNow sets the time source used for snapshot expiry.
func WithNow(now func() time.Time) ProcessTableOption {
	return func(p *ProcessTable) { p.now = now }
}

// NewProcessTable creates a process-table oracle.
func NewProcessTable(logger zerolog.Logger, opts ...ProcessTableOption) *ProcessTable {
	p := &ProcessTable{
		list:   ListProcessNames,
		ttl:    DefaultSnapshotTTL,
		now:    time.Now,
		logger: logger.With().Str("component", "presence").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsRunning reports whether any process is named name. Names longer than the
// kernel's comm limit also match their truncated form.
func (p *ProcessTable) IsRunning(ctx context.Context, name string) (bool, error) {
	names, err := p.snapshot(ctx)
	if err != nil {
		return false, err
	}

	if names[name] {
		return true, nil
	}
	if len(name) > commLen && names[name[:commLen]] {
		return true, nil
	}
	return false, nil
}

// Invalidate drops the cached listing so the next query re-reads the table.
func (p *ProcessTable) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.names = nil
}

func (p *ProcessTable) snapshot(ctx context.Context) (map[string]bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.names != nil && p.ttl > 0 && now.Sub(p.fetched) < p.ttl {
		return p.names, nil
	}

	list, err := p.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	names := make(map[string]bool, len(list))
	for _, name := range list {
		if name != "" {
			names[name] = true
		}
	}

	p.names = names
	p.fetched = now
	p.logger.Debug().Int("processes", len(list)).Msg("Refreshed process table")
	return names, nil
}

// ListProcessNames returns the name and executable base name of every process
// visible to the current user. Processes that exit mid-scan are skipped.
func ListProcessNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(procs))
	for _, proc := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		names = append(names, name)

		// comm can differ from the executable (renamed threads, wrappers)
		if exe, err := proc.ExeWithContext(ctx); err == nil && exe != "" {
			base := strings.TrimSuffix(filepath.Base(exe), " (deleted)")
			if base != name {
				names = append(names, base)
			}
		}
	}
	return names, nil
}
