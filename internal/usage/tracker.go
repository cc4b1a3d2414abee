package usage

import (
	"sort"
	"sync"
	"time"

	"github.com/goodtune/apptime/internal/metrics"
	"github.com/rs/zerolog"
)

// Tracker reconstructs running sessions from periodic presence observations.
//
// It holds, per app, either nothing (not running) or the time the app was
// first seen running. Each app has at most one open session.
type Tracker struct {
	started map[string]time.Time
	logger  zerolog.Logger
	mu      sync.Mutex
}

// NewTracker creates a tracker with no open sessions
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		started: make(map[string]time.Time),
		logger:  logger.With().Str("component", "session-tracker").Logger(),
	}
}

// Observe applies one presence observation for entity taken at now. It
// returns the completed session when the app was running and has stopped.
func (t *Tracker) Observe(entity string, running bool, now time.Time) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start, open := t.started[entity]

	switch {
	case running && !open:
		t.started[entity] = now.Round(0)
		t.logger.Debug().Str("app", entity).Time("start", now).Msg("App has just started running")
		return Session{}, false

	case running && open:
		t.logger.Debug().Str("app", entity).Time("since", start).Msg("App is still running")
		return Session{}, false

	case !running && open:
		delete(t.started, entity)
		session := t.close(entity, start, now)
		t.logger.Debug().
			Str("app", entity).
			Dur("duration", session.Duration).
			Msg("App has stopped running")
		return session, true

	default:
		t.logger.Debug().Str("app", entity).Msg("App is not running")
		return Session{}, false
	}
}

// FlushAll closes every open session at now and empties the tracker.
// Sessions are returned ordered by app name.
func (t *Tracker) FlushAll(now time.Time) []Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	sessions := make([]Session, 0, len(t.started))
	for entity, start := range t.started {
		sessions = append(sessions, t.close(entity, start, now))
		t.logger.Debug().Str("app", entity).Msg("App was running when shutdown was requested")
	}
	t.started = make(map[string]time.Time)

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Entity < sessions[j].Entity })
	return sessions
}

// Open returns a copy of the currently open sessions keyed by app.
func (t *Tracker) Open() map[string]time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	open := make(map[string]time.Time, len(t.started))
	for entity, start := range t.started {
		open[entity] = start
	}
	return open
}

// IsOpen reports whether entity currently has an open session.
func (t *Tracker) IsOpen(entity string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, open := t.started[entity]
	return open
}

// Len returns the number of open sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.started)
}

// close builds the completed session (must be called with lock held).
// A clock that moved backwards yields a zero-length session flagged as an anomaly.
func (t *Tracker) close(entity string, start, end time.Time) Session {
	end = end.Round(0)
	session := Session{
		Entity:   entity,
		Start:    start,
		End:      end,
		Duration: end.Sub(start),
	}

	if session.Duration < 0 {
		t.logger.Warn().
			Str("app", entity).
			Time("start", start).
			Time("end", end).
			Dur("skew", -session.Duration).
			Msg("Clock moved backwards, clamping session duration to zero")

		session.Duration = 0
		session.ClockAnomaly = true
		metrics.ClockAnomalies.WithLabelValues(entity).Inc()
	}

	return session
}
