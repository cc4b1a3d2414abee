package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/apptime/internal/metrics"
	"github.com/goodtune/apptime/internal/presence"
	"github.com/goodtune/apptime/internal/storage"
	"github.com/rs/zerolog"
)

// PollerConfig holds the poll loop settings.
type PollerConfig struct {
	// Apps is the watched set, checked in this order every tick.
	Apps []string

	// Interval is the sleep between ticks.
	Interval time.Duration

	// Heartbeat, when set, is called after every completed tick. It reports
	// loop progress to the service watchdog.
	Heartbeat func()
}

// Poller drives the tracker: each tick it asks the oracle about every watched
// app and persists sessions as they complete.
type Poller struct {
	cfg     PollerConfig
	oracle  presence.Oracle
	tracker *Tracker
	store   storage.Store
	clock   Clock
	logger  zerolog.Logger

	mu  sync.Mutex
	ids map[string]int64

	flushOnce sync.Once
	flushErr  error
}

// NewPoller creates a poll loop. A nil clock uses the system clock.
func NewPoller(cfg PollerConfig, oracle presence.Oracle, store storage.Store, clock Clock, logger zerolog.Logger) *Poller {
	if clock == nil {
		clock = RealClock{}
	}

	return &Poller{
		cfg:     cfg,
		oracle:  oracle,
		tracker: NewTracker(logger),
		store:   store,
		clock:   clock,
		logger:  logger.With().Str("component", "poller").Logger(),
		ids:     make(map[string]int64),
	}
}

// Tracker returns the session tracker owned by the poller.
func (p *Poller) Tracker() *Tracker {
	return p.tracker
}

// Register makes sure every watched app has a registry id. It is idempotent.
func (p *Poller) Register(ctx context.Context) error {
	for _, app := range p.cfg.Apps {
		if _, err := p.entityID(ctx, app); err != nil {
			return err
		}
	}
	return nil
}

// Run polls until ctx is cancelled. It returns nil on cancellation and an
// error only when a completed session could not be written.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Register(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	p.logger.Info().
		Strs("apps", p.cfg.Apps).
		Dur("interval", p.cfg.Interval).
		Msg("Tracking started")

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := p.Tick(ctx); err != nil {
			return err
		}

		timer := time.NewTimer(p.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Debug().Msg("Poll loop cancelled")
			return nil
		case <-timer.C:
		}
	}
}

// Tick checks every watched app once, using a single timestamp for the whole
// tick. A cancelled ctx abandons the remaining apps without error.
func (p *Poller) Tick(ctx context.Context) error {
	began := time.Now()
	now := p.clock.Now()

	for _, app := range p.cfg.Apps {
		if ctx.Err() != nil {
			return nil
		}

		running, err := p.oracle.IsRunning(ctx, app)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Debug().Err(err).Str("app", app).Msg("Presence query failed, treating app as not running")
			metrics.PresenceFailures.WithLabelValues(app).Inc()
			running = false
		}

		session, done := p.tracker.Observe(app, running, now)
		if !done {
			continue
		}

		// a session that has left the tracker must reach storage even if
		// shutdown starts mid-write
		if err := p.record(context.WithoutCancel(ctx), session); err != nil {
			return err
		}
	}

	metrics.OpenSessions.Set(float64(p.tracker.Len()))
	metrics.TickDuration.Observe(time.Since(began).Seconds())

	if p.cfg.Heartbeat != nil {
		p.cfg.Heartbeat()
	}

	return nil
}

// Flush closes every open session at the current time and writes it. It runs
// at most once; later calls return the first result. Individual write
// failures do not stop the remaining sessions from being written.
func (p *Poller) Flush(ctx context.Context) error {
	p.flushOnce.Do(func() {
		sessions := p.tracker.FlushAll(p.clock.Now())
		p.logger.Info().Int("open", len(sessions)).Msg("Flushing open sessions")

		var errs []error
		for _, session := range sessions {
			if err := p.record(ctx, session); err != nil {
				errs = append(errs, err)
			}
		}

		metrics.OpenSessions.Set(0)
		p.flushErr = errors.Join(errs...)
	})

	return p.flushErr
}

func (p *Poller) record(ctx context.Context, session Session) error {
	id, err := p.entityID(ctx, session.Entity)
	if err != nil {
		p.logger.Error().Err(err).Str("app", session.Entity).Msg("Session lost, app is not registered")
		return err
	}

	if err := p.store.Sessions().Append(ctx, session.Record(id)); err != nil {
		metrics.StorageErrors.WithLabelValues("append").Inc()
		p.logger.Error().
			Err(err).
			Str("app", session.Entity).
			Time("start", session.Start).
			Time("end", session.End).
			Int64("seconds", session.Seconds()).
			Msg("Failed to record session")
		return fmt.Errorf("record session for %s: %w", session.Entity, err)
	}

	metrics.SessionsRecorded.WithLabelValues(session.Entity).Inc()
	metrics.SecondsTracked.WithLabelValues(session.Entity).Add(float64(session.Seconds()))

	p.logger.Info().
		Str("app", session.Entity).
		Time("start", session.Start).
		Time("end", session.End).
		Int64("seconds", session.Seconds()).
		Bool("clock_anomaly", session.ClockAnomaly).
		Msg("Recorded session")

	return nil
}

// entityID resolves the registry id of app, registering it on first use.
func (p *Poller) entityID(ctx context.Context, app string) (int64, error) {
	p.mu.Lock()
	id, ok := p.ids[app]
	p.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := p.store.Entities().Ensure(ctx, app)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("ensure").Inc()
		return 0, fmt.Errorf("register app %s: %w", app, err)
	}

	p.mu.Lock()
	p.ids[app] = id
	p.mu.Unlock()

	return id, nil
}
