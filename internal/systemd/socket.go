package systemd

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
)

// MetricsSocketName is the FileDescriptorName= of the metrics socket in
// apptime.socket.
const MetricsSocketName = "metrics"

// Listeners holds all systemd-activated listeners
type Listeners struct {
	Metrics   net.Listener
	Activated bool
}

// GetListeners retrieves systemd socket-activated file descriptors
// Returns nil listeners if not running under socket activation
func GetListeners() (*Listeners, error) {
	listeners := &Listeners{
		Activated: false,
	}

	fds := activation.Files(false) // false = don't unset env vars
	if len(fds) == 0 {
		return listeners, nil
	}

	listeners.Activated = true

	// Named listeners require systemd 227+
	listenersMap, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}

	if lns, ok := listenersMap[MetricsSocketName]; ok && len(lns) > 0 {
		listeners.Metrics = lns[0]
	}

	return listeners, nil
}

// NotifyReady sends READY=1 notification to systemd
// This tells systemd that the service has finished starting up
func NotifyReady() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		return fmt.Errorf("failed to send sd_notify: %w", err)
	}
	return nil
}

// NotifyStopping sends STOPPING=1 notification to systemd
func NotifyStopping() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		return fmt.Errorf("failed to send sd_notify stopping: %w", err)
	}
	return nil
}

// NotifyWatchdog sends WATCHDOG=1 notification to systemd
// This should be called periodically to prevent watchdog timeout
func NotifyWatchdog() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
		return fmt.Errorf("failed to send sd_notify watchdog: %w", err)
	}
	return nil
}

// WatchdogInterval returns the WatchdogSec= configured for this service, or
// zero when the watchdog is not enabled.
func WatchdogInterval() (time.Duration, error) {
	return daemon.SdWatchdogEnabled(false)
}

// Watchdog pings the systemd watchdog from its own ticker at half the
// WatchdogSec interval, independent of how long the poll interval is. Pings
// stop once the poll loop has not reported progress within the stall window,
// so systemd still restarts a wedged tracker.
type Watchdog struct {
	interval time.Duration
	onError  func(error)
	notify   func() error

	mu   sync.Mutex
	last time.Time
}

// NewWatchdog returns a watchdog for this service. It returns nil when the
// watchdog is disabled.
func NewWatchdog(onError func(error)) *Watchdog {
	interval, err := WatchdogInterval()
	if err != nil && onError != nil {
		onError(err)
	}
	if interval <= 0 {
		return nil
	}
	return newWatchdog(interval, NotifyWatchdog, onError)
}

func newWatchdog(interval time.Duration, notify func() error, onError func(error)) *Watchdog {
	return &Watchdog{
		interval: interval,
		onError:  onError,
		notify:   notify,
		last:     time.Now(),
	}
}

// Interval returns the WatchdogSec interval.
func (w *Watchdog) Interval() time.Duration {
	return w.interval
}

// Beat records that the poll loop completed a tick.
func (w *Watchdog) Beat() {
	w.mu.Lock()
	w.last = time.Now()
	w.mu.Unlock()
}

// Run pings the watchdog every half interval until ctx is done. A ping is
// skipped while the last Beat is older than stall.
func (w *Watchdog) Run(ctx context.Context, stall time.Duration) {
	ticker := time.NewTicker(w.interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		w.mu.Lock()
		last := w.last
		w.mu.Unlock()
		if time.Since(last) > stall {
			continue
		}

		if err := w.notify(); err != nil && w.onError != nil {
			w.onError(err)
		}
	}
}
