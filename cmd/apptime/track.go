package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goodtune/apptime/internal/metrics"
	"github.com/goodtune/apptime/internal/presence"
	"github.com/goodtune/apptime/internal/systemd"
	"github.com/goodtune/apptime/internal/usage"
	"github.com/spf13/cobra"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Track the configured applications until interrupted",
	Long: `Poll the process table and record application sessions until SIGINT,
SIGTERM or SIGQUIT is received. Sessions still open at shutdown are closed
and written before exit. This is also what apptime does with no subcommand.`,
	Args: cobra.NoArgs,
	RunE: runTrack,
}

func init() {
	rootCmd.AddCommand(trackCmd)
}

func runTrack(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	interval, err := cfg.Tracking.Interval()
	if err != nil {
		return err
	}

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting apptime")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		} else {
			logger.Debug().Msg("Storage closed")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	var heartbeat func()
	if watchdog := systemd.NewWatchdog(func(err error) {
		logger.Warn().Err(err).Msg("systemd watchdog notification failed")
	}); watchdog != nil {
		heartbeat = watchdog.Beat
		stall := 2*interval + watchdog.Interval()
		logger.Debug().
			Dur("watchdog", watchdog.Interval()).
			Dur("stall", stall).
			Msg("systemd watchdog enabled")
		go watchdog.Run(ctx, stall)
	}

	poller := usage.NewPoller(
		usage.PollerConfig{
			Apps:      cfg.Tracking.Apps,
			Interval:  interval,
			Heartbeat: heartbeat,
		},
		presence.NewProcessTable(logger),
		store,
		usage.RealClock{},
		logger,
	)

	if stopped, err := registerApps(ctx, poller); err != nil {
		return err
	} else if stopped {
		logger.Info().Msg("Shutdown signal received during startup")
		return nil
	}

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled || sdListeners.Metrics != nil {
		metricsServer = metrics.NewServer(cfg.Metrics.ListenAddress, logger)

		// Use systemd socket-activated listener if available
		if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}
	}

	// Notify systemd that we're ready
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	runErr := poller.Run(ctx)
	if runErr != nil {
		logger.Error().Err(runErr).Msg("Tracking stopped on a storage failure")
	} else {
		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// The signal context is done; the flush gets a fresh one.
	flushErr := poller.Flush(context.Background())
	if flushErr != nil {
		logger.Error().Err(flushErr).Msg("Some open sessions could not be written")
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	logger.Info().Msg("apptime stopped")

	return errors.Join(runErr, flushErr)
}

// registerApps registers the watched apps. A signal arriving during
// registration is a clean stop, reported as stopped with a nil error.
func registerApps(ctx context.Context, poller *usage.Poller) (stopped bool, err error) {
	if err := poller.Register(ctx); err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		return false, fmt.Errorf("failed to register apps: %w", err)
	}
	return false, nil
}
