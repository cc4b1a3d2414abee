package main

import (
	"context"
	"fmt"

	"github.com/goodtune/apptime/internal/report"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print total time spent per app",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

var hoursCmd = &cobra.Command{
	Use:   "hours [APP]",
	Short: "Print hours spent per app, or the bare hour figure for one app",
	Example: `  apptime hours
  apptime hours firefox`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHours,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(hoursCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	rows, err := store.Sessions().SumByEntity(context.Background())
	if err != nil {
		return fmt.Errorf("failed to sum sessions: %w", err)
	}

	return report.WriteTotals(cmd.OutOrStdout(), rows)
}

func runHours(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	rows, err := store.Sessions().SumByEntity(context.Background())
	if err != nil {
		return fmt.Errorf("failed to sum sessions: %w", err)
	}

	if len(args) == 0 {
		return report.WriteHours(cmd.OutOrStdout(), rows)
	}

	found, err := report.WriteHoursFor(cmd.OutOrStdout(), rows, args[0])
	if err == nil && !found {
		logger.Debug().Str("app", args[0]).Msg("No recorded time for app")
	}
	return err
}
