package main

import (
	"fmt"
	"os"

	"github.com/goodtune/apptime/internal/config"
	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string

	modeFlags config.ModeFlags
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "apptime",
	Short: "apptime - track how long your applications run",
	Long: `apptime polls the process table on a fixed interval, records every
continuous interval a watched application was running, and reports the
total time spent per application.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigPath(), "Path to configuration file")
	flags.String("sleep-time", "", "Seconds (or a Go duration) between process checks")
	flags.Bool("debug", false, "Enable debug logging")
	flags.StringSlice("app", nil, "Application to track (repeatable, replaces the configured list)")
	flags.String("db", "", "Path to the database file")
	flags.String("storage", "", "Storage backend: sqlite, bolt or redis")
	flags.String("log-format", "", "Log format: text or json")

	// One-shot modes
	rootCmd.Flags().BoolVar(&modeFlags.ClearDB, "clear-db", false, "Drop all recorded data and exit")
	rootCmd.Flags().BoolVar(&modeFlags.Report, "report", false, "Print total time per app and exit")
	rootCmd.Flags().BoolVar(&modeFlags.HourReport, "hour-report", false, "Print hours per app and exit")
	rootCmd.Flags().StringVar(&modeFlags.HourReportFor, "hour-report-for", "", "Print hours for one app and exit")
}

// runRoot tracks by default, or runs the one-shot mode selected by flags.
func runRoot(cmd *cobra.Command, args []string) error {
	mode, err := config.ResolveMode(modeFlags)
	if err != nil {
		return err
	}

	switch mode.Kind {
	case config.ModeClear:
		return runClear(cmd, args)
	case config.ModeReport:
		return runReport(cmd, args)
	case config.ModeHourReport:
		return runHours(cmd, nil)
	case config.ModeHourReportFor:
		return runHours(cmd, []string{mode.App})
	default:
		return runTrack(cmd, args)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
