package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/goodtune/apptime/internal/presence"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Show which configured apps are running right now",
	Long: `Query the process table once for every configured app and print whether
it is running. Nothing is recorded.`,
	Example: `  apptime check
  apptime check --app firefox --app nvim`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	oracle := presence.NewProcessTable(logger)
	ctx := context.Background()

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out)
	_, _ = cyan.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	_, _ = cyan.Fprintln(out, "PROCESS CHECK")
	_, _ = cyan.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	_, _ = fmt.Fprintln(out)

	running := 0
	for _, app := range cfg.Tracking.Apps {
		_, _ = fmt.Fprintf(out, "%-20s ", app)

		ok, err := oracle.IsRunning(ctx, app)
		switch {
		case err != nil:
			_, _ = yellow.Fprintf(out, "UNKNOWN (%v)\n", err)
		case ok:
			running++
			_, _ = green.Fprintln(out, "RUNNING")
		default:
			_, _ = red.Fprintln(out, "not running")
		}
	}

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "%d of %d tracked apps running\n", running, len(cfg.Tracking.Apps))
	_, _ = cyan.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	return nil
}
