package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/runstore/sqlite"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect and maintain the local run store",
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, _ *config.Config, store *sqlite.Store) error {
			run, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput() {
				return (&cli.JSONFormatter{Indent: true}).FormatTo(cmd.OutOrStdout(), run)
			}

			table := cli.Table{Headers: []string{"field", "value"}, Rows: [][]string{
				{"id", run.ID},
				{"tenant", run.TenantID},
				{"version", run.VersionID},
				{"model", run.Model},
				{"provider", run.Provider},
				{"status", string(run.Status)},
				{"attempts", strconv.Itoa(run.AttemptCount)},
				{"cost", fmtCost(run.Cost)},
				{"duration", run.Duration.Round(time.Millisecond).String()},
				{"created", run.CreatedAt.Format(time.RFC3339)},
			}}
			if run.ErrorCode != "" {
				table.Rows = append(table.Rows, []string{"error", run.ErrorCode + ": " + run.ErrorMessage})
			}
			f, err := formatter()
			if err != nil {
				return err
			}
			if err := f.FormatTo(cmd.OutOrStdout(), table); err != nil {
				return err
			}
			if run.Output != nil && run.Output.Output != nil && !isCSV() {
				fmt.Fprintln(cmd.OutOrStdout())
				return printOutput(cmd.OutOrStdout(), run.Output.Output)
			}
			return nil
		})
	},
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs older than the retention period now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, cfg *config.Config, store *sqlite.Store) error {
			deleted, err := sqlite.NewPruner(store, cfg.RunStore.Retention).Prune(ctx)
			if err != nil {
				return err
			}
			printer(cmd).Success("Pruned %d run(s) older than %d days", deleted, cfg.RunStore.Retention.Days)
			return nil
		})
	},
}

var runsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of stored runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, _ *config.Config, store *sqlite.Store) error {
			n, err := store.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		})
	},
}

func init() {
	runsCmd.AddCommand(runsShowCmd, runsPruneCmd, runsCountCmd)
	rootCmd.AddCommand(runsCmd)
}

// withStore opens the configured run store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, store *sqlite.Store) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := sqlite.Open(cfg.RunStore)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer store.Close()
	return fn(cmd.Context(), cfg, store)
}

func isCSV() bool {
	return outputFmt == string(cli.FormatCSV)
}
