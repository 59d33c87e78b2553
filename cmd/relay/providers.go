package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/providerfactory"
	"mercator-hq/relay/pkg/routing"
)

var providersFlags struct {
	model string
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers or the failover order of a model",
	Long: `List the configured providers with their type, endpoint and health.

With --model, print the ordered candidate providers a run of that model
would try.

Examples:
  relay providers
  relay providers --model gpt-4o -o json`,
	RunE: listProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)

	providersCmd.Flags().StringVarP(&providersFlags.model, "model", "m", "", "show the candidate order for a model")
}

func listProviders(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	f, err := formatter()
	if err != nil {
		return err
	}

	manager := providerfactory.NewManager()
	defer manager.Close()
	if err := manager.LoadFromConfig(cfg); err != nil {
		printer(cmd).Warn("%v", err)
	}

	if providersFlags.model != "" {
		orch, err := routing.NewOrchestrator(cfg, manager.Engines(), routing.WithLogger(logger))
		if err != nil {
			return err
		}
		return f.FormatTo(cmd.OutOrStdout(), candidatesTable(cfg, orch.Candidates(providersFlags.model)))
	}
	return f.FormatTo(cmd.OutOrStdout(), providersTable(cfg, manager.GetHealthSummary()))
}

func providersTable(cfg *config.Config, summary providerfactory.HealthSummary) cli.Table {
	table := cli.Table{Headers: []string{"provider", "type", "base_url", "models", "loaded", "healthy"}}
	for _, name := range sortedProviderNames(cfg) {
		p := cfg.Providers[name]
		health, loaded := summary.Details[name]
		table.Rows = append(table.Rows, []string{
			name,
			p.Type,
			p.BaseURL,
			strings.Join(p.Models, ","),
			strconv.FormatBool(loaded),
			strconv.FormatBool(loaded && health.IsHealthy),
		})
	}
	return table
}

func candidatesTable(cfg *config.Config, candidates []string) cli.Table {
	table := cli.Table{Headers: []string{"order", "provider", "type", "max_attempts"}}
	for i, name := range candidates {
		p := cfg.Providers[name]
		table.Rows = append(table.Rows, []string{
			strconv.Itoa(i + 1),
			name,
			p.Type,
			strconv.Itoa(p.MaxAttemptCount),
		})
	}
	return table
}
