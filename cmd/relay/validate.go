package main

import (
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration with environment overrides and check every
section: provider types and endpoints, routing references, pricing, run
store retention and telemetry.

Every problem is reported, not only the first.`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	p := printer(cmd)

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			p.Error("Configuration %s is invalid:", cfgFile)
			for _, fe := range verr.Errors {
				p.Info("  - %s", fe.Error())
			}
			return cli.NewConfigError("", "validation failed with "+pluralize(len(verr.Errors), "error"))
		}
		return cli.NewConfigError("", err.Error())
	}

	p.Success("Configuration %s is valid", cfgFile)
	p.Info("  providers: %s", joinSorted(sortedProviderNames(cfg)))
	p.Info("  mapped models: %s", joinSorted(lo.Keys(cfg.Routing.ModelMapping)))
	p.Info("  run store: %s (retention %d days)", cfg.RunStore.Path, cfg.RunStore.Retention.Days)
	return nil
}

func sortedProviderNames(cfg *config.Config) []string {
	names := lo.Keys(cfg.Providers)
	slices.Sort(names)
	return names
}

func joinSorted(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	slices.Sort(items)
	return strings.Join(items, ", ")
}

func pluralize(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.Itoa(n) + " " + word + "s"
}
