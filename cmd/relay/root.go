package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile   string
	verbose   bool
	noColor   bool
	outputFmt string
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - multi-provider LLM completion engine",
	Long: `Relay runs model versions against a registry of LLM providers with
automatic failover, structured output, usage accounting and a local run cache.

Every run is tried against the ordered candidate providers of its model.
Retryable provider failures move on to the next candidate; the finished run
is persisted, billed and announced to event consumers.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

// Execute runs the root command and exits with the code matching the
// returned error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		cli.NewPrinter(os.Stderr).Error("%v", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "relay.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "output format: text, json, csv")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the configuration with environment overrides and
// installs the configured logger as the default.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, nil, cli.NewConfigError("", err.Error())
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Telemetry.Logging, os.Stderr)
	if err != nil {
		return nil, nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func formatter() (cli.Formatter, error) {
	format, err := cli.ParseFormat(outputFmt)
	if err != nil {
		return nil, cli.NewConfigError("output", err.Error())
	}
	return cli.NewFormatter(format), nil
}

func printer(cmd *cobra.Command) *cli.Printer {
	return cli.NewPrinter(cmd.ErrOrStderr())
}

func jsonOutput() bool {
	return outputFmt == string(cli.FormatJSON)
}

func fmtCost(usd float64) string {
	return fmt.Sprintf("$%.6f", usd)
}
