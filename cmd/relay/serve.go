package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/runstore/sqlite"
)

// healthRefreshInterval paces provider_up gauge updates between runs.
const healthRefreshInterval = 15 * time.Second

var serveFlags struct {
	address string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve metrics and health probes and run scheduled maintenance",
	Long: `Start the long-running side of relay.

serve exposes Prometheus metrics together with /healthz and /readyz, prunes
the run store on the configured retention schedule, and reloads the pricing
file when it changes. It stops on SIGINT or SIGTERM.

Examples:
  relay serve --config /etc/relay/relay.yaml
  relay serve --addr 0.0.0.0:9090`,
	RunE: serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveFlags.address, "addr", "", "override the metrics listen address")
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.address != "" {
		cfg.Telemetry.Metrics.Address = serveFlags.address
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	p := printer(cmd)
	p.Success("Providers initialized (%d providers)", len(a.manager.GetProviderNames()))

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	pruner := sqlite.NewPruner(a.store, cfg.RunStore.Retention)
	if err := pruner.Start(ctx); err != nil {
		logger.Warn("failed to start retention scheduler", "error", err)
	} else if next := pruner.NextRun(); next != nil {
		p.Success("Run retention: %d days, next prune %s", cfg.RunStore.Retention.Days, next.Format(time.RFC3339))
	}
	defer pruner.Stop()

	if path := cfg.Processing.Costs.PricingFile; path != "" {
		go func() {
			err := config.WatchPricing(ctx, path, logger, a.processor.Calculator().UpdatePricing)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("pricing watcher stopped", "path", path, "error", err)
			}
		}()
		p.Success("Watching pricing file %s", path)
	}

	config.SetConfig(cfg)
	config.OnReload(func(next *config.Config) {
		if next.Processing.Costs.PricingFile == "" {
			a.processor.Calculator().UpdatePricing(&next.Processing.Costs)
		}
		logger.Info("configuration reloaded; provider changes apply on restart",
			"providers", len(next.Providers),
		)
	})
	go watchConfig(ctx, cfgFile, logger)

	go a.refreshHealth(ctx, healthRefreshInterval)

	server := a.collector.NewServer(a.healthChecker().Mount)
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		a.close(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	addr := ln.Addr().String()
	p.Success("Metrics endpoint: http://%s%s", addr, cfg.Telemetry.Metrics.Path)
	p.Success("Health endpoints: http://%s/healthz, http://%s/readyz", addr, addr)
	logger.Info("relay serving", "address", addr)

	var serveErr error
	select {
	case <-ctx.Done():
		p.Info("Shutting down...")
	case serveErr = <-errCh:
		logger.Error("server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}
	if err := a.close(shutdownCtx); err != nil {
		return errors.Join(serveErr, err)
	}
	if serveErr == nil {
		p.Success("Stopped")
	}
	return serveErr
}

// watchConfig reloads the configuration file on change until ctx is done.
// Invalid edits are logged and the previous configuration stays active.
func watchConfig(ctx context.Context, path string, logger *slog.Logger) {
	fw, err := config.NewFileWatcher(path, 0, logger)
	if err != nil {
		logger.Warn("config watcher disabled", "path", path, "error", err)
		return
	}
	defer fw.Stop()

	err = fw.Watch(ctx, func() error { return config.ReloadConfig(path) })
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("config watcher stopped", "path", path, "error", err)
	}
}

// refreshHealth mirrors provider health into the provider_up gauge until
// ctx is done.
func (a *app) refreshHealth(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		for name, h := range a.manager.GetHealthSummary().Details {
			a.collector.UpdateHealth(name, h.IsHealthy)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
