package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an HTTP handler exposing the collector's registry in the
// Prometheus exposition format (OpenMetrics when the scraper asks for it).
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(
		c.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		},
	)
}

// HandlerWithOptions returns an HTTP handler with custom options.
func (c *Collector) HandlerWithOptions(opts promhttp.HandlerOpts) http.Handler {
	return promhttp.HandlerFor(c.registry, opts)
}

// NewServer returns an HTTP server that serves the metrics endpoint at
// the configured address and path. mounts may register further handlers,
// such as health probes, on the same mux. The caller starts and shuts the
// server down.
func (c *Collector) NewServer(mounts ...func(*http.ServeMux)) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(c.config.Path, c.Handler())
	for _, mount := range mounts {
		mount(mux)
	}

	return &http.Server{
		Addr:              c.config.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
