package app

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/balancer/internal/admission"
	"github.com/stacklok/balancer/internal/config"
	"github.com/stacklok/balancer/internal/dashboard"
	"github.com/stacklok/balancer/internal/discovery"
	"github.com/stacklok/balancer/internal/dispatch"
	"github.com/stacklok/balancer/internal/httpapi"
	"github.com/stacklok/balancer/internal/janitor"
	"github.com/stacklok/balancer/internal/metrics"
	"github.com/stacklok/balancer/internal/registry"
	"github.com/stacklok/balancer/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the balancer proxy",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load()
	return run(cfg, os.Stdout, metrics.Registry)
}

// run wires together the registries, discovery listener, janitor,
// dashboard, and HTTP server, supervising them with an errgroup so that any
// one task's unrecoverable failure brings the whole process down, and a
// signal or a sibling's exit triggers a coordinated shutdown of the rest.
func run(cfg config.Config, dashboardOut io.Writer, metricsRegistry *prometheus.Registry) error {
	lmstudioRegistry := registry.New(registry.ServiceClassLMStudio)
	ollamaRegistry := registry.New(registry.ServiceClassOllama)

	registries := map[registry.ServiceClass]*registry.Registry{
		registry.ServiceClassLMStudio: lmstudioRegistry,
		registry.ServiceClassOllama:   ollamaRegistry,
	}

	httpClient := dispatch.NewHTTPClient(cfg.DispatchTimeout, cfg.ConnectTimeout)
	dispatcher := dispatch.New(httpClient)

	lmstudioAdmission := &admission.Queue{Registry: lmstudioRegistry, QueueTimeout: cfg.QueueTimeout, PollInterval: cfg.PollInterval}
	ollamaAdmission := &admission.Queue{Registry: ollamaRegistry, QueueTimeout: cfg.QueueTimeout, PollInterval: cfg.PollInterval}

	router := httpapi.NewRouter(map[string]httpapi.Deps{
		"lmstudio": {Registry: lmstudioRegistry, Admission: lmstudioAdmission, Dispatcher: dispatcher},
		"ollama":   {Registry: ollamaRegistry, Admission: ollamaAdmission, Dispatcher: dispatcher},
	}, metricsRegistry)

	server := httpapi.NewServer(cfg.ListenAddr, router)
	disc := discovery.New(cfg.UDPAddr, registries)
	lmstudioJanitor := &janitor.Janitor{Registry: lmstudioRegistry, CleanupInterval: cfg.CleanupInterval, InactivityTimeout: cfg.InactivityTimeout}
	ollamaJanitor := &janitor.Janitor{Registry: ollamaRegistry, CleanupInterval: cfg.CleanupInterval, InactivityTimeout: cfg.InactivityTimeout}
	dash := dashboard.New(dashboardOut, cfg.ListenAddr, lmstudioRegistry, ollamaRegistry)

	metricsTicker := time.NewTicker(5 * time.Second)
	defer metricsTicker.Stop()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(sigCtx)
	g.Go(func() error { return server.Run(ctx) })
	g.Go(func() error { return disc.Run(ctx) })
	g.Go(func() error { return lmstudioJanitor.Run(ctx) })
	g.Go(func() error { return ollamaJanitor.Run(ctx) })
	g.Go(func() error { return dash.Run(ctx) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-metricsTicker.C:
				metrics.SetNodeCounts(registry.ServiceClassLMStudio, lmstudioRegistry.Snapshot())
				metrics.SetNodeCounts(registry.ServiceClassOllama, ollamaRegistry.Snapshot())
			}
		}
	})

	if err := g.Wait(); err != nil && sigCtx.Err() == nil {
		logger.Errorw("balancer exiting due to error", "error", err)
		return err
	}
	return nil
}
