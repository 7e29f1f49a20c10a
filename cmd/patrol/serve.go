package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/patrol/pkg/agent"
	"github.com/entrhq/patrol/pkg/api"
	"github.com/entrhq/patrol/pkg/browser"
	"github.com/entrhq/patrol/pkg/config"
	"github.com/entrhq/patrol/pkg/engine"
	"github.com/entrhq/patrol/pkg/logging"
	"github.com/entrhq/patrol/pkg/metrics"
)

var (
	serveAddr          string
	serveMaxSessions   int
	serveBrowserType   string
	serveHeaded        bool
	serveSweepInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the execution engine over HTTP",
	Long: `Serve runs the HTTP API: suite submission, execution status,
reports, a server-sent-events stream of live progress, and Prometheus
metrics. Executions are kept in memory only; restarting the server
forgets them.

Endpoints:
  POST /api/v1/executions              submit a suite (YAML body or JSON envelope)
  GET  /api/v1/executions              list executions
  GET  /api/v1/executions/{id}         execution status
  GET  /api/v1/executions/{id}/report  report (?format=json|markdown|text)
  GET  /api/v1/executions/{id}/events  SSE progress stream
  GET  /healthz                        liveness
  GET  /metrics                        Prometheus scrape

Example usage:
  patrol serve
  patrol serve --addr 127.0.0.1:9000 --max-sessions 8`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", api.DefaultAddr, "listen address")
	serveCmd.Flags().IntVar(&serveMaxSessions, "max-sessions", 0, "maximum concurrent browser sessions")
	serveCmd.Flags().StringVar(&serveBrowserType, "browser", "", "browser engine: chromium, firefox, or webkit")
	serveCmd.Flags().BoolVar(&serveHeaded, "headed", false, "run browsers with a visible window")
	serveCmd.Flags().DurationVar(&serveSweepInterval, "sweep-interval", time.Minute, "how often idle sessions are evicted")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return usageError(err)
	}

	provider, err := config.BuildProvider(cfg, config.Overrides{})
	if err != nil {
		return usageError(err)
	}

	log, _ := logging.New("patrol")
	defer log.Close()
	m := metrics.New()

	poolCfg := cfg.PoolConfig()
	if serveMaxSessions > 0 {
		poolCfg.MaxSessions = serveMaxSessions
	}
	if serveBrowserType != "" {
		if !browser.ValidBrowserType(serveBrowserType) {
			return usageError(fmt.Errorf("unknown browser %q", serveBrowserType))
		}
		poolCfg.BrowserType = serveBrowserType
	}
	if serveHeaded {
		poolCfg.Headless = false
	}

	pool := browser.NewPool(poolCfg,
		browser.WithLogger(log.Component("pool")),
		browser.WithMetrics(m))
	if err := pool.Initialize(); err != nil {
		return failureError(fmt.Errorf("failed to initialize browser pool: %w", err))
	}
	defer pool.Close()

	runner := agent.New(provider, agent.WithLogger(log.Component("agent")))
	eng := engine.New(pool, runner, cfg.ExecutionConfig(),
		engine.WithLogger(log.Component("engine")),
		engine.WithMetrics(m))
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go pool.Sweep(ctx, serveSweepInterval)

	srv := api.NewServer(eng, api.Config{Addr: serveAddr},
		api.WithLogger(log.Component("api")),
		api.WithMetrics(m))
	if err := srv.Start(ctx); err != nil {
		return failureError(err)
	}
	return nil
}
