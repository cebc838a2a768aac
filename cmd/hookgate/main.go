package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hookgate/hookgate/internal/api"
	"github.com/hookgate/hookgate/internal/config"
	"github.com/hookgate/hookgate/internal/decision"
	"github.com/hookgate/hookgate/internal/events"
	"github.com/hookgate/hookgate/internal/log"
	"github.com/hookgate/hookgate/internal/metrics"
	"github.com/hookgate/hookgate/internal/storage"
	"github.com/hookgate/hookgate/internal/tui/watch"
	"github.com/hookgate/hookgate/internal/webhook"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		os.Exit(runServe(args))
	case "check":
		os.Exit(runCheck(args))
	case "watch":
		os.Exit(runWatch(args))
	case "version":
		fmt.Printf("hookgate version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`hookgate - Inbound webhook verification gateway

Usage:
  hookgate <command> [flags]

Commands:
  serve     Start the gateway in the foreground
  check     Validate the configuration file and exit
  watch     Live decision feed TUI (requires the API to be enabled)
  version   Show version information
  help      Show this help message

Use 'hookgate <command> --help' for command-specific flags.
`)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "hookgate.yaml", "Path to the configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenSQLite(ctx, cfg.Storage.Path)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		return 1
	}
	defer db.Close()

	store := decision.NewStore(db)
	hub := events.NewHub(256)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.NewRegistry())
	}

	// One pipeline per connector, deterministic order.
	ids := make([]string, 0, len(cfg.Connectors))
	for id := range cfg.Connectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pipelines := make([]*webhook.Pipeline, 0, len(ids))
	for _, id := range ids {
		p, err := webhook.New(id, cfg.Connectors[id], webhook.Deps{
			Sink:           store,
			Hub:            hub,
			Metrics:        m,
			Logger:         logger,
			SweepInterval:  cfg.Service.SweepInterval,
			RequestTimeout: cfg.Service.RequestTimeout,
		})
		if err != nil {
			logger.Error("failed to build pipeline", "connector", id, "error", err)
			return 1
		}
		p.Start()
		defer p.Stop()
		pipelines = append(pipelines, p)
		logger.Info("connector registered", "connector", id, "path", cfg.Connectors[id].Path)
	}

	errCh := make(chan error, 3)

	ingress := webhook.NewServer(cfg.Ingress.Listen, cfg.Service.RequestTimeout, pipelines, log.WithComponent("ingress"))
	go func() { errCh <- ingress.Start(ctx) }()

	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen:     cfg.API.Listen,
			APIKey:     cfg.API.APIKey,
			Connectors: len(pipelines),
		}, store, hub, log.WithComponent("api"))
		go func() { errCh <- apiServer.Start(ctx) }()
	}

	if cfg.Metrics.Enabled {
		go func() { errCh <- serveMetrics(ctx, cfg.Metrics.Listen, m) }()
	}

	logger.Info("hookgate started",
		"version", version,
		"connectors", len(pipelines),
		"ingress", cfg.Ingress.Listen,
	)

	err = <-errCh
	if err != nil && err != context.Canceled {
		logger.Error("gateway stopped", "error", err)
		return 1
	}
	logger.Info("gateway stopped")
	return 0
}

func serveMetrics(ctx context.Context, listen string, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: listen, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("metrics server error: %w", err)
	}
}

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "hookgate.yaml", "Path to the configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		return 1
	}

	fmt.Printf("OK: %d connector(s) configured\n", len(cfg.Connectors))
	ids := make([]string, 0, len(cfg.Connectors))
	for id := range cfg.Connectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		conn := cfg.Connectors[id]
		method := config.MethodNone
		if conn.Signature != nil {
			method = conn.Signature.Method
		}
		fmt.Printf("  %-20s %-24s %s\n", id, conn.Path, method)
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api", "http://127.0.0.1:8082", "Base URL of the hookgate API")
	apiKey := fs.String("key", os.Getenv("HOOKGATE_API_KEY"), "API bearer token (default: $HOOKGATE_API_KEY)")
	fs.Parse(args)

	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: no API key (set --key or $HOOKGATE_API_KEY)")
		return 1
	}

	p := tea.NewProgram(watch.NewModel(*apiURL, *apiKey), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
