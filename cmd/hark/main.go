// Command hark is the main entry point for the hark wake word server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/harkwake/hark/internal/catalog"
	"github.com/harkwake/hark/internal/config"
	"github.com/harkwake/hark/internal/health"
	"github.com/harkwake/hark/internal/observe"
	"github.com/harkwake/hark/internal/session"
	"github.com/harkwake/hark/internal/wake"
	"github.com/harkwake/hark/internal/wake/picovoice"
	"github.com/harkwake/hark/internal/wyoming"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "hark.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hark: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hark: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.Level(),
	}))
	slog.SetDefault(logger)

	slog.Info("hark starting",
		"version", version,
		"config", *configPath,
		"uri", cfg.Server.URI,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Keyword catalog and engine pool ───────────────────────────────────────
	cat := catalog.Build(cfg.Engine.Language, cfg.Engine.DefaultKeyword)
	slog.Info("keyword catalog built", "language", cat.Language(), "keywords", len(cat.Names()))

	factory := &picovoice.Factory{AccessKey: cfg.Engine.AccessKey}
	var poolOpts []wake.PoolOption
	if cfg.Pool.MaxIdlePerKeyword != 0 {
		poolOpts = append(poolOpts, wake.WithMaxIdlePerKeyword(cfg.Pool.MaxIdlePerKeyword))
	}
	pool := wake.NewPool(factory, cat, poolOpts...)
	defer func() {
		if err := pool.Close(); err != nil {
			slog.Warn("engine pool close error", "err", err)
		}
	}()

	// ── Wyoming event server ──────────────────────────────────────────────────
	sessionOpts := session.Options{
		DefaultKeyword: cfg.Engine.DefaultKeyword,
		Sensitivity:    cfg.Engine.Sensitivity,
		ProcessTimeout: cfg.Engine.ProcessTimeout.Std(),
		Version:        version,
	}
	server, err := wyoming.NewServer(cfg.Server.URI, cfg.Server.MaxSessions, func(w *wyoming.Writer, remote string) wyoming.Handler {
		return session.New(w, remote, pool, cat, sessionOpts)
	})
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	printStartupSummary(cfg, cat)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx)
	})

	// ── HTTP sidecar: metrics, health, WebSocket bridge ───────────────────────
	if cfg.Server.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		health.New(
			health.ListenerCheck(server),
			health.CatalogCheck(cat.Names),
		).Register(mux)
		mux.Handle("GET /ws", server.WSHandler())

		httpServer := &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http sidecar listening", "addr", cfg.Server.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, cat *catalog.Catalog) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║           hark — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Listen URI", cfg.Server.URI)
	printRow("HTTP sidecar", orDisabled(cfg.Server.HTTPAddr))
	printRow("Language", cat.Language())
	printRow("Keywords", fmt.Sprintf("%d", len(cat.Names())))
	printRow("Default keyword", cfg.Engine.DefaultKeyword)
	printRow("Sensitivity", fmt.Sprintf("%.2f", cfg.Engine.Sensitivity))
	printRow("Process timeout", orDisabled(timeoutString(cfg.Engine.ProcessTimeout)))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

func orDisabled(s string) string {
	if s == "" {
		return "(disabled)"
	}
	return s
}

func timeoutString(d config.Duration) string {
	if d.Std() <= 0 {
		return ""
	}
	return d.String()
}
