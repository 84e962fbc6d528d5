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
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weathermesh/weathermesh/server/internal/aggregator"
	"github.com/weathermesh/weathermesh/server/internal/api"
	"github.com/weathermesh/weathermesh/server/internal/auth"
	"github.com/weathermesh/weathermesh/server/internal/config"
	"github.com/weathermesh/weathermesh/server/internal/console"
	"github.com/weathermesh/weathermesh/server/internal/listener"
	"github.com/weathermesh/weathermesh/server/internal/metrics"
	"github.com/weathermesh/weathermesh/server/internal/receiver"
	"github.com/weathermesh/weathermesh/server/internal/snapshot"
	"github.com/weathermesh/weathermesh/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file; defaults apply when empty")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config path] [port]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Log.SlogLevel())

	port, err := resolvePort(flag.Args(), cfg.Server.Port)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	slog.Info("weathermesh-server starting",
		"config", *configPath,
		"port", port,
		"expiry", cfg.Server.Eviction.Expiry,
		"capacity", cfg.Server.Eviction.Capacity,
		"snapshot_driver", cfg.Server.Snapshot.Driver,
		"admin_port", cfg.Server.Admin.Port,
	)

	if err := run(cfg, port, *configPath, level); err != nil {
		slog.Error("weathermesh-server stopped", "err", err)
		os.Exit(1)
	}
}

// resolvePort returns the positional port argument if present, else fallback.
func resolvePort(args []string, fallback int) (int, error) {
	switch len(args) {
	case 0:
		return fallback, nil
	case 1:
		p, err := strconv.Atoi(args[0])
		if err != nil || p <= 0 || p > 65535 {
			return 0, fmt.Errorf("invalid port %q", args[0])
		}
		return p, nil
	default:
		return 0, fmt.Errorf("too many arguments")
	}
}

func run(cfg *config.Config, port int, configPath string, level *slog.LevelVar) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, err := snapshot.Open(ctx, cfg.Server.Snapshot)
	if err != nil {
		return err
	}

	m := metrics.New()
	engine := aggregator.New(aggregator.Options{
		Expiry:   cfg.Server.Eviction.Expiry,
		Capacity: cfg.Server.Eviction.Capacity,
		Backend:  backend,
		Metrics:  m,
	})
	defer engine.Close()

	if _, err := engine.LoadAll(ctx); err != nil {
		slog.Warn("recovery failed, starting empty", "driver", backend.Driver(), "err", err)
	}

	lis, err := listener.Listen(fmt.Sprintf(":%d", port), receiver.New(engine, m, cfg.Server.ReadTimeout))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return lis.Serve(gctx) })

	var purge bool
	g.Go(func() error {
		action, err := console.New(os.Stdin, os.Stdout, engine, m).Run(gctx)
		if err != nil {
			return err
		}
		if action != console.ActionNone {
			slog.Info("console: shutdown requested", "command", action.String())
			purge = action == console.ActionExitPurge
			cancel()
		}
		return nil
	})

	if configPath != "" {
		g.Go(func() error {
			err := config.Watch(gctx, configPath, func(next *config.Config) {
				level.Set(next.Log.SlogLevel())
				if next.Server != cfg.Server {
					slog.Warn("config: server settings changed; restart to apply them")
				}
			})
			if err != nil {
				slog.Warn("config: hot reload disabled", "err", err)
			}
			return nil
		})
	}

	if cfg.Server.Admin.Port > 0 {
		startAdmin(gctx, g, cfg.Server.Admin, engine, m)
	}

	err = g.Wait()
	slog.Info("weathermesh-server shutting down", "purge", purge)
	if purge {
		if perr := engine.PurgeAll(context.Background()); perr != nil {
			slog.Error("purge persisted state failed", "err", perr)
		}
	}
	return err
}

// startAdmin serves the read-only admin API, /metrics and the WebSocket
// stream until ctx is cancelled.
func startAdmin(ctx context.Context, g *errgroup.Group, cfg config.AdminConfig, engine *aggregator.Engine, m *metrics.Metrics) {
	hub := ws.New(engine, cfg.StreamInterval)
	apiHandler := api.New(engine, m)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/metrics", apiHandler)
	mux.Handle("/ws/stream", hub)

	guard := auth.APIKey(cfg.Auth.Mode, cfg.Auth.EffectiveHeader(), cfg.Auth.Key())
	if cfg.Auth.Mode == "apikey" && cfg.Auth.Key() == "" {
		slog.Warn("admin auth: apikey mode but key env is empty; admin endpoints are open",
			"key_env", cfg.Auth.KeyEnv)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           guard(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("admin HTTP listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
