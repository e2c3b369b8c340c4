package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rglonek/bookmarks/internal/api"
	"github.com/rglonek/bookmarks/internal/config"
	"github.com/rglonek/bookmarks/internal/docserver"
	"github.com/rglonek/bookmarks/internal/logging"
	"github.com/rglonek/bookmarks/internal/remote"
	"github.com/rglonek/bookmarks/internal/service"
	"github.com/rglonek/bookmarks/internal/store"
	"github.com/rglonek/bookmarks/internal/syncer"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("bookmarkd starting",
		slog.String("version", Version),
		slog.Bool("sync", cfg.EnableSync),
		slog.Bool("doc_server", cfg.EnableDocServer),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.EnableSync {
		g.Go(func() error {
			return runSync(gctx, cfg, logger)
		})
	}

	if cfg.EnableDocServer {
		g.Go(func() error {
			return runDocServer(gctx, cfg, logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// runSync starts the replica: local store, sync coordinator,
// connectivity monitor, and the control API.
func runSync(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	replicaStore, err := store.Open(cfg.StatePath, logger)
	if err != nil {
		return fmt.Errorf("opening replica store: %w", err)
	}
	defer replicaStore.Close()

	client := remote.NewClient(cfg.RemoteURL, cfg.BoardID, cfg.ReplicaName, nil)

	coordinator := syncer.New(client, replicaStore, cfg.BoardID, syncer.Options{
		DebounceDelay:      cfg.DebounceDelay,
		CheckInterval:      cfg.CheckInterval,
		SweepInterval:      cfg.SweepInterval,
		TombstoneRetention: cfg.TombstoneRetention,
	}, logger)

	monitor := syncer.NewMonitor(coordinator, client, cfg.ProbeInterval, logger)

	svc := service.New(replicaStore, coordinator, logger)
	handler := api.NewServer(svc, coordinator, monitor, logger).Router()

	logger.Info("replica configured",
		slog.String("board", cfg.BoardID),
		slog.String("replica", cfg.ReplicaName),
		slog.String("remote", cfg.RemoteURL),
		slog.String("state", cfg.StatePath),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return coordinator.Run(gctx)
	})

	g.Go(func() error {
		return monitor.Run(gctx)
	})

	g.Go(func() error {
		return serveHTTP(gctx, cfg.ListenAddr, handler, logger.With(slog.String("service", "api")))
	})

	return g.Wait()
}

// runDocServer starts the board document store this replica (and
// others) can sync against.
func runDocServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	boardStore, err := docserver.OpenStore(cfg.DocServerStatePath)
	if err != nil {
		return fmt.Errorf("opening board store: %w", err)
	}
	defer boardStore.Close()

	docLogger := logger.With(slog.String("service", "docserver"))
	handler := docserver.NewServer(boardStore, docLogger).Router()

	return serveHTTP(ctx, cfg.DocServerListenAddr, handler, docLogger)
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", slog.String("addr", addr))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}
