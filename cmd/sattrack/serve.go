package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/sattrack/internal/api"
	"github.com/star/sattrack/internal/cache"
	"github.com/star/sattrack/internal/metrics"
	"github.com/star/sattrack/internal/propagation"
	"github.com/star/sattrack/internal/tle"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the propagation and pass prediction API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	logger := a.logger
	if parent == nil {
		parent = context.Background()
	}

	store := tle.NewStore()
	snapshots := tle.NewCache(a.cfg.Catalog.CacheDir, a.cfg.Catalog.MaxFiles)
	loader := tle.NewLoader(store, a.cfg.Catalog.Path, snapshots, logger)
	if err := loader.Reload(); err != nil {
		logger.Warn("catalog not loaded at startup", "error", err, "ready", store.Get() != nil)
	}

	pool := propagation.NewWorkerPool(a.cfg.Propagation.Workers, logger)
	cat := propagation.NewCatalog(store, pool, logger)
	positions := cache.New(a.cfg.Cache, cat, store, logger)

	srv := api.NewServer(api.Options{
		Addr:      a.cfg.HTTPAddr,
		Logger:    logger,
		Auth:      a.cfg.Auth,
		Store:     store,
		Catalog:   cat,
		Snapshots: positions,
		Passes:    a.cfg.Passes,
		Stream:    a.cfg.Stream,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open streams end with the server context.
	srv.HTTPServer().BaseContext = func(net.Listener) context.Context { return ctx }

	go positions.Start(ctx)

	// SIGHUP re-reads the catalog file.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	// Background goroutine to update the catalog gauges and serve reloads.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ds := store.Get(); ds != nil {
					metrics.SetCatalog(ds.Len(), store.AgeSeconds())
				}
			case <-hup:
				if err := loader.Reload(); err != nil {
					logger.Warn("catalog reload failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", a.cfg.HTTPAddr, "auth_enabled", a.cfg.Auth.Enabled, "workers", pool.Workers())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		logger.Error("server listen error", "error", err)
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
