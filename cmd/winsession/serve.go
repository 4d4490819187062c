package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/loykin/winsession"
	"github.com/loykin/winsession/internal/logger"
)

// runServe runs the daemon until ctx is done, then saves the session and
// shuts the API down. ready, when non-nil, receives the manager once the
// API is up.
func runServe(ctx context.Context, flags ServeFlags, ready chan<- *winsession.Manager) error {
	cfg, err := winsession.LoadConfig(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	log, logCloser := logger.New(cfg.Log, os.Stderr)
	if logCloser != nil {
		defer func() { _ = logCloser.Close() }()
	}
	slog.SetDefault(log)

	mgr, err := winsession.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()

	if err := winsession.RegisterMetricsDefault(); err != nil {
		log.Warn("failed to register metrics", "error", err)
	}
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := winsession.ServeMetrics(cfg.Metrics.Listen); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	if flags.NoRestore {
		log.Info("restore skipped by flag")
	} else {
		res := mgr.RestoreOpenWindows(ctx)
		log.Info("startup restore", "status", res.Status, "windows", res.Windows, "tabs", res.Tabs)
	}

	h := winsession.Handler(mgr, cfg.Server.BasePath, winsession.MetricsHandler())
	srv := newServer(cfg.Server.Listen, h)
	log.Info("starting winsession server", "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath, "key", mgr.Key())
	if ready != nil {
		ready <- mgr
	}

	<-ctx.Done()
	log.Info("shutting down")

	saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout(flags))
	defer cancel()
	saveErr := mgr.SaveOpenWindows(saveCtx)
	if saveErr != nil {
		log.Error("final save failed", "error", saveErr)
	}
	if err := srv.Shutdown(saveCtx); err != nil {
		_ = srv.Close()
	}
	return saveErr
}
