package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/prodex/api"
	"github.com/use-agent/prodex/api/handler"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the HTTP API (default command).",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := setup(os.Stdout)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	slog.Info("prodex starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"backend", cfg.Browser.Backend,
		"maxSessions", cfg.Browser.MaxSessions,
	)

	var stats handler.StatsProvider
	if a.backend != nil {
		stats = a.backend
	}
	router := api.NewRouter(a.pipeline, stats, cfg, time.Now())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// ── Graceful shutdown ───────────────────────────────────────────
	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("HTTP server error", "error", err)
			return err
		}
	case <-cmd.Context().Done():
		slog.Info("shutdown signal received")
	}

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// a.close() runs via defer and kills the browser.
	slog.Info("prodex stopped")
	return nil
}
