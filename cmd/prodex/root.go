package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/prodex/config"
	"github.com/use-agent/prodex/engine"
	"github.com/use-agent/prodex/models"
	"github.com/use-agent/prodex/pipeline"
	"github.com/use-agent/prodex/scraper"
)

var rootCmd = &cobra.Command{
	Use:          "prodex",
	Short:        "prodex extracts product records from e-commerce pages.",
	SilenceUsage: true,
	RunE:         runServe,
}

// renderBackend is what both scraper backends provide.
type renderBackend interface {
	engine.Renderer
	Stats() models.PoolStats
	Close()
}

// app holds the long-lived components shared by every command.
type app struct {
	cfg      *config.Config
	backend  renderBackend // nil when rendering is disabled
	pipeline *pipeline.Pipeline
}

// setup loads configuration, initialises logging and wires the pipeline.
//
// Wiring order (numbered steps match the inline comments):
//
//  1. Config    – env vars and .env, validated
//  2. Logging   – slog handler per PRODEX_LOG_FORMAT / PRODEX_LOG_LEVEL
//  3. Fetcher   – resty with the configured TLS profile
//  4. Renderer  – rod or chromedp, skipped when disabled
//  5. Pipeline  – acquirer plus the default cascade
func setup(logTo *os.File) (*app, error) {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log, logTo)

	// ── 3. Lightweight fetcher ──────────────────────────────────────
	fetcher, err := engine.NewHTTPEngine(cfg.Acquire)
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	// ── 4. Renderer (launches browser) ──────────────────────────────
	a := &app{cfg: cfg}
	var renderer engine.Renderer
	if cfg.Browser.Enabled {
		a.backend, err = newBackend(cfg)
		if err != nil {
			return nil, fmt.Errorf("init %s renderer: %w", cfg.Browser.Backend, err)
		}
		renderer = a.backend
	} else {
		slog.Warn("rendering disabled, escalation will use lightweight bodies only")
	}

	// ── 5. Pipeline ─────────────────────────────────────────────────
	acq := engine.NewAcquirer(fetcher, renderer, cfg.Acquire)
	a.pipeline = pipeline.NewDefault(acq, cfg.Extract)
	return a, nil
}

func newBackend(cfg *config.Config) (renderBackend, error) {
	switch cfg.Browser.Backend {
	case "chromedp":
		return scraper.NewCDPScraper(cfg.Browser, cfg.Acquire)
	default:
		return scraper.NewScraper(cfg.Browser, cfg.Acquire)
	}
}

func (a *app) close() {
	if a.backend != nil {
		a.backend.Close()
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig, w *os.File) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}
