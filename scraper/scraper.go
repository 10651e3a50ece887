package scraper

import (
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/use-agent/prodex/config"
	"github.com/use-agent/prodex/models"
	"golang.org/x/sync/semaphore"
)

// Scraper owns the browser process and bounds the number of concurrent
// rendering sessions. Every session gets its own incognito context, so
// no cookies or storage leak between calls. It is safe for concurrent use.
type Scraper struct {
	browser    *rod.Browser
	slots      *semaphore.Weighted
	browserCfg config.BrowserConfig
	acquireCfg config.AcquireConfig
	blocked    []string
	active     atomic.Int32
}

// NewScraper launches a headless browser.
func NewScraper(browserCfg config.BrowserConfig, acquireCfg config.AcquireConfig) (*Scraper, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewFetchError(models.FetchRenderFailure, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewFetchError(models.FetchRenderFailure, "failed to connect to browser", err)
	}

	slog.Info("rendering pool ready", "backend", "rod", "maxSessions", browserCfg.MaxSessions)

	return &Scraper{
		browser:    browser,
		slots:      semaphore.NewWeighted(int64(browserCfg.MaxSessions)),
		browserCfg: browserCfg,
		acquireCfg: acquireCfg,
		blocked:    blockedURLPatterns(browserCfg.BlockAds, browserCfg.BlockedURLPatterns),
	}, nil
}

// Stats returns a snapshot of the session pool's current state.
func (s *Scraper) Stats() models.PoolStats {
	return models.PoolStats{
		Backend:        "rod",
		MaxSessions:    s.browserCfg.MaxSessions,
		ActiveSessions: int(s.active.Load()),
	}
}

// Close kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (s *Scraper) Close() {
	slog.Info("scraper shutting down: closing browser")
	if err := s.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	slog.Info("scraper shutdown complete")
}
