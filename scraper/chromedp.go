package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"
	"github.com/use-agent/prodex/config"
	"github.com/use-agent/prodex/engine"
	"github.com/use-agent/prodex/logging"
	"github.com/use-agent/prodex/models"
	"golang.org/x/sync/semaphore"
)

// CDPScraper is the chromedp rendering backend. It follows the same
// session rules as Scraper: one incognito browser context per call, a
// bounded number of concurrent sessions, teardown on every exit path.
type CDPScraper struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc

	slots      *semaphore.Weighted
	browserCfg config.BrowserConfig
	acquireCfg config.AcquireConfig
	blocked    []string
	active     atomic.Int32
}

// NewCDPScraper starts a browser through chromedp's exec allocator.
func NewCDPScraper(browserCfg config.BrowserConfig, acquireCfg config.AcquireConfig) (*CDPScraper, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", browserCfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.UserAgent(acquireCfg.UserAgent),
	)
	if browserCfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if browserCfg.BrowserBin != "" {
		opts = append(opts, chromedp.ExecPath(browserCfg.BrowserBin))
	}
	if browserCfg.DefaultProxy != "" {
		opts = append(opts, chromedp.ProxyServer(browserCfg.DefaultProxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...any) {}))

	// Run with no actions starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, models.NewFetchError(models.FetchRenderFailure, "failed to launch browser", err)
	}
	slog.Info("rendering pool ready", "backend", "chromedp", "maxSessions", browserCfg.MaxSessions)

	return &CDPScraper{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
		slots:       semaphore.NewWeighted(int64(browserCfg.MaxSessions)),
		browserCfg:  browserCfg,
		acquireCfg:  acquireCfg,
		blocked:     blockedURLPatterns(browserCfg.BlockAds, browserCfg.BlockedURLPatterns),
	}, nil
}

// Render navigates to url and captures the DOM.
func (s *CDPScraper) Render(ctx context.Context, url string) (*engine.Rendered, error) {
	var out engine.Rendered
	err := s.session(ctx, url, func(cs *cdpSession) error {
		readyCtx, cancel := context.WithTimeout(ctx, s.acquireCfg.ReadyTimeout)
		defer cancel()
		if err := cs.WaitAny(readyCtx, s.acquireCfg.ReadySelectors); err != nil {
			logging.FromContext(ctx).Debug("no ready selector before timeout, capturing current DOM", "url", url)
		}

		html, err := cs.HTML(ctx)
		if err != nil {
			return categorizeError(err, "failed to capture rendered HTML")
		}
		out.HTML = html
		out.FinalURL = cs.location(ctx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// WithSession opens a live session on url and passes it to fn.
func (s *CDPScraper) WithSession(ctx context.Context, url string, fn func(engine.Session) error) error {
	return s.session(ctx, url, func(cs *cdpSession) error { return fn(cs) })
}

func (s *CDPScraper) session(ctx context.Context, url string, fn func(*cdpSession) error) error {
	log := logging.FromContext(ctx).With("url", url)

	// ── 1. Acquire slot ───────────────────────────────────────────────
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return categorizeError(err, "waiting for a rendering slot")
	}
	defer s.slots.Release(1)
	s.active.Add(1)
	defer s.active.Add(-1)

	// ── 2. Tab in a fresh browser context ─────────────────────────────
	// Cancelling tabCtx closes the target and disposes its context.
	tabCtx, closeTab := chromedp.NewContext(s.browserCtx, chromedp.WithNewBrowserContext())
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	runCtx := tabCtx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(tabCtx, deadline)
		defer cancel()
	}

	idle := newIdleTracker()
	chromedp.ListenTarget(tabCtx, idle.observe)

	// ── 3. Stealth, identity and blocking ─────────────────────────────
	setup := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(s.acquireCfg.UserAgent).
			WithAcceptLanguage(s.acquireCfg.AcceptLanguage),
	}
	if s.browserCfg.Stealth {
		setup = append(setup, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealth.JS).Do(ctx)
			return err
		}))
	}
	if len(s.blocked) > 0 {
		setup = append(setup, network.SetBlockedURLs(s.blocked))
	}
	if err := chromedp.Run(runCtx, setup); err != nil {
		return s.failure(ctx, err, "failed to prepare rendering session")
	}

	// ── 4. Navigate ───────────────────────────────────────────────────
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return s.failure(ctx, err, "navigation to target URL failed")
	}

	// ── 5. Wait for network idle ──────────────────────────────────────
	idleCtx, idleCancel := context.WithTimeout(runCtx, s.acquireCfg.IdleTimeout)
	if !idle.wait(idleCtx, s.acquireCfg.IdleWindow) && ctx.Err() == nil {
		log.Debug("network did not settle before idle timeout, proceeding")
	}
	idleCancel()
	if err := ctx.Err(); err != nil {
		return categorizeError(err, "rendering deadline reached")
	}

	// ── 6. Scroll for lazy content ────────────────────────────────────
	for i := 0; i < s.browserCfg.ScrollPasses; i++ {
		if err := chromedp.Run(runCtx,
			chromedp.Evaluate(`window.scrollBy(0, window.innerHeight)`, nil),
			chromedp.Sleep(150*time.Millisecond),
		); err != nil {
			log.Debug("scroll failed", "error", err)
			break
		}
	}

	// ── 7. Caller ─────────────────────────────────────────────────────
	return fn(&cdpSession{ctx: runCtx})
}

// failure maps a chromedp error, preferring the caller's context state
// because a closed tab surfaces as a generic error.
func (s *CDPScraper) failure(ctx context.Context, err error, msg string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return categorizeError(ctxErr, msg)
	}
	return categorizeError(err, msg)
}

// Stats returns a snapshot of the session pool's current state.
func (s *CDPScraper) Stats() models.PoolStats {
	return models.PoolStats{
		Backend:        "chromedp",
		MaxSessions:    s.browserCfg.MaxSessions,
		ActiveSessions: int(s.active.Load()),
	}
}

// Close shuts the browser down.
func (s *CDPScraper) Close() {
	slog.Info("scraper shutting down: closing browser")
	s.cancel()
	s.allocCancel()
	slog.Info("scraper shutdown complete")
}

// cdpSession adapts a chromedp tab to engine.Session.
type cdpSession struct {
	ctx context.Context
}

// bind runs actions on the tab while also honouring the caller's ctx.
func (cs *cdpSession) bind(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(cs.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (cs *cdpSession) WaitAny(ctx context.Context, selectors []string) error {
	if len(selectors) == 0 {
		return nil
	}
	return cs.bind(ctx, chromedp.WaitReady(strings.Join(selectors, ", "), chromedp.ByQuery))
}

type textResult struct {
	Found bool   `json:"found"`
	Text  string `json:"text"`
}

func (cs *cdpSession) Text(ctx context.Context, selector string) (string, bool, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return "", false, err
	}
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return el ? {found: true, text: (el.innerText || el.textContent || "").trim()} : {found: false, text: ""};
	})()`, quoted)

	var found textResult
	if err := cs.bind(ctx, chromedp.Evaluate(js, &found)); err != nil {
		return "", false, err
	}
	return found.Text, found.Found, nil
}

func (cs *cdpSession) HTML(ctx context.Context) (string, error) {
	var html string
	err := cs.bind(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (cs *cdpSession) location(ctx context.Context) string {
	var loc string
	if err := cs.bind(ctx, chromedp.Location(&loc)); err != nil {
		return ""
	}
	return loc
}

// idleTracker counts in-flight requests from target events.
type idleTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	last     time.Time
}

func newIdleTracker() *idleTracker {
	return &idleTracker{inflight: make(map[network.RequestID]struct{}), last: time.Now()}
}

func (t *idleTracker) observe(ev any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(t.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(t.inflight, e.RequestID)
	default:
		return
	}
	t.last = time.Now()
}

func (t *idleTracker) quietFor() (int, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight), time.Since(t.last)
}

// wait blocks until no request has been in flight for window. It returns
// false when ctx expires first.
func (t *idleTracker) wait(ctx context.Context, window time.Duration) bool {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if n, quiet := t.quietFor(); n == 0 && quiet >= window {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

var _ engine.Renderer = (*CDPScraper)(nil)
