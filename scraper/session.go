package scraper

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/prodex/engine"
	"github.com/use-agent/prodex/logging"
	"github.com/use-agent/prodex/models"
)

// Render navigates to url in a fresh session and captures the DOM once
// the network has settled and, if possible, a ready selector appeared.
func (s *Scraper) Render(ctx context.Context, url string) (*engine.Rendered, error) {
	var out engine.Rendered
	err := s.session(ctx, url, func(rs *rodSession) error {
		log := logging.FromContext(ctx)

		// Optional wait: proceed with whatever materialised on timeout.
		readyCtx, cancel := context.WithTimeout(ctx, s.acquireCfg.ReadyTimeout)
		defer cancel()
		if err := rs.WaitAny(readyCtx, s.acquireCfg.ReadySelectors); err != nil {
			log.Debug("no ready selector before timeout, capturing current DOM", "url", url, "error", err)
		}

		html, err := rs.HTML(ctx)
		if err != nil {
			return categorizeError(err, "failed to capture rendered HTML")
		}
		out.HTML = html
		out.FinalURL = rs.location()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// WithSession opens a live session on url and passes it to fn. fn's
// error is returned unchanged.
func (s *Scraper) WithSession(ctx context.Context, url string, fn func(engine.Session) error) error {
	return s.session(ctx, url, func(rs *rodSession) error { return fn(rs) })
}

// session runs the full page lifecycle around fn.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Slot         – wait for a free session slot (honours ctx)
//  2. Context      – ephemeral incognito browser context
//  3. Page         – fresh target inside that context
//  4. DEFER        – close page, dispose context (every exit path)
//  5. Stealth      – evasion script, before navigation
//  6. Identity     – user agent and blocked URL patterns
//  7. Idle waiter  – registered BEFORE Navigate so no request is missed
//  8. Navigate
//  9. Wait         – network idle, bounded by IdleTimeout, non-fatal
//  10. Scroll      – optional passes to trigger lazy-loaded content
//  11. fn
//
// Step 4 uses the original page reference (without the request context),
// so teardown succeeds even if the request context has expired.
func (s *Scraper) session(ctx context.Context, url string, fn func(*rodSession) error) error {
	log := logging.FromContext(ctx).With("url", url)

	// ── 1. Acquire slot ───────────────────────────────────────────────
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return categorizeError(err, "waiting for a rendering slot")
	}
	defer s.slots.Release(1)
	s.active.Add(1)
	defer s.active.Add(-1)

	// ── 2. Incognito context ──────────────────────────────────────────
	incognito, err := s.browser.Incognito()
	if err != nil {
		return models.NewFetchError(models.FetchRenderFailure, "failed to create browser context", err)
	}
	defer func() {
		if closeErr := incognito.Close(); closeErr != nil {
			log.Warn("cleanup: failed to dispose browser context", "error", closeErr)
		}
	}()

	// ── 3. Page ───────────────────────────────────────────────────────
	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return models.NewFetchError(models.FetchRenderFailure, "failed to create page", err)
	}

	// ── 4. CRITICAL DEFER: page teardown ──────────────────────────────
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			log.Warn("cleanup: failed to close page", "error", closeErr)
		}
	}()

	// ── 5. Stealth injection ──────────────────────────────────────────
	if s.browserCfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			log.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	// ── 6. Identity and blocking ──────────────────────────────────────
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      s.acquireCfg.UserAgent,
		AcceptLanguage: s.acquireCfg.AcceptLanguage,
	}); err != nil {
		log.Warn("set user agent failed", "error", err)
	}
	blockURLs(page, s.blocked, log)

	// ── 7. Bind context and set up idle waiter BEFORE navigation ──────
	p := page.Context(ctx)
	idleCtx, idleCancel := context.WithTimeout(ctx, s.acquireCfg.IdleTimeout)
	defer idleCancel()
	waitIdle := page.Context(idleCtx).WaitRequestIdle(s.acquireCfg.IdleWindow, nil, nil, nil)

	// ── 8. Navigate ───────────────────────────────────────────────────
	if err := p.Navigate(url); err != nil {
		return categorizeError(err, "navigation to target URL failed")
	}

	// ── 9. Wait for network idle ──────────────────────────────────────
	waitIdle()
	if idleCtx.Err() != nil && ctx.Err() == nil {
		log.Debug("network did not settle before idle timeout, proceeding")
	}
	if err := ctx.Err(); err != nil {
		return categorizeError(err, "rendering deadline reached")
	}

	// ── 10. Scroll for lazy content ───────────────────────────────────
	if s.browserCfg.ScrollPasses > 0 {
		if err := scrollPage(p, s.browserCfg.ScrollPasses); err != nil {
			log.Debug("scroll failed", "error", err)
		}
	}

	// ── 11. Caller ────────────────────────────────────────────────────
	return fn(&rodSession{page: p})
}

// rodSession adapts a live rod page to engine.Session.
type rodSession struct {
	page *rod.Page
}

func (rs *rodSession) WaitAny(ctx context.Context, selectors []string) error {
	if len(selectors) == 0 {
		return nil
	}
	race := rs.page.Context(ctx).Race()
	for _, sel := range selectors {
		race = race.Element(sel)
	}
	_, err := race.Do()
	return err
}

func (rs *rodSession) Text(ctx context.Context, selector string) (string, bool, error) {
	has, el, err := rs.page.Context(ctx).Has(selector)
	if err != nil || !has {
		return "", false, err
	}
	text, err := el.Text()
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(text), true, nil
}

func (rs *rodSession) HTML(ctx context.Context) (string, error) {
	return rs.page.Context(ctx).HTML()
}

// location returns window.location.href, or "" when it cannot be read.
func (rs *rodSession) location() string {
	res, err := rs.page.Eval(`() => window.location.href`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// scrollPage scrolls one viewport at a time, pausing between steps to let
// lazy-loaded content trigger.
func scrollPage(p *rod.Page, passes int) error {
	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return err
	}
	viewportHeight := res.Value.Int()
	for i := 0; i < passes; i++ {
		if err := p.Mouse.Scroll(0, float64(viewportHeight), 0); err != nil {
			return err
		}
		time.Sleep(150 * time.Millisecond)
	}
	return nil
}

// categorizeError maps rod/context errors to the FetchError taxonomy.
func categorizeError(err error, msg string) *models.FetchError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.NewFetchError(models.FetchTimeout, msg, err)
	}
	return models.NewFetchError(models.FetchRenderFailure, msg, err)
}

var _ engine.Renderer = (*Scraper)(nil)

// blockURLs enables the network domain and installs the blocked patterns.
// Failures are logged; the page still renders without blocking.
func blockURLs(c proto.Client, patterns []string, log *slog.Logger) {
	if len(patterns) == 0 {
		return
	}
	if err := (proto.NetworkEnable{}).Call(c); err != nil {
		log.Warn("enable network domain failed, url blocking may not apply", "error", err)
	}
	if err := (proto.NetworkSetBlockedURLs{Urls: patterns}).Call(c); err != nil {
		log.Warn("set blocked urls failed", "error", err)
	}
}
