package engine

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/use-agent/prodex/config"
	"github.com/use-agent/prodex/logging"
	"github.com/use-agent/prodex/models"
)

// Acquisition is the transient result of one Acquire call.
type Acquisition struct {
	HTML               string
	RenderedViaBrowser bool
	FinalURL           string
	StatusCode         int

	// RenderAttempted is true once a rendering session ran, whether or
	// not it produced the HTML.
	RenderAttempted bool

	// Verdict is how the lightweight fetch was classified.
	Verdict Verdict

	// Duration is the wall time spent acquiring.
	Duration time.Duration
}

// Acquirer obtains raw page content for a URL: one lightweight fetch and,
// when that is blocked, challenged or insufficient, at most one rendered
// fetch. It holds no per-call state and is safe for concurrent use.
type Acquirer struct {
	fetcher    Fetcher
	renderer   Renderer // nil when rendering is disabled
	classifier *Classifier
	cfg        config.AcquireConfig
}

// NewAcquirer wires a fetcher and an optional renderer. Pass a nil
// renderer to disable escalation.
func NewAcquirer(fetcher Fetcher, renderer Renderer, cfg config.AcquireConfig) *Acquirer {
	return &Acquirer{
		fetcher:    fetcher,
		renderer:   renderer,
		classifier: NewClassifier(cfg.ChallengeMarkers, cfg.ProductMarkers),
		cfg:        cfg,
	}
}

// Renderer returns the renderer used for escalation, or nil.
func (a *Acquirer) Renderer() Renderer {
	return a.renderer
}

// RenderTimeout is the bound applied to every rendering session.
func (a *Acquirer) RenderTimeout() time.Duration {
	return a.cfg.RenderTimeout
}

// Acquire fetches rawURL. It fails with *models.FetchError only when no
// content could be obtained.
//
// Escalation policy (numbered steps match the inline comments):
//
//  1. Validate     – malformed URLs fail with NETWORK_FAILURE, no render
//  2. Lightweight  – one GET bounded by FetchTimeout
//  3. Classify     – blocked / challenged / insufficient / sufficient
//  4. Render       – at most once, bounded by RenderTimeout
//  5. Fallback     – an insufficient 2xx body survives a failed render
func (a *Acquirer) Acquire(ctx context.Context, rawURL string) (*Acquisition, error) {
	start := time.Now()
	log := logging.FromContext(ctx).With("url", rawURL)

	// ── 1. Validate ───────────────────────────────────────────────────
	if err := models.ValidateTargetURL(rawURL); err != nil {
		return nil, models.NewFetchError(models.FetchNetworkFailure, "invalid url", err)
	}

	// ── 2. Lightweight fetch ──────────────────────────────────────────
	res, fetchErr := a.fetcher.Fetch(ctx, &FetchRequest{URL: rawURL, Timeout: a.cfg.FetchTimeout})
	if err := ctx.Err(); err != nil {
		return nil, categorizeError(err, "acquisition cancelled")
	}
	if nonRecoverable(fetchErr) {
		return nil, models.NewFetchError(models.FetchNetworkFailure, "lightweight fetch failed", fetchErr)
	}

	// ── 3. Classify ───────────────────────────────────────────────────
	verdict := a.classifier.Classify(res, fetchErr)
	attrs := []any{"verdict", verdict, "fetcher", a.fetcher.Name()}
	if res != nil {
		attrs = append(attrs, "status", res.StatusCode, "bytes", len(res.HTML))
	}
	if fetchErr != nil {
		attrs = append(attrs, "error", fetchErr)
	}
	log.Info("lightweight fetch classified", attrs...)

	if !verdict.Escalate() {
		return &Acquisition{
			HTML:       res.HTML,
			FinalURL:   res.FinalURL,
			StatusCode: res.StatusCode,
			Verdict:    verdict,
			Duration:   time.Since(start),
		}, nil
	}

	// ── 4. Render ─────────────────────────────────────────────────────
	if a.renderer == nil {
		if verdict == VerdictInsufficient {
			log.Warn("rendering disabled, using lightweight body")
			return lightweight(res, verdict, start), nil
		}
		return nil, models.NewFetchError(models.FetchBlocked, "lightweight fetch "+string(verdict)+" and rendering is disabled", fetchErr)
	}

	rendered, renderErr := a.render(ctx, rawURL)
	if renderErr != nil {
		// ── 5. Fallback ───────────────────────────────────────────────
		if verdict == VerdictInsufficient && ctx.Err() == nil {
			log.Warn("render failed, using lightweight body", "error", renderErr)
			acq := lightweight(res, verdict, start)
			acq.RenderAttempted = true
			return acq, nil
		}
		log.Warn("render failed", "error", renderErr)
		return nil, renderErr
	}

	finalURL := rendered.FinalURL
	if finalURL == "" {
		finalURL = rawURL
	}
	log.Info("render complete", "bytes", len(rendered.HTML), "elapsed", time.Since(start))
	return &Acquisition{
		HTML:               rendered.HTML,
		RenderedViaBrowser: true,
		RenderAttempted:    true,
		FinalURL:           finalURL,
		Verdict:            verdict,
		Duration:           time.Since(start),
	}, nil
}

// render performs one bounded rendering session and maps its failure to
// a FetchError.
func (a *Acquirer) render(ctx context.Context, rawURL string) (*Rendered, error) {
	if a.cfg.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.RenderTimeout)
		defer cancel()
	}
	rendered, err := a.renderer.Render(ctx, rawURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, categorizeError(ctxErr, "rendering timed out")
		}
		var fe *models.FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, categorizeError(err, "rendering failed")
	}
	return rendered, nil
}

func lightweight(res *FetchResult, verdict Verdict, start time.Time) *Acquisition {
	return &Acquisition{
		HTML:       res.HTML,
		FinalURL:   res.FinalURL,
		StatusCode: res.StatusCode,
		Verdict:    verdict,
		Duration:   time.Since(start),
	}
}

// nonRecoverable reports transport failures a browser cannot fix either.
// Everything else is escalated, since many bot walls present as generic
// connection errors.
func nonRecoverable(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

// categorizeError maps context errors to TIMEOUT and anything else to
// RENDER_FAILURE.
func categorizeError(err error, msg string) *models.FetchError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.NewFetchError(models.FetchTimeout, msg, err)
	}
	return models.NewFetchError(models.FetchRenderFailure, msg, err)
}
