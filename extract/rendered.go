package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/prodex/config"
	"github.com/use-agent/prodex/engine"
	"github.com/use-agent/prodex/logging"
	"github.com/use-agent/prodex/models"
)

// errNoMatch is returned by DocumentSession.WaitAny; a static snapshot
// never changes, so there is nothing to wait for.
var errNoMatch = errors.New("no selector matched the rendered document")

// Rendered reads the product from a rendered DOM. When acquisition already
// rendered, the captured HTML is queried directly. Otherwise it opens the
// one live rendering session the call is allowed.
type Rendered struct {
	renderer      engine.Renderer // nil disables the live session
	renderTimeout time.Duration
	cfg           config.ExtractConfig
}

// NewRendered creates the rendered-DOM stage. renderTimeout bounds the
// live session.
func NewRendered(renderer engine.Renderer, renderTimeout time.Duration, cfg config.ExtractConfig) *Rendered {
	return &Rendered{renderer: renderer, renderTimeout: renderTimeout, cfg: cfg}
}

func (r *Rendered) Name() string { return string(TierRendered) }

// WaitSelectors are the selectors whose presence means product content
// has materialised.
func (r *Rendered) WaitSelectors() []string {
	return []string{r.cfg.HeadingSelector, r.cfg.PriceSelector, r.cfg.DetailsSelector}
}

// Extract fails with *models.ExtractionError when none of the wait
// selectors appears in time. A failed live session is a decline, as is a
// call whose render was already attempted without producing HTML. On a
// live session the rendered HTML replaces in's document for later stages.
func (r *Rendered) Extract(ctx context.Context, in *Input) (Outcome, error) {
	log := logging.FromContext(ctx)

	if in.Rendered {
		sess, err := NewDocumentSession(in.HTML)
		if err != nil {
			return declined(TierRendered), nil
		}
		return r.read(ctx, sess)
	}
	if r.renderer == nil {
		log.Debug("rendered stage skipped: rendering disabled")
		return declined(TierRendered), nil
	}
	if in.RenderAttempted {
		log.Debug("rendered stage skipped: render already attempted")
		return declined(TierRendered), nil
	}

	sessCtx := ctx
	if r.renderTimeout > 0 {
		var cancel context.CancelFunc
		sessCtx, cancel = context.WithTimeout(ctx, r.renderTimeout)
		defer cancel()
	}

	var out Outcome
	err := r.renderer.WithSession(sessCtx, in.URL, func(sess engine.Session) error {
		var readErr error
		out, readErr = r.read(sessCtx, sess)

		if html, err := sess.HTML(sessCtx); err == nil && html != "" {
			if err := in.Promote(html); err != nil {
				log.Warn("rendered HTML could not be parsed", "error", err)
			}
		}
		return readErr
	})
	in.RenderAttempted = true

	var extractionErr *models.ExtractionError
	switch {
	case err == nil:
		return out, nil
	case errors.As(err, &extractionErr):
		return declined(TierRendered), extractionErr
	case ctx.Err() != nil:
		return declined(TierRendered), models.NewFetchError(models.FetchTimeout, "rendering session cancelled", ctx.Err())
	default:
		log.Warn("live rendering session failed, declining", "error", err)
		return declined(TierRendered), nil
	}
}

func (r *Rendered) read(ctx context.Context, sess engine.Session) (Outcome, error) {
	selectors := r.WaitSelectors()
	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.RenderedWait)
	err := sess.WaitAny(waitCtx, selectors)
	cancel()
	if err != nil {
		return declined(TierRendered), models.NewSelectorNotFound(selectors, err)
	}

	rec := &models.ProductRecord{Images: []string{}}

	if text, ok, err := sess.Text(ctx, r.cfg.PriceSelector); err == nil && ok {
		rec.Price = models.PriceOf(models.ParseLoosePrice(text))
	}
	if text, ok, err := sess.Text(ctx, r.cfg.HeadingSelector); err == nil && ok {
		rec.Name = collapse(text)
	}
	if r.cfg.AvailabilitySelector != "" {
		if text, ok, err := sess.Text(ctx, r.cfg.AvailabilitySelector); err == nil && ok && text != "" {
			rec.Availability = ClassifyAvailability(text)
			if rec.Availability == "" {
				rec.Availability = models.Unknown
			}
		}
	}
	return Outcome{Record: rec, Tier: TierRendered}, nil
}

// DocumentSession serves engine.Session from a static HTML snapshot.
type DocumentSession struct {
	html string
	doc  *goquery.Document
}

// NewDocumentSession parses html.
func NewDocumentSession(html string) (*DocumentSession, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return &DocumentSession{html: html, doc: doc}, nil
}

// WaitAny succeeds immediately when any selector matches.
func (d *DocumentSession) WaitAny(ctx context.Context, selectors []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, sel := range selectors {
		m, err := cascadia.Compile(sel)
		if err != nil {
			return fmt.Errorf("compile selector %q: %w", sel, err)
		}
		if d.doc.FindMatcher(m).Length() > 0 {
			return nil
		}
	}
	return errNoMatch
}

func (d *DocumentSession) Text(_ context.Context, selector string) (string, bool, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return "", false, fmt.Errorf("compile selector %q: %w", selector, err)
	}
	el := d.doc.FindMatcher(m).First()
	if el.Length() == 0 {
		return "", false, nil
	}
	return strings.TrimSpace(el.Text()), true, nil
}

func (d *DocumentSession) HTML(context.Context) (string, error) {
	return d.html, nil
}

var _ engine.Session = (*DocumentSession)(nil)
