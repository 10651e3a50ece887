// Package pipeline runs one extraction call: acquisition followed by the
// extractor cascade.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/use-agent/prodex/cleaner"
	"github.com/use-agent/prodex/config"
	"github.com/use-agent/prodex/engine"
	"github.com/use-agent/prodex/extract"
	"github.com/use-agent/prodex/logging"
	"github.com/use-agent/prodex/models"
)

// Acquirer obtains page content. *engine.Acquirer implements it.
type Acquirer interface {
	Acquire(ctx context.Context, rawURL string) (*engine.Acquisition, error)
}

// Result is the outcome of one Run.
type Result struct {
	Record models.ProductRecord

	// Stage is the name of the extractor that produced Record.
	Stage  string
	Tier   extract.Tier
	Source string

	// URL is the final page URL after redirects.
	URL string

	// Rendered is true when a headless browser produced the HTML the
	// winning stage read.
	Rendered bool
	Verdict  engine.Verdict

	AcquireDuration time.Duration
	ExtractDuration time.Duration
	TotalDuration   time.Duration
}

// Pipeline is the extraction state machine. Stages run strictly in order;
// a stage that declines hands over to the next, the first usable record
// ends the call and the last stage is terminal. It holds no per-call
// state and is safe for concurrent use.
type Pipeline struct {
	acquirer     Acquirer
	stages       []extract.Extractor
	stateMarkers []string
}

// New creates a pipeline over an explicit stage list.
func New(acquirer Acquirer, stages []extract.Extractor, cfg config.ExtractConfig) *Pipeline {
	return &Pipeline{acquirer: acquirer, stages: stages, stateMarkers: cfg.StateMarkers}
}

// NewDefault wires the standard cascade:
// structured → meta → heuristic → rendered → boilerplate.
// The rendered stage shares the acquirer's renderer, so a call renders at
// most once across acquisition and extraction.
func NewDefault(acq *engine.Acquirer, cfg config.ExtractConfig) *Pipeline {
	desc := cleaner.NewDescriptionFormatter(cfg.DescriptionFormat)
	return New(acq, DefaultStages(acq.Renderer(), acq.RenderTimeout(), cfg, desc), cfg)
}

// DefaultStages returns the standard cascade in priority order.
func DefaultStages(renderer engine.Renderer, renderTimeout time.Duration, cfg config.ExtractConfig, desc *cleaner.DescriptionFormatter) []extract.Extractor {
	return []extract.Extractor{
		extract.NewStructured(cfg, desc),
		extract.NewMeta(),
		extract.NewHeuristic(),
		extract.NewRendered(renderer, renderTimeout, cfg),
		extract.NewBoilerplate(cfg.MinMainText),
	}
}

// Run extracts the product at rawURL.
//
// Flow (numbered steps match the inline comments):
//
//  1. Acquire   – the only step that fails the call on bad upstream
//  2. Parse     – build the cascade input from the acquired HTML
//  3. Cascade   – stop at the first usable record, terminal stage wins
//
// *models.ExtractionError from a stage is a decline. Any other stage error
// is returned as an internal failure.
func (p *Pipeline) Run(ctx context.Context, rawURL string) (*Result, error) {
	start := time.Now()
	log := logging.FromContext(ctx).With("url", rawURL)

	// ── 1. Acquire ────────────────────────────────────────────────────
	acq, err := p.acquirer.Acquire(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	acquired := time.Now()

	// ── 2. Parse ──────────────────────────────────────────────────────
	in, err := extract.NewInput(finalURL(acq, rawURL), acq.HTML, acq.RenderedViaBrowser)
	if err != nil {
		return nil, fmt.Errorf("pipeline: parse acquired html: %w", err)
	}
	if acq.RenderAttempted {
		in.RenderAttempted = true
	}

	// ── 3. Cascade ────────────────────────────────────────────────────
	for i, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, models.NewFetchError(models.FetchTimeout, "extraction cancelled", err)
		}
		terminal := i == len(p.stages)-1

		out, err := stage.Extract(ctx, in)
		if err != nil {
			var ee *models.ExtractionError
			if !errors.As(err, &ee) {
				return nil, fmt.Errorf("pipeline: stage %s: %w", stage.Name(), err)
			}
			log.Info("stage declined", "stage", stage.Name(), "reason", ee)
			continue
		}
		carryHints(in, out)

		if out.Record == nil || (!out.Usable() && !terminal) {
			log.Debug("stage declined", "stage", stage.Name())
			continue
		}

		res := &Result{
			Record:          *out.Record,
			Stage:           stage.Name(),
			Tier:            out.Tier,
			Source:          out.Source,
			URL:             in.URL,
			Rendered:        in.Rendered,
			Verdict:         acq.Verdict,
			AcquireDuration: acquired.Sub(start),
			ExtractDuration: time.Since(acquired),
			TotalDuration:   time.Since(start),
		}
		log.Info("extraction complete",
			"stage", res.Stage,
			"source", res.Source,
			"rendered", res.Rendered,
			"verdict", res.Verdict,
			"elapsed", res.TotalDuration,
		)
		return res, nil
	}

	return nil, fmt.Errorf("pipeline: no stage produced a record for %s", rawURL)
}

// Fields acquires rawURL and enumerates its structured keys, itemprops
// and meta tags.
func (p *Pipeline) Fields(ctx context.Context, rawURL string) (*models.FieldsReport, error) {
	acq, err := p.acquirer.Acquire(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	in, err := extract.NewInput(finalURL(acq, rawURL), acq.HTML, acq.RenderedViaBrowser)
	if err != nil {
		return nil, fmt.Errorf("pipeline: parse acquired html: %w", err)
	}
	report := extract.Fields(in, p.stateMarkers)
	return &report, nil
}

// carryHints forwards the first name and images any stage saw.
func carryHints(in *extract.Input, out extract.Outcome) {
	if out.Record == nil {
		return
	}
	if in.Hints.Name == "" {
		in.Hints.Name = out.Record.Name
	}
	if len(in.Hints.Images) == 0 && len(out.Record.Images) > 0 {
		in.Hints.Images = out.Record.Images
	}
}

func finalURL(acq *engine.Acquisition, rawURL string) string {
	if acq.FinalURL != "" {
		return acq.FinalURL
	}
	return rawURL
}
