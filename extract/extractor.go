// Package extract implements the product extractor cascade. Each stage
// reads one kind of evidence from a page and either produces a record or
// declines; the pipeline package decides the order.
package extract

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/prodex/models"
)

// Tier ranks where a record came from, in decreasing confidence.
type Tier string

const (
	TierStructured  Tier = "structured"
	TierMeta        Tier = "meta"
	TierHeuristic   Tier = "heuristic"
	TierRendered    Tier = "rendered"
	TierBoilerplate Tier = "boilerplate"
)

// Outcome is what one stage produced. A nil Record means the stage
// declined.
type Outcome struct {
	Record *models.ProductRecord
	Tier   Tier

	// Source names the sub-source within the stage, e.g. "json-ld".
	Source string
}

// Usable reports whether the outcome ends the cascade.
func (o Outcome) Usable() bool {
	return o.Record != nil && o.Record.Usable()
}

// Extractor is one stage of the cascade.
//
// Extract must not fail on malformed page content; parse problems are a
// decline. *models.ExtractionError is the only error the pipeline treats
// as a decline, anything else aborts the call.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, in *Input) (Outcome, error)
}

// Hints carry evidence recovered by earlier stages.
type Hints struct {
	// Name is the first name any earlier stage found, typically meta.
	Name string

	// Images are the first images an earlier stage found.
	Images []string
}

// Input is the page as seen by the cascade. It is owned by one pipeline
// call.
type Input struct {
	// URL is the final page URL after redirects.
	URL  string
	Base *url.URL

	HTML string
	Doc  *goquery.Document

	// Rendered is true once the HTML came from a headless browser.
	Rendered bool

	// RenderAttempted is true once the call has spent its rendering
	// session, including one that failed. The rendered stage never opens
	// another.
	RenderAttempted bool

	Hints Hints

	visible    string
	hasVisible bool
}

// NewInput parses html for the cascade. Parsing never fails on malformed
// markup; an error only comes from the reader.
func NewInput(pageURL, html string, rendered bool) (*Input, error) {
	in := &Input{URL: pageURL, Rendered: rendered, RenderAttempted: rendered}
	if u, err := url.Parse(pageURL); err == nil {
		in.Base = u
	}
	if err := in.load(html); err != nil {
		return nil, err
	}
	return in, nil
}

// Promote swaps in HTML captured by a rendering session, so later stages
// read the rendered DOM.
func (in *Input) Promote(html string) error {
	if err := in.load(html); err != nil {
		return err
	}
	in.Rendered = true
	return nil
}

func (in *Input) load(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	in.HTML = html
	in.Doc = doc
	in.visible, in.hasVisible = "", false
	return nil
}

// VisibleText is the text a reader would see, computed once per document.
func (in *Input) VisibleText() string {
	if !in.hasVisible {
		in.visible = VisibleText(in.HTML)
		in.hasVisible = true
	}
	return in.visible
}

// Title returns the trimmed <title> text.
func (in *Input) Title() string {
	return strings.TrimSpace(in.Doc.Find("title").First().Text())
}

// Heading returns the trimmed text of the first h1.
func (in *Input) Heading() string {
	return strings.Join(strings.Fields(in.Doc.Find("h1").First().Text()), " ")
}

func declined(tier Tier) Outcome {
	return Outcome{Tier: tier}
}
