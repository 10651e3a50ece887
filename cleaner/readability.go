package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// DefaultMinMainText is the minimum TextContent length (in characters) for
// readability output to be accepted. Shorter articles mean the algorithm
// failed to locate the main content.
const DefaultMinMainText = 50

// Main is the narrative content recovered from a page.
type Main struct {
	Text  string
	Title string

	// Pruned is true when the scoring fallback produced Text.
	Pruned bool
}

// MainText runs the Mozilla Readability algorithm on rawHTML.
//
// Fallback behaviour (the boilerplate stage must always produce something):
//   - If URL parsing fails           → pruning fallback
//   - If readability.FromReader errs → pruning fallback
//   - If extracted text < minLen     → pruning fallback, unless pruning
//     recovers even less
func MainText(rawHTML, sourceURL string, minLen int) Main {
	if minLen <= 0 {
		minLen = DefaultMinMainText
	}

	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("readability: invalid source URL, using pruning fallback",
			"url", sourceURL, "error", err,
		)
		return pruned(rawHTML, Main{})
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		slog.Warn("readability: extraction failed, using pruning fallback",
			"url", sourceURL, "error", err,
		)
		return pruned(rawHTML, Main{})
	}

	got := Main{
		Text:  collapseWhitespace(article.TextContent),
		Title: strings.TrimSpace(article.Title),
	}
	if len([]rune(got.Text)) < minLen {
		slog.Debug("readability: extracted content too short, using pruning fallback",
			"url", sourceURL, "length", len(got.Text),
		)
		return pruned(rawHTML, got)
	}
	return got
}

// pruned replaces prior.Text with the pruning result when that is longer.
func pruned(rawHTML string, prior Main) Main {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return prior
	}
	text := PruneText(doc)
	if len(text) > len(prior.Text) {
		prior.Text = text
		prior.Pruned = true
	}
	return prior
}

// collapseWhitespace folds runs of whitespace into single spaces, keeping
// paragraph breaks as newlines.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
