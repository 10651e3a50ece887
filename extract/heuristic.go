package extract

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/use-agent/prodex/models"
)

// amountPattern accepts any decimal digits plus the Arabic separators.
const amountPattern = `(\p{Nd}[\p{Nd},٬]*(?:[.٫]\p{Nd}+)?)`

// currencyEnd stops a currency code from matching the start of a word.
const currencyEnd = `(?:$|[^\p{L}\p{N}])`

var (
	// Amount followed by a currency: "120 ريال", "19.99$", "1,299 SAR".
	suffixPriceRe = regexp.MustCompile(amountPattern + `\s*(ريال|ر\.س|SAR|USD|\$|€|EUR|£|GBP|AED|درهم)` + currencyEnd)

	// Currency followed by an amount: "$19.99", "SAR 1,299".
	prefixPriceRe = regexp.MustCompile(`(\$|SAR|USD|€|£)\s*` + amountPattern)

	positiveStockRe = phraseRegexp("متوفر", "متاح", "in stock", "available")
	negativeStockRe = phraseRegexp("غير متوفر", "نفدت الكمية", "نفد", "out of stock", "sold out", "unavailable")
)

// negators void a positive stock phrase they directly precede.
var negators = []string{"غير", "not", "un"}

// phraseRegexp matches any phrase as a whole word. Go's \b only knows
// ASCII word characters, so boundaries are spelled out with Unicode
// classes. The phrase is capture group 1.
func phraseRegexp(phrases ...string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(p), " ", `\s+`)
	}
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}\p{N}])`)
}

// Heuristic scans the visible page text for a price and stock phrases.
type Heuristic struct{}

// NewHeuristic creates the heuristic text stage.
func NewHeuristic() *Heuristic { return &Heuristic{} }

func (h *Heuristic) Name() string { return string(TierHeuristic) }

// Extract declines when neither a price nor a stock phrase is found.
func (h *Heuristic) Extract(_ context.Context, in *Input) (Outcome, error) {
	text := in.VisibleText()
	price, hasPrice := FindPrice(text)
	availability := ClassifyAvailability(text)
	if !hasPrice && availability == "" {
		return declined(TierHeuristic), nil
	}

	rec := &models.ProductRecord{
		Name:         firstNonEmpty(in.Heading(), in.Title(), in.Hints.Name),
		Availability: availability,
		Images:       append([]string{}, in.Hints.Images...),
		Price:        models.PriceOf(price, hasPrice),
	}
	return Outcome{Record: rec, Tier: TierHeuristic}, nil
}

// FindPrice returns the first amount written next to a known currency,
// preferring the amount-then-currency form.
func FindPrice(text string) (float64, bool) {
	if m := suffixPriceRe.FindStringSubmatch(text); m != nil {
		if p, ok := models.ParsePrice(m[1]); ok {
			return p, true
		}
	}
	if m := prefixPriceRe.FindStringSubmatch(text); m != nil {
		return models.ParsePrice(m[2])
	}
	return 0, false
}

// ClassifyAvailability checks the positive phrases first, then the
// negative ones. It returns "" when neither set matches.
func ClassifyAvailability(text string) models.Availability {
	for _, loc := range positiveStockRe.FindAllStringSubmatchIndex(text, -1) {
		if !negated(text[:loc[2]]) {
			return models.InStock
		}
	}
	if negativeStockRe.MatchString(text) {
		return models.OutOfStock
	}
	return ""
}

// negated reports whether before ends with a negator word.
func negated(before string) bool {
	before = strings.ToLower(strings.TrimRightFunc(before, unicode.IsSpace))
	for _, neg := range negators {
		if !strings.HasSuffix(before, neg) {
			continue
		}
		rest := []rune(strings.TrimSuffix(before, neg))
		if len(rest) == 0 || !isWordRune(rest[len(rest)-1]) {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
