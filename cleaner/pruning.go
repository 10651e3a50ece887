package cleaner

import (
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// pruneScoreThreshold is the minimum weighted score a block element must reach
// to be retained as main content. Blocks scoring at or below this value are
// discarded as boilerplate (navigation, sidebars, footers, ads, etc.).
const pruneScoreThreshold = 0.0

// Signal weights for the pruning scorer.
const (
	wTextDensity   = 3.0
	wLinkDensity   = -2.0
	wTagWeight     = 1.5
	wClassIDWeight = 1.0
	wTextLength    = 0.5
)

// positiveClassIDPatterns are substrings in class/id attributes that indicate
// main content areas on product pages.
var positiveClassIDPatterns = []string{
	"content", "product", "description", "detail", "main", "text", "body",
}

// negativeClassIDPatterns are substrings in class/id attributes that indicate
// non-content areas (boilerplate).
var negativeClassIDPatterns = []string{
	"sidebar", "ads", "advert", "widget", "nav", "menu", "comment", "footer",
	"header", "banner", "popup", "modal", "cookie", "social", "share",
	"related", "recommend", "promo", "breadcrumb", "newsletter",
}

// noiseSelector matches elements that never carry readable text.
const noiseSelector = "script, style, noscript, template, svg, iframe"

// PruneText recovers main text from doc using a scoring-based approach.
// Each top-level block element in <body> is scored on text density, link
// density, semantic tag weight, class/id signals and text length. Only
// blocks exceeding the threshold are retained.
//
// If no block passes the threshold, the whole body text is returned. Noise
// elements are removed from doc in place.
func PruneText(doc *goquery.Document) string {
	doc.Find(noiseSelector).Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		return collapseWhitespace(doc.Text())
	}

	var retained []string
	body.Children().Each(func(_ int, el *goquery.Selection) {
		if scoreElement(el) > pruneScoreThreshold {
			if text := collapseWhitespace(el.Text()); text != "" {
				retained = append(retained, text)
			}
		}
	})

	if len(retained) == 0 {
		return collapseWhitespace(body.Text())
	}
	return strings.Join(retained, "\n")
}

// blockSignals are the raw measurements the scorer combines.
type blockSignals struct {
	textLen     int
	markupLen   int
	linkTextLen int
	tag         string
	classID     string
}

func measure(el *goquery.Selection) blockSignals {
	sig := blockSignals{
		textLen: len(strings.TrimSpace(el.Text())),
		tag:     goquery.NodeName(el),
	}
	if markup, err := goquery.OuterHtml(el); err == nil {
		sig.markupLen = len(markup)
	}
	el.Find("a").Each(func(_ int, a *goquery.Selection) {
		sig.linkTextLen += len(strings.TrimSpace(a.Text()))
	})
	class, _ := el.Attr("class")
	id, _ := el.Attr("id")
	sig.classID = strings.ToLower(class + " " + id)
	return sig
}

// scoreElement computes the weighted boilerplate score of a block.
func scoreElement(el *goquery.Selection) float64 {
	sig := measure(el)

	var textDensity, linkDensity float64
	if sig.markupLen > 0 {
		textDensity = float64(sig.textLen) / float64(sig.markupLen)
	}
	if sig.textLen > 0 {
		linkDensity = float64(sig.linkTextLen) / float64(sig.textLen)
	}

	return textDensity*wTextDensity +
		linkDensity*wLinkDensity +
		tagWeight(sig.tag)*wTagWeight +
		classIDWeight(sig.classID)*wClassIDWeight +
		math.Log10(float64(sig.textLen)+1)*wTextLength
}

// tagWeight boosts semantic content tags and penalises layout chrome.
func tagWeight(tag string) float64 {
	switch tag {
	case "article", "main", "section":
		return 5.0
	case "nav", "footer", "aside", "header", "form":
		return -5.0
	}
	return 0
}

// classIDWeight counts at most one positive and one negative hit.
func classIDWeight(classID string) float64 {
	score := 0.0
	if containsAny(classID, positiveClassIDPatterns) {
		score += 3.0
	}
	if containsAny(classID, negativeClassIDPatterns) {
		score -= 3.0
	}
	return score
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
