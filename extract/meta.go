package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/prodex/cleaner"
	"github.com/use-agent/prodex/models"
)

// Meta reads OpenGraph, Twitter-card and product meta tags. OpenGraph
// keys are listed first and win over Twitter equivalents.
type Meta struct{}

// NewMeta creates the meta-tag stage.
func NewMeta() *Meta { return &Meta{} }

func (m *Meta) Name() string { return string(TierMeta) }

// Extract never declines; the pipeline applies the usability rule.
func (m *Meta) Extract(_ context.Context, in *Input) (Outcome, error) {
	tags := MetaTags(in.Doc)

	rec := &models.ProductRecord{
		Name:         tags.first("og:title", "twitter:title"),
		Description:  tags.first("og:description", "twitter:description"),
		Availability: models.NormalizeAvailability(tags.first("product:availability", "og:availability")),
		Images:       []string{},
	}
	if img, ok := cleaner.ResolveImage(in.Base, tags.first("og:image", "og:image:secure_url", "twitter:image")); ok {
		rec.Images = []string{img}
	}
	if price, ok := models.ParsePrice(tags.first("product:price:amount", "og:price:amount")); ok {
		rec.Price = &price
	}
	return Outcome{Record: rec, Tier: TierMeta}, nil
}

// MetaTag is one <meta> key/value pair, keyed by property or name.
type MetaTag struct {
	Key   string
	Value string
}

// MetaTagList preserves document order.
type MetaTagList []MetaTag

// MetaTags lists every meta tag with a property or name attribute and
// non-empty content.
func MetaTags(doc *goquery.Document) MetaTagList {
	var out MetaTagList
	doc.Find("meta[content]").Each(func(_ int, s *goquery.Selection) {
		key := attrOr(s, "property", "name", "itemprop")
		value := strings.TrimSpace(s.AttrOr("content", ""))
		if key == "" || value == "" {
			return
		}
		out = append(out, MetaTag{Key: strings.ToLower(key), Value: value})
	})
	return out
}

// first returns the value of the first key present, trying keys in order.
func (l MetaTagList) first(keys ...string) string {
	for _, key := range keys {
		for _, tag := range l {
			if tag.Key == key {
				return tag.Value
			}
		}
	}
	return ""
}
