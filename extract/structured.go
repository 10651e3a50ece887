package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/prodex/cleaner"
	"github.com/use-agent/prodex/config"
	"github.com/use-agent/prodex/logging"
	"github.com/use-agent/prodex/models"
	"github.com/ysmood/gson"
)

// Sub-sources of the structured stage, in search order.
const (
	SourceJSONLD          = "json-ld"
	SourceInlineState     = "inline-state"
	SourceProductJSON     = "product-json"
	SourceApplicationJSON = "application-json"
	SourceMicrodata       = "microdata"
)

// Structured reads machine-readable product data embedded in the page.
type Structured struct {
	stateMarkers []string
	desc         *cleaner.DescriptionFormatter
}

// NewStructured creates the structured-data stage.
func NewStructured(cfg config.ExtractConfig, desc *cleaner.DescriptionFormatter) *Structured {
	return &Structured{stateMarkers: cfg.StateMarkers, desc: desc}
}

func (s *Structured) Name() string { return string(TierStructured) }

// Extract tries each sub-source in order and returns the first usable
// record. Malformed blocks are skipped, never fatal.
func (s *Structured) Extract(ctx context.Context, in *Input) (Outcome, error) {
	sources := []struct {
		name string
		find func(*Input) *models.ProductRecord
	}{
		{SourceJSONLD, s.jsonLD},
		{SourceInlineState, s.inlineState},
		{SourceProductJSON, s.productJSON},
		{SourceApplicationJSON, s.applicationJSON},
		{SourceMicrodata, s.microdata},
	}
	for _, src := range sources {
		if rec := src.find(in); rec.Usable() {
			logging.FromContext(ctx).Debug("structured data found", "source", src.name)
			return Outcome{Record: rec, Tier: TierStructured, Source: src.name}, nil
		}
	}
	return declined(TierStructured), nil
}

// ── JSON-LD ────────────────────────────────────────────────────────────

func (s *Structured) jsonLD(in *Input) *models.ProductRecord {
	var found *models.ProductRecord
	in.Doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		root, ok := decodeJSON(sel.Text())
		if !ok {
			return true
		}
		for _, item := range flattenGraph(root) {
			if !isProduct(item) || str(get(item, "name")) == "" {
				continue
			}
			found = s.fromLD(in, item)
			return false
		}
		return true
	})
	return found
}

// flattenGraph expands arrays and @graph containers, at any depth, into
// the list of candidate items.
func flattenGraph(j gson.JSON) []gson.JSON {
	switch {
	case isArray(j):
		var out []gson.JSON
		for _, item := range j.Arr() {
			out = append(out, flattenGraph(item)...)
		}
		return out
	case isObject(j):
		if graph := get(j, "@graph"); isArray(graph) || isObject(graph) {
			return flattenGraph(graph)
		}
		return []gson.JSON{j}
	}
	return nil
}

// isProduct matches an @type of "Product" given as a string, a URI or
// inside an array.
func isProduct(item gson.JSON) bool {
	types := refs(get(item, "@type"))
	for _, t := range types {
		if i := strings.LastIndexAny(t, "/#:"); i >= 0 {
			t = t[i+1:]
		}
		if t == "Product" {
			return true
		}
	}
	return false
}

func (s *Structured) fromLD(in *Input, item gson.JSON) *models.ProductRecord {
	rec := &models.ProductRecord{
		Name:        str(get(item, "name")),
		Description: s.desc.Format(str(get(item, "description")), in.URL),
		Images:      cleaner.ResolveImages(in.Base, refs(get(item, "image"), "url", "contentUrl")),
	}

	offer := first(get(item, "offers"))
	if price, ok := offerPrice(offer); ok {
		rec.Price = &price
	}
	rec.Availability = models.NormalizeAvailability(str(get(offer, "availability")))
	return rec
}

// offerPrice reads price, then priceSpecification.price, then the
// AggregateOffer lowPrice.
func offerPrice(offer gson.JSON) (float64, bool) {
	if p, ok := models.PriceFromJSON(get(offer, "price").Val()); ok {
		return p, true
	}
	spec := first(get(offer, "priceSpecification"))
	if p, ok := models.PriceFromJSON(get(spec, "price").Val()); ok {
		return p, true
	}
	return models.PriceFromJSON(get(offer, "lowPrice").Val())
}

// ── Inline state ───────────────────────────────────────────────────────

func (s *Structured) inlineState(in *Input) *models.ProductRecord {
	var found *models.ProductRecord
	in.Doc.Find("script:not([src])").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		body := sel.Text()
		for _, marker := range s.stateMarkers {
			literal, ok := assignedObject(body, marker)
			if !ok {
				continue
			}
			state, ok := decodeLiteral(literal)
			if !ok {
				continue
			}
			product := get(state, "product")
			if !isObject(product) {
				continue
			}
			if rec := s.fromState(in, product); rec.Usable() {
				found = rec
				return false
			}
		}
		return true
	})
	return found
}

func (s *Structured) fromState(in *Input, product gson.JSON) *models.ProductRecord {
	rec := &models.ProductRecord{
		Name:        str(get(product, "title")),
		Description: s.desc.Format(str(get(product, "description_html")), in.URL),
		Images:      cleaner.ResolveImages(in.Base, refs(get(product, "images"), "src", "url")),
	}
	if price, ok := models.PriceFromJSON(get(product, "price").Val()); ok {
		rec.Price = &price
	}
	if inStock, ok := boolean(get(product, "in_stock")); ok {
		rec.Availability = models.AvailabilityFromBool(inStock)
	}
	return rec
}

// assignedObject isolates the object literal assigned right after marker.
func assignedObject(body, marker string) (string, bool) {
	i := strings.Index(body, marker)
	if i < 0 {
		return "", false
	}
	rest := strings.TrimLeft(body[i+len(marker):], " \t\r\n")
	if !strings.HasPrefix(rest, "=") {
		return "", false
	}
	rest = strings.TrimLeft(rest[1:], " \t\r\n")
	if !strings.HasPrefix(rest, "{") {
		return "", false
	}
	end := matchBrace(rest)
	if end < 0 {
		return "", false
	}
	return rest[:end+1], true
}

// matchBrace returns the index of the brace closing s[0], skipping braces
// inside string literals, or -1.
func matchBrace(s string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ── Platform product JSON ──────────────────────────────────────────────

func (s *Structured) productJSON(in *Input) *models.ProductRecord {
	return s.firstScript(in, `script[id^="ProductJson-"]`, func(root gson.JSON) gson.JSON {
		return root
	})
}

// applicationJSON accepts generic JSON blocks shaped like platform
// product JSON, either at the root or under "product".
func (s *Structured) applicationJSON(in *Input) *models.ProductRecord {
	return s.firstScript(in, `script[type="application/json"]`, func(root gson.JSON) gson.JSON {
		if looksLikeProductJSON(root) {
			return root
		}
		if product := get(root, "product"); looksLikeProductJSON(product) {
			return product
		}
		return gson.New(nil)
	})
}

func looksLikeProductJSON(j gson.JSON) bool {
	return has(j, "title") && has(j, "variants")
}

func (s *Structured) firstScript(in *Input, selector string, pick func(gson.JSON) gson.JSON) *models.ProductRecord {
	var found *models.ProductRecord
	in.Doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		root, ok := decodeJSON(sel.Text())
		if !ok {
			return true
		}
		product := pick(root)
		if !isObject(product) {
			return true
		}
		if rec := s.fromProductJSON(in, product); rec.Usable() {
			found = rec
			return false
		}
		return true
	})
	return found
}

func (s *Structured) fromProductJSON(in *Input, product gson.JSON) *models.ProductRecord {
	rec := &models.ProductRecord{
		Name:        str(get(product, "title")),
		Description: s.desc.Format(str(get(product, "body_html")), in.URL),
		Images:      cleaner.ResolveImages(in.Base, refs(get(product, "images"), "src", "url")),
	}
	variant := first(get(product, "variants"))
	if price, ok := models.PriceFromJSON(get(variant, "price").Val()); ok {
		rec.Price = &price
	}
	if available, ok := boolean(get(variant, "available")); ok {
		rec.Availability = models.AvailabilityFromBool(available)
	}
	return rec
}

// ── Microdata ──────────────────────────────────────────────────────────

func (s *Structured) microdata(in *Input) *models.ProductRecord {
	anchor := productNameAnchor(in.Doc)
	if anchor == nil {
		return nil
	}
	scope := anchor.Closest("[itemscope]")
	if scope.Length() == 0 {
		scope = in.Doc.Selection
	}

	rec := &models.ProductRecord{Name: itempropValue(anchor)}

	if el := scope.Find(`[itemprop="price"]`).First(); el.Length() > 0 {
		raw := itempropValue(el)
		price, ok := models.ParsePrice(raw)
		if !ok {
			price, ok = models.ParseLoosePrice(raw)
		}
		rec.Price = models.PriceOf(price, ok)
	}
	if el := scope.Find(`[itemprop="availability"]`).First(); el.Length() > 0 {
		raw := attrOr(el, "content", "href")
		if raw == "" {
			raw = collapse(el.Text())
		}
		rec.Availability = models.NormalizeAvailability(raw)
	}
	var images []string
	scope.Find(`[itemprop="image"]`).Each(func(_ int, el *goquery.Selection) {
		if raw := attrOr(el, "src", "content", "href"); raw != "" {
			images = append(images, raw)
		}
	})
	rec.Images = cleaner.ResolveImages(in.Base, images)
	if el := scope.Find(`[itemprop="description"]`).First(); el.Length() > 0 {
		rec.Description = itempropValue(el)
	}
	return rec
}

// productNameAnchor prefers a name inside a Product itemscope and falls
// back to the first itemprop="name" in the document.
func productNameAnchor(doc *goquery.Document) *goquery.Selection {
	names := doc.Find(`[itemprop="name"]`)
	if names.Length() == 0 {
		return nil
	}
	anchor := names.First()
	names.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		itemtype, _ := el.Closest("[itemscope]").Attr("itemtype")
		if strings.HasSuffix(strings.TrimRight(itemtype, "/"), "/Product") {
			anchor = el
			return false
		}
		return true
	})
	return anchor
}

// itempropValue reads the content attribute, else the element text.
func itempropValue(el *goquery.Selection) string {
	if v := attrOr(el, "content"); v != "" {
		return v
	}
	return collapse(el.Text())
}

func attrOr(el *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := el.Attr(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
