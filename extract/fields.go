package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/prodex/models"
	"github.com/ysmood/gson"
)

// maxKeyDepth bounds the key-path walk of deeply nested state blobs.
const maxKeyDepth = 6

// Fields enumerates the evidence a page exposes to the cascade: dotted
// key paths of every structured block, itemprop names and meta tags.
// It is diagnostic only and never fails.
func Fields(in *Input, stateMarkers []string) models.FieldsReport {
	report := models.FieldsReport{
		URL:            in.URL,
		Rendered:       in.Rendered,
		StructuredKeys: []string{},
		Itemprops:      []string{},
		Meta:           []models.MetaField{},
	}
	paths := newOrderedSet()

	in.Doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		root, ok := decodeJSON(sel.Text())
		if !ok {
			return
		}
		for _, item := range flattenGraph(root) {
			prefix := "Thing"
			if types := refs(get(item, "@type")); len(types) > 0 {
				prefix = types[0]
			}
			keyPaths(item, prefix, 0, paths)
		}
	})
	in.Doc.Find(`script[id^="ProductJson-"]`).Each(func(_ int, sel *goquery.Selection) {
		if root, ok := decodeJSON(sel.Text()); ok {
			keyPaths(root, "ProductJson", 0, paths)
		}
	})
	in.Doc.Find("script:not([src])").Each(func(_ int, sel *goquery.Selection) {
		body := sel.Text()
		for _, marker := range stateMarkers {
			if literal, ok := assignedObject(body, marker); ok {
				if state, ok := decodeLiteral(literal); ok {
					keyPaths(state, strings.TrimPrefix(marker, "window."), 0, paths)
				}
			}
		}
	})
	report.StructuredKeys = append(report.StructuredKeys, paths.items...)

	props := newOrderedSet()
	in.Doc.Find("[itemprop]").Each(func(_ int, sel *goquery.Selection) {
		for _, p := range strings.Fields(sel.AttrOr("itemprop", "")) {
			props.add(p)
		}
	})
	report.Itemprops = append(report.Itemprops, props.items...)

	for _, tag := range MetaTags(in.Doc) {
		report.Meta = append(report.Meta, models.MetaField{Key: tag.Key, Value: tag.Value})
	}
	return report
}

// keyPaths records prefix.key for every object key under j. Array
// elements share their parent's path.
func keyPaths(j gson.JSON, prefix string, depth int, out *orderedSet) {
	if depth >= maxKeyDepth {
		return
	}
	switch {
	case isArray(j):
		for _, item := range j.Arr() {
			keyPaths(item, prefix, depth, out)
		}
	case isObject(j):
		for _, k := range keys(j) {
			if k == "@context" {
				continue
			}
			path := prefix + "." + k
			out.add(path)
			keyPaths(get(j, k), path, depth+1, out)
		}
	}
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
