package cleaner

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// AbsoluteImages returns the src (or data-src) of every img already
// carrying an absolute http(s) URL, in document order, without duplicates.
// Relative sources are skipped.
func AbsoluteImages(doc *goquery.Document) []string {
	images := []string{}
	seen := make(map[string]struct{})
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"src", "data-src"} {
			raw, _ := s.Attr(attr)
			u, err := url.Parse(strings.TrimSpace(raw))
			if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				continue
			}
			abs := u.String()
			if _, ok := seen[abs]; !ok {
				seen[abs] = struct{}{}
				images = append(images, abs)
			}
			return
		}
	})
	return images
}

// ResolveImage makes raw absolute against base. Protocol-relative values
// ("//cdn.example/x.jpg") take the base scheme. Non-http(s) results such
// as data: URIs are rejected.
func ResolveImage(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	} else if strings.HasPrefix(raw, "//") {
		ref.Scheme = "https"
	}
	if (ref.Scheme != "http" && ref.Scheme != "https") || ref.Host == "" {
		return "", false
	}
	return ref.String(), true
}

// ResolveImages applies ResolveImage to every value, dropping rejects and
// duplicates while keeping order.
func ResolveImages(base *url.URL, raws []string) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(raws))
	for _, raw := range raws {
		abs, ok := ResolveImage(base, raw)
		if !ok {
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}
	return out
}
