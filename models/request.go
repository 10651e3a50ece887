package models

import (
	"net/url"
	"strings"
)

// ExtractQuery is the query string of GET /extract and GET /debug/fields.
type ExtractQuery struct {
	// URL is the product page to extract. Required; http or https only.
	URL string `form:"url"`
}

// Validate trims the URL and rejects anything that is not an absolute
// http(s) URL with a host.
func (q *ExtractQuery) Validate() error {
	q.URL = strings.TrimSpace(q.URL)
	if q.URL == "" {
		return &InputError{Message: "url query parameter is required"}
	}
	return ValidateTargetURL(q.URL)
}

// ValidateTargetURL reports whether raw names a fetchable web page.
func ValidateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &InputError{Message: "url is malformed: " + err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &InputError{Message: "url must use http or https"}
	}
	if u.Host == "" {
		return &InputError{Message: "url must include a host"}
	}
	return nil
}
