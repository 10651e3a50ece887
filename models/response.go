package models

// ExtractResponse is the response for GET /extract.
type ExtractResponse struct {
	// Data is the extracted record. Present on every terminal outcome,
	// including degraded boilerplate-only records.
	Data ProductRecord `json:"data"`

	// Meta describes how the record was obtained.
	Meta ExtractMeta `json:"meta"`
}

// ExtractMeta reports the stage that produced the record and the
// acquisition path taken.
type ExtractMeta struct {
	// URL is the final URL after redirects.
	URL string `json:"url"`

	// Stage is the extractor that produced the record
	// (structured, meta, heuristic, rendered, boilerplate).
	Stage string `json:"stage"`

	// Source narrows Stage, e.g. "json-ld" or "microdata".
	Source string `json:"source,omitempty"`

	// Rendered is true when a headless browser produced the HTML used.
	Rendered bool `json:"rendered"`

	// Verdict is the classification of the lightweight fetch.
	Verdict string `json:"verdict"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// AcquireMs is the time spent fetching and, if escalated, rendering.
	AcquireMs int64 `json:"acquire_ms"`

	// ExtractMs is the time spent in the extractor cascade.
	ExtractMs int64 `json:"extract_ms"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// FieldsResponse is the response for GET /debug/fields.
type FieldsResponse struct {
	Data FieldsReport `json:"data"`
}

// FieldsReport enumerates what a page exposes to the extractors.
type FieldsReport struct {
	URL      string `json:"url"`
	Rendered bool   `json:"rendered"`

	// StructuredKeys are the dotted key paths found in JSON-LD blocks,
	// platform product JSON and inline state, e.g. "Product.offers.price".
	StructuredKeys []string `json:"structured_keys"`

	// Itemprops are the distinct microdata itemprop values in document order.
	Itemprops []string `json:"itemprops"`

	// Meta holds meta-tag key/value pairs keyed by property or name.
	Meta []MetaField `json:"meta"`
}

// MetaField is one meta tag.
type MetaField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the rendering session pool.
type PoolStats struct {
	Backend        string `json:"backend"`
	MaxSessions    int    `json:"max_sessions"`
	ActiveSessions int    `json:"active_sessions"`
}
