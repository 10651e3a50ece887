package engine

import (
	"context"
	"time"
)

// Fetcher performs the lightweight, non-rendering network fetch.
type Fetcher interface {
	// Name returns the fetcher identifier (e.g. "http").
	Name() string

	// Fetch retrieves the raw response. A non-2xx status is not an error;
	// only transport failures are.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchRequest contains everything a fetcher needs to fetch a page.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// FetchResult is the raw output of a lightweight fetch.
type FetchResult struct {
	HTML        string
	StatusCode  int
	FinalURL    string
	ContentType string
}

// Renderer executes a page in a headless browser.
//
// Every call owns a fresh session that is torn down before the call
// returns, on every exit path.
type Renderer interface {
	// Render navigates to url, waits for the network to settle and for
	// any ready selector (non-fatal), and returns the materialised DOM.
	Render(ctx context.Context, url string) (*Rendered, error)

	// WithSession navigates to url and hands the live page to fn. The
	// session is released when fn returns.
	WithSession(ctx context.Context, url string, fn func(Session) error) error
}

// Rendered is the output of a rendering session.
type Rendered struct {
	HTML     string
	FinalURL string
}

// Session is the read-only view of a rendered page that the rendered-DOM
// extractor queries.
type Session interface {
	// WaitAny blocks until any selector matches or ctx expires.
	WaitAny(ctx context.Context, selectors []string) error

	// Text returns the trimmed text of the first element matching
	// selector. ok is false when nothing matches.
	Text(ctx context.Context, selector string) (text string, ok bool, err error)

	// HTML returns the current serialized document.
	HTML(ctx context.Context) (string, error)
}
