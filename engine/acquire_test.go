package engine

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/prodex/config"
	"github.com/use-agent/prodex/models"
)

type fakeFetcher struct {
	res   *FetchResult
	err   error
	calls atomic.Int32
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	f.calls.Add(1)
	return f.res, f.err
}

type fakeRenderer struct {
	html  string
	err   error
	block bool
	calls atomic.Int32
}

func (r *fakeRenderer) Render(ctx context.Context, url string) (*Rendered, error) {
	r.calls.Add(1)
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	return &Rendered{HTML: r.html, FinalURL: url}, nil
}

func (r *fakeRenderer) WithSession(ctx context.Context, url string, fn func(Session) error) error {
	return errors.New("not used")
}

func testAcquireConfig() config.AcquireConfig {
	cfg := config.Load().Acquire
	cfg.RenderTimeout = 200 * time.Millisecond
	return cfg
}

const productPage = `<html><head><meta property="og:title" content="Gadget"></head><body></body></html>`

func TestAcquireSufficientSkipsRender(t *testing.T) {
	f := &fakeFetcher{res: &FetchResult{HTML: productPage, StatusCode: 200, ContentType: "text/html"}}
	r := &fakeRenderer{html: "<html>rendered</html>"}
	a := NewAcquirer(f, r, testAcquireConfig())

	got, err := a.Acquire(context.Background(), "https://shop.example/p/1")
	require.NoError(t, err)

	assert.Equal(t, productPage, got.HTML)
	assert.False(t, got.RenderedViaBrowser)
	assert.False(t, got.RenderAttempted)
	assert.Equal(t, VerdictSufficient, got.Verdict)
	assert.Equal(t, int32(0), r.calls.Load())
}

func TestAcquireEscalatesOnce(t *testing.T) {
	tests := []struct {
		name    string
		res     *FetchResult
		err     error
		verdict Verdict
	}{
		{"challenge marker", &FetchResult{HTML: "<title>Just a moment...</title>", StatusCode: 200}, nil, VerdictChallenged},
		{"forbidden", &FetchResult{HTML: productPage, StatusCode: 403}, nil, VerdictBlocked},
		{"connection reset", nil, errors.New("connection reset by peer"), VerdictBlocked},
		{"no product markers", &FetchResult{HTML: "<html><body>hello</body></html>", StatusCode: 200}, nil, VerdictInsufficient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{res: tt.res, err: tt.err}
			r := &fakeRenderer{html: "<html>rendered</html>"}
			a := NewAcquirer(f, r, testAcquireConfig())

			got, err := a.Acquire(context.Background(), "https://shop.example/p/1")
			require.NoError(t, err)

			assert.True(t, got.RenderedViaBrowser)
			assert.True(t, got.RenderAttempted)
			assert.Equal(t, "<html>rendered</html>", got.HTML)
			assert.Equal(t, tt.verdict, got.Verdict)
			assert.Equal(t, int32(1), f.calls.Load())
			assert.Equal(t, int32(1), r.calls.Load())
		})
	}
}

func TestAcquireInvalidURLNeverRenders(t *testing.T) {
	f := &fakeFetcher{}
	r := &fakeRenderer{}
	a := NewAcquirer(f, r, testAcquireConfig())

	_, err := a.Acquire(context.Background(), "not a url")

	var fe *models.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, models.FetchNetworkFailure, fe.Kind)
	assert.Equal(t, int32(0), f.calls.Load())
	assert.Equal(t, int32(0), r.calls.Load())
}

func TestAcquireUnknownHostNeverRenders(t *testing.T) {
	f := &fakeFetcher{err: &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true}}
	r := &fakeRenderer{}
	a := NewAcquirer(f, r, testAcquireConfig())

	_, err := a.Acquire(context.Background(), "https://nowhere.invalid/")

	var fe *models.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, models.FetchNetworkFailure, fe.Kind)
	assert.Equal(t, int32(0), r.calls.Load())
}

func TestAcquireRenderTimeout(t *testing.T) {
	f := &fakeFetcher{res: &FetchResult{HTML: "Just a moment", StatusCode: 503}}
	r := &fakeRenderer{block: true}
	a := NewAcquirer(f, r, testAcquireConfig())

	_, err := a.Acquire(context.Background(), "https://shop.example/p/1")

	var fe *models.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, models.FetchTimeout, fe.Kind)
}

func TestAcquireRenderFailure(t *testing.T) {
	f := &fakeFetcher{res: &FetchResult{StatusCode: 403}}
	r := &fakeRenderer{err: errors.New("browser crashed")}
	a := NewAcquirer(f, r, testAcquireConfig())

	_, err := a.Acquire(context.Background(), "https://shop.example/p/1")

	var fe *models.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, models.FetchRenderFailure, fe.Kind)
}

func TestAcquireInsufficientBodySurvivesRenderFailure(t *testing.T) {
	body := "<html><title>Plain page</title><body>text</body></html>"
	f := &fakeFetcher{res: &FetchResult{HTML: body, StatusCode: 200}}
	r := &fakeRenderer{err: errors.New("browser crashed")}
	a := NewAcquirer(f, r, testAcquireConfig())

	got, err := a.Acquire(context.Background(), "https://shop.example/p/1")
	require.NoError(t, err)

	assert.Equal(t, body, got.HTML)
	assert.False(t, got.RenderedViaBrowser)
	assert.True(t, got.RenderAttempted)
	assert.Equal(t, VerdictInsufficient, got.Verdict)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestAcquireWithoutRenderer(t *testing.T) {
	f := &fakeFetcher{res: &FetchResult{HTML: "Just a moment", StatusCode: 200}}
	a := NewAcquirer(f, nil, testAcquireConfig())

	_, err := a.Acquire(context.Background(), "https://shop.example/p/1")

	var fe *models.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, models.FetchBlocked, fe.Kind)
}

func TestAcquireCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeFetcher{err: context.Canceled}
	r := &fakeRenderer{}
	a := NewAcquirer(f, r, testAcquireConfig())

	_, err := a.Acquire(ctx, "https://shop.example/p/1")

	var fe *models.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, models.FetchTimeout, fe.Kind)
	assert.Equal(t, int32(0), r.calls.Load())
}
