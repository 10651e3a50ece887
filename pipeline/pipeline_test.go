package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/prodex/config"
	"github.com/use-agent/prodex/engine"
	"github.com/use-agent/prodex/extract"
	"github.com/use-agent/prodex/models"
)

const pageURL = "https://shop.example/products/1"

type fakeFetcher struct {
	res *engine.FetchResult
	err error
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	return f.res, f.err
}

// countingRenderer serves a fixed document and counts every browser
// session it opens.
type countingRenderer struct {
	html     string
	err      error
	renders  atomic.Int32
	sessions atomic.Int32
}

func (r *countingRenderer) Render(ctx context.Context, url string) (*engine.Rendered, error) {
	r.renders.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &engine.Rendered{HTML: r.html, FinalURL: url}, nil
}

func (r *countingRenderer) WithSession(ctx context.Context, url string, fn func(engine.Session) error) error {
	r.sessions.Add(1)
	if r.err != nil {
		return r.err
	}
	sess, err := extract.NewDocumentSession(r.html)
	if err != nil {
		return err
	}
	return fn(sess)
}

func (r *countingRenderer) total() int32 {
	return r.renders.Load() + r.sessions.Load()
}

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Extract.RenderedWait = 50 * time.Millisecond
	return cfg
}

func newPipeline(fetched *engine.FetchResult, fetchErr error, renderer *countingRenderer) *Pipeline {
	cfg := testConfig()
	var r engine.Renderer
	if renderer != nil {
		r = renderer
	}
	acq := engine.NewAcquirer(&fakeFetcher{res: fetched, err: fetchErr}, r, cfg.Acquire)
	return NewDefault(acq, cfg.Extract)
}

func htmlPage(body string) *engine.FetchResult {
	return &engine.FetchResult{HTML: body, StatusCode: 200, FinalURL: pageURL, ContentType: "text/html; charset=utf-8"}
}

func price(f float64) *float64 { return &f }

func TestRunStructuredWins(t *testing.T) {
	page := htmlPage(`<html><head>
<meta property="og:title" content="Not the widget">
<script type="application/ld+json">{"@type":"Product","name":"Widget","offers":{"price":"19.99","availability":"http://schema.org/InStock"}}</script>
</head><body></body></html>`)
	r := &countingRenderer{}

	res, err := newPipeline(page, nil, r).Run(context.Background(), pageURL)
	require.NoError(t, err)

	want := models.ProductRecord{Name: "Widget", Price: price(19.99), Availability: models.InStock, Images: []string{}}
	if diff := cmp.Diff(want, res.Record); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "structured", res.Stage)
	assert.Equal(t, extract.SourceJSONLD, res.Source)
	assert.Equal(t, engine.VerdictSufficient, res.Verdict)
	assert.False(t, res.Rendered)
	assert.Zero(t, r.total())
}

func TestRunMetaWins(t *testing.T) {
	page := htmlPage(`<html><head><meta property="og:title" content="Gadget"><meta property="og:price:amount" content="49"></head><body></body></html>`)
	r := &countingRenderer{}

	res, err := newPipeline(page, nil, r).Run(context.Background(), pageURL)
	require.NoError(t, err)
	assert.Equal(t, "meta", res.Stage)
	assert.Equal(t, "Gadget", res.Record.Name)
	assert.Equal(t, price(49), res.Record.Price)
	assert.Zero(t, r.total())
}

func TestRunHeuristicWins(t *testing.T) {
	page := htmlPage(`<html><head><title>متجر</title><meta property="og:title" content="ساعة يد"></head>
<body><h1>ساعة يد</h1><p>السعر 120 ريال - متوفر</p></body></html>`)
	r := &countingRenderer{}

	res, err := newPipeline(page, nil, r).Run(context.Background(), pageURL)
	require.NoError(t, err)

	// Meta already has a name, so it wins before the heuristic runs.
	assert.Equal(t, "meta", res.Stage)

	page = htmlPage(`<html><head><title>متجر</title></head>
<body><h1>ساعة يد</h1><p>السعر 120 ريال - متوفر</p><script type="application/json">{}</script></body></html>`)
	res, err = newPipeline(page, nil, r).Run(context.Background(), pageURL)
	require.NoError(t, err)
	assert.Equal(t, "heuristic", res.Stage)
	assert.Equal(t, "ساعة يد", res.Record.Name)
	assert.Equal(t, price(120), res.Record.Price)
	assert.Equal(t, models.InStock, res.Record.Availability)
	assert.Zero(t, r.total())
}

func TestRunChallengeRendersOnce(t *testing.T) {
	page := htmlPage(`<html><title>Just a moment...</title><body>Checking your browser</body></html>`)
	r := &countingRenderer{html: `<html><head>
<script type="application/ld+json">{"@type":"Product","name":"Desk","offers":{"price":"250"}}</script></head><body></body></html>`}

	res, err := newPipeline(page, nil, r).Run(context.Background(), pageURL)
	require.NoError(t, err)
	assert.Equal(t, "structured", res.Stage)
	assert.Equal(t, "Desk", res.Record.Name)
	assert.True(t, res.Rendered)
	assert.Equal(t, engine.VerdictChallenged, res.Verdict)
	assert.Equal(t, int32(1), r.renders.Load())
	assert.Zero(t, r.sessions.Load())
}

func TestRunUnmarkedPageFallsToBoilerplate(t *testing.T) {
	page := htmlPage(`<html><body><p>Welcome</p></body></html>`)
	r := &countingRenderer{html: `<html><head><title>Our story</title></head><body><article>
<p>We have been building handmade furniture in our small workshop for over thirty years, one piece at a time.</p>
</article></body></html>`}

	res, err := newPipeline(page, nil, r).Run(context.Background(), pageURL)
	require.NoError(t, err)
	assert.Equal(t, "boilerplate", res.Stage)
	assert.Equal(t, engine.VerdictInsufficient, res.Verdict)
	assert.True(t, res.Rendered)
	assert.Nil(t, res.Record.Price)
	assert.Empty(t, res.Record.Availability)
	assert.Equal(t, "Our story", res.Record.Name)
	assert.Contains(t, res.Record.Description, "handmade furniture")
	assert.Equal(t, int32(1), r.total())
}

func TestRunFailedRenderIsNotRetried(t *testing.T) {
	page := htmlPage(`<html><body><p>Welcome</p></body></html>`)
	r := &countingRenderer{err: errors.New("browser crashed")}

	res, err := newPipeline(page, nil, r).Run(context.Background(), pageURL)
	require.NoError(t, err)
	assert.Equal(t, "boilerplate", res.Stage)
	assert.Equal(t, engine.VerdictInsufficient, res.Verdict)
	assert.False(t, res.Rendered, "record was built from the lightweight body")
	assert.Equal(t, int32(1), r.renders.Load())
	assert.Zero(t, r.sessions.Load())
	assert.Equal(t, int32(1), r.total())
}

func TestRunSufficientPageOpensOneSession(t *testing.T) {
	// Marker present but nothing the static stages can use.
	page := htmlPage(`<html><body><script type="application/json">{"config":{"theme":"dark"}}</script><div id="app"></div></body></html>`)
	r := &countingRenderer{html: `<html><body><h1>Lamp</h1><div class="price">SAR 35</div></body></html>`}

	res, err := newPipeline(page, nil, r).Run(context.Background(), pageURL)
	require.NoError(t, err)
	assert.Equal(t, "rendered", res.Stage)
	assert.Equal(t, "Lamp", res.Record.Name)
	assert.Equal(t, price(35), res.Record.Price)
	assert.True(t, res.Rendered)
	assert.Zero(t, r.renders.Load())
	assert.Equal(t, int32(1), r.sessions.Load())
}

func TestRunRenderingDisabled(t *testing.T) {
	page := htmlPage(`<html><body><script type="application/json">{}</script><p>Nothing to see</p></body></html>`)

	res, err := newPipeline(page, nil, nil).Run(context.Background(), pageURL)
	require.NoError(t, err)
	assert.Equal(t, "boilerplate", res.Stage)
	assert.False(t, res.Rendered)
}

func TestRunFetchErrorPropagates(t *testing.T) {
	blocked := &engine.FetchResult{HTML: "denied", StatusCode: 403, FinalURL: pageURL, ContentType: "text/html"}
	r := &countingRenderer{err: errors.New("browser crashed")}

	_, err := newPipeline(blocked, nil, r).Run(context.Background(), pageURL)
	var fe *models.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, models.FetchRenderFailure, fe.Kind)
	assert.Equal(t, int32(1), r.total())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newPipeline(htmlPage(`<html></html>`), nil, &countingRenderer{}).Run(ctx, pageURL)
	var fe *models.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, models.FetchTimeout, fe.Kind)
}

type fixedAcquirer struct{ acq *engine.Acquisition }

func (f fixedAcquirer) Acquire(context.Context, string) (*engine.Acquisition, error) {
	return f.acq, nil
}

type stubStage struct {
	name string
	out  extract.Outcome
	err  error
	runs int
}

func (s *stubStage) Name() string { return s.name }

func (s *stubStage) Extract(context.Context, *extract.Input) (extract.Outcome, error) {
	s.runs++
	return s.out, s.err
}

func TestRunStageErrors(t *testing.T) {
	acq := fixedAcquirer{&engine.Acquisition{HTML: "<html></html>", FinalURL: pageURL}}
	cfg := testConfig().Extract

	t.Run("extraction error declines", func(t *testing.T) {
		first := &stubStage{name: "first", err: models.NewSelectorNotFound([]string{"h1"}, nil)}
		last := &stubStage{name: "last", out: extract.Outcome{Record: &models.ProductRecord{Description: "about"}}}

		res, err := New(acq, []extract.Extractor{first, last}, cfg).Run(context.Background(), pageURL)
		require.NoError(t, err)
		assert.Equal(t, "last", res.Stage)
		assert.Equal(t, "about", res.Record.Description)
	})

	t.Run("internal error aborts", func(t *testing.T) {
		first := &stubStage{name: "first", err: errors.New("boom")}
		last := &stubStage{name: "last"}

		_, err := New(acq, []extract.Extractor{first, last}, cfg).Run(context.Background(), pageURL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stage first")
		assert.Zero(t, last.runs)
	})

	t.Run("unusable record is not accepted before the terminal stage", func(t *testing.T) {
		first := &stubStage{name: "first", out: extract.Outcome{Record: &models.ProductRecord{Description: "only"}}}
		second := &stubStage{name: "second", out: extract.Outcome{Record: &models.ProductRecord{Name: "Named"}}}

		res, err := New(acq, []extract.Extractor{first, second}, cfg).Run(context.Background(), pageURL)
		require.NoError(t, err)
		assert.Equal(t, "second", res.Stage)
		assert.Equal(t, 1, first.runs)
	})

	t.Run("every stage declines", func(t *testing.T) {
		only := &stubStage{name: "only"}
		_, err := New(acq, []extract.Extractor{only}, cfg).Run(context.Background(), pageURL)
		require.Error(t, err)
	})
}

func TestFields(t *testing.T) {
	page := htmlPage(`<html><head>
<meta property="og:title" content="Widget">
<script type="application/ld+json">{"@context":"https://schema.org","@type":"Product","name":"Widget","offers":{"price":"5"}}</script>
</head><body><span itemprop="name">Widget</span></body></html>`)
	r := &countingRenderer{}

	report, err := newPipeline(page, nil, r).Fields(context.Background(), pageURL)
	require.NoError(t, err)
	assert.Equal(t, pageURL, report.URL)
	assert.Equal(t, []string{"Product.@type", "Product.name", "Product.offers", "Product.offers.price"}, report.StructuredKeys)
	assert.Equal(t, []string{"name"}, report.Itemprops)
	assert.Equal(t, []models.MetaField{{Key: "og:title", Value: "Widget"}}, report.Meta)
	assert.Zero(t, r.total())
}
