package extract

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/prodex/cleaner"
	"github.com/use-agent/prodex/config"
	"github.com/use-agent/prodex/models"
)

const pageURL = "https://shop.example/products/1"

func newInput(t *testing.T, html string) *Input {
	t.Helper()
	in, err := NewInput(pageURL, html, false)
	require.NoError(t, err)
	return in
}

func newStructured() *Structured {
	return NewStructured(config.Load().Extract, cleaner.NewDescriptionFormatter(cleaner.FormatText))
}

func price(f float64) *float64 { return &f }

func TestStructuredJSONLDWidget(t *testing.T) {
	html := `<html><head>
<meta property="og:title" content="Not the widget">
<meta property="og:price:amount" content="1">
<script type="application/ld+json">{"@type":"Product","name":"Widget","offers":{"price":"19.99","availability":"http://schema.org/InStock"}}</script>
</head><body></body></html>`

	out, err := newStructured().Extract(context.Background(), newInput(t, html))
	require.NoError(t, err)

	want := &models.ProductRecord{Name: "Widget", Price: price(19.99), Availability: models.InStock, Images: []string{}}
	if diff := cmp.Diff(want, out.Record); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, TierStructured, out.Tier)
	assert.Equal(t, SourceJSONLD, out.Source)
}

func TestStructuredJSONLD(t *testing.T) {
	tests := []struct {
		name string
		html string
		want *models.ProductRecord
	}{
		{
			name: "malformed block before valid one",
			html: `<script type="application/ld+json">{"@type": "Product", "name": </script>
<script type="application/ld+json">{"@type":"Product","name":"Lamp","offers":{"price":35}}</script>`,
			want: &models.ProductRecord{Name: "Lamp", Price: price(35), Images: []string{}},
		},
		{
			name: "graph flattened",
			html: `<script type="application/ld+json">{"@context":"https://schema.org","@graph":[
{"@type":"WebPage","name":"Page"},
{"@type":["Product","Thing"],"name":"Desk","image":[{"@type":"ImageObject","url":"https://cdn.example/desk.jpg"}],
 "offers":[{"@type":"Offer","priceSpecification":{"price":"1,299.50"},"availability":"https://schema.org/OutOfStock"}]}]}</script>`,
			want: &models.ProductRecord{
				Name:         "Desk",
				Price:        price(1299.50),
				Availability: models.OutOfStock,
				Images:       []string{"https://cdn.example/desk.jpg"},
			},
		},
		{
			name: "graph nested in array",
			html: `<script type="application/ld+json">[{"@type":"Organization","name":"Acme"},{"@graph":[{"@type":"http://schema.org/Product","name":"Sofa","image":"/sofa.jpg"}]}]</script>`,
			want: &models.ProductRecord{Name: "Sofa", Images: []string{"https://shop.example/sofa.jpg"}},
		},
		{
			name: "nameless product skipped",
			html: `<script type="application/ld+json">{"@type":"Product","offers":{"price":"5"}}</script>
<script type="application/ld+json">{"@type":"Product","name":"Named","offers":{"price":"7"}}</script>`,
			want: &models.ProductRecord{Name: "Named", Price: price(7), Images: []string{}},
		},
		{
			name: "aggregate offer low price and html description",
			html: `<script type="application/ld+json">{"@type":"Product","name":"Chair","description":"<p>Solid <b>oak</b></p>",
"offers":{"@type":"AggregateOffer","lowPrice":"49.00","highPrice":"99.00","availability":"LimitedAvailability"}}</script>`,
			want: &models.ProductRecord{
				Name:         "Chair",
				Description:  "Solid oak",
				Price:        price(49),
				Availability: models.InStock,
				Images:       []string{},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := newStructured().Extract(context.Background(), newInput(t, tt.html))
			require.NoError(t, err)
			require.True(t, out.Usable())
			assert.Equal(t, SourceJSONLD, out.Source)
			if diff := cmp.Diff(tt.want, out.Record); diff != "" {
				t.Errorf("record mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStructuredInlineState(t *testing.T) {
	html := `<script src="/app.js"></script>
<script>
  var unrelated = {a: 1};
  window.__INITIAL_STATE__ = {product: {title: 'Lamp {deluxe}', description_html: '<p>Warm light</p>',
    price: '35.5', in_stock: false, images: ['//cdn.example/l.jpg']}};
</script>`

	out, err := newStructured().Extract(context.Background(), newInput(t, html))
	require.NoError(t, err)
	assert.Equal(t, SourceInlineState, out.Source)

	want := &models.ProductRecord{
		Name:         "Lamp {deluxe}",
		Description:  "Warm light",
		Price:        price(35.5),
		Availability: models.OutOfStock,
		Images:       []string{"https://cdn.example/l.jpg"},
	}
	if diff := cmp.Diff(want, out.Record); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestStructuredProductJSON(t *testing.T) {
	html := `<script id="ProductJson-main" type="application/json">{"title":"Tee","body_html":"<p>Soft cotton</p>",
"images":["//cdn.shop.example/tee.jpg"],"variants":[{"price":"25.00","available":true},{"price":"30.00","available":false}]}</script>`

	out, err := newStructured().Extract(context.Background(), newInput(t, html))
	require.NoError(t, err)
	assert.Equal(t, SourceProductJSON, out.Source)

	want := &models.ProductRecord{
		Name:         "Tee",
		Description:  "Soft cotton",
		Price:        price(25),
		Availability: models.InStock,
		Images:       []string{"https://cdn.shop.example/tee.jpg"},
	}
	if diff := cmp.Diff(want, out.Record); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestStructuredApplicationJSON(t *testing.T) {
	html := `<script type="application/json">{"config":{"theme":"dark"}}</script>
<script type="application/json">{"product":{"title":"Mug","variants":[{"price":12,"available":false}],"images":[{"src":"https://cdn.example/mug.jpg"}]}}</script>`

	out, err := newStructured().Extract(context.Background(), newInput(t, html))
	require.NoError(t, err)
	assert.Equal(t, SourceApplicationJSON, out.Source)

	want := &models.ProductRecord{
		Name:         "Mug",
		Price:        price(12),
		Availability: models.OutOfStock,
		Images:       []string{"https://cdn.example/mug.jpg"},
	}
	if diff := cmp.Diff(want, out.Record); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestStructuredMicrodata(t *testing.T) {
	html := `<body>
<div itemscope itemtype="https://schema.org/Organization"><span itemprop="name">Acme</span></div>
<div itemscope itemtype="https://schema.org/Product">
  <h1 itemprop="name">Chair</h1>
  <img itemprop="image" src="/chair.jpg">
  <p itemprop="description">Comfy  seat</p>
  <div itemprop="offers" itemscope itemtype="https://schema.org/Offer">
    <span itemprop="price" content="89.90">$89.90</span>
    <link itemprop="availability" href="https://schema.org/OutOfStock">
  </div>
</div></body>`

	out, err := newStructured().Extract(context.Background(), newInput(t, html))
	require.NoError(t, err)
	assert.Equal(t, SourceMicrodata, out.Source)

	want := &models.ProductRecord{
		Name:         "Chair",
		Description:  "Comfy seat",
		Price:        price(89.90),
		Availability: models.OutOfStock,
		Images:       []string{"https://shop.example/chair.jpg"},
	}
	if diff := cmp.Diff(want, out.Record); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestStructuredMicrodataPriceText(t *testing.T) {
	html := `<div><span itemprop="name">Stool</span><span itemprop="price">SAR 1,200</span></div>`

	out, err := newStructured().Extract(context.Background(), newInput(t, html))
	require.NoError(t, err)
	require.NotNil(t, out.Record)
	require.NotNil(t, out.Record.Price)
	assert.Equal(t, 1200.0, *out.Record.Price)
}

func TestStructuredDeclines(t *testing.T) {
	html := `<script type="application/ld+json">{"@type":"Organization","name":"Acme"}</script>
<script type="application/ld+json">not json at all</script>
<script>window.__INITIAL_STATE__ = {user: {id: 1}};</script>
<p>Nothing structured here</p>`

	out, err := newStructured().Extract(context.Background(), newInput(t, html))
	require.NoError(t, err)
	assert.Nil(t, out.Record)
	assert.False(t, out.Usable())
}

func TestAssignedObject(t *testing.T) {
	body := `window.__STATE__ = {"a": "}", "b": {"c": "\"{"}} ; foo()`
	got, ok := assignedObject(body, "window.__STATE__")
	require.True(t, ok)
	assert.Equal(t, `{"a": "}", "b": {"c": "\"{"}}`, got)

	_, ok = assignedObject(`window.__STATE__ == null`, "window.__STATE__")
	assert.False(t, ok)

	_, ok = assignedObject(`window.__STATE__ = {"open": 1`, "window.__STATE__")
	assert.False(t, ok)
}
