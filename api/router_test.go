package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/use-agent/prodex/config"
	"github.com/use-agent/prodex/models"
	"github.com/use-agent/prodex/pipeline"
)

type stubExtractor struct{}

func (stubExtractor) Run(context.Context, string) (*pipeline.Result, error) {
	return &pipeline.Result{Record: models.ProductRecord{Name: "A", Images: []string{}}, Stage: "meta"}, nil
}

func (stubExtractor) Fields(context.Context, string) (*models.FieldsReport, error) {
	return &models.FieldsReport{StructuredKeys: []string{}, Itemprops: []string{}, Meta: []models.MetaField{}}, nil
}

func testRouterConfig() *config.Config {
	cfg := config.Load()
	cfg.Server.Mode = "test"
	cfg.Auth = config.AuthConfig{Enabled: true, APIKeys: []string{"secret"}}
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100}
	return cfg
}

func TestRouterRoutes(t *testing.T) {
	r := NewRouter(stubExtractor{}, nil, testRouterConfig(), time.Now())

	tests := []struct {
		path string
		key  string
		want int
	}{
		{"/health", "", http.StatusOK},
		{"/api/v1/health", "", http.StatusOK},
		{"/extract?url=https://shop.example/a", "secret", http.StatusOK},
		{"/api/v1/extract?url=https://shop.example/a", "secret", http.StatusOK},
		{"/debug/fields?url=https://shop.example/a", "secret", http.StatusOK},
		{"/api/v1/debug/fields?url=https://shop.example/a", "secret", http.StatusOK},
		{"/extract?url=https://shop.example/a", "", http.StatusUnauthorized},
		{"/nope", "secret", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestRouterCORS(t *testing.T) {
	r := NewRouter(stubExtractor{}, nil, testRouterConfig(), time.Now())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
