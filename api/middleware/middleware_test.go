package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/use-agent/prodex/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(apiKeyContextKey))
	})
	return r
}

func do(r http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := newEngine(Auth([]string{"k1", ""}))

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"invalid", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header", map[string]string{"X-API-Key": "k1"}, http.StatusOK},
		{"bearer", map[string]string{"Authorization": "Bearer k1"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.headers)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), `"code":"UNAUTHORIZED"`)
			} else {
				assert.Equal(t, "k1", w.Body.String())
			}
		})
	}
}

func TestAuthNoKeysIsOpen(t *testing.T) {
	assert.Equal(t, http.StatusOK, do(newEngine(Auth(nil)), nil).Code)
}

func TestRateLimit(t *testing.T) {
	r := newEngine(Auth([]string{"a", "b"}), RateLimit(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}))

	a := map[string]string{"X-API-Key": "a"}
	assert.Equal(t, http.StatusOK, do(r, a).Code)
	assert.Equal(t, http.StatusOK, do(r, a).Code)

	w := do(r, a)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"RATE_LIMITED"`)

	// Buckets are per key.
	assert.Equal(t, http.StatusOK, do(r, map[string]string{"X-API-Key": "b"}).Code)
}

func TestRateLimitDisabled(t *testing.T) {
	r := newEngine(RateLimit(config.RateLimitConfig{RequestsPerSecond: 0}))
	for range 5 {
		assert.Equal(t, http.StatusOK, do(r, nil).Code)
	}
}

func TestLimiterSweep(t *testing.T) {
	s := &limiterSet{limiters: make(map[string]*limiterEntry), rps: 1, burst: 1}
	now := time.Now()
	s.get("old", now.Add(-2*time.Hour))
	s.get("new", now)

	s.sweep(now.Add(-limiterIdleTTL))
	assert.NotContains(t, s.limiters, "old")
	assert.Contains(t, s.limiters, "new")
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID(), AccessLog())

	w := do(r, nil)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	w = do(r, map[string]string{RequestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}
