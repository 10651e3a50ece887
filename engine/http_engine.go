package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/prodex/config"
)

// HTTPEngine is the lightweight fetcher. It issues one GET with
// browser-like headers and returns whatever the server answered.
type HTTPEngine struct {
	client  *resty.Client
	maxBody int64
	timeout time.Duration
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection, so the
	// server must never be offered it.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPEngine builds the fetcher for the configured TLS profile.
func NewHTTPEngine(cfg config.AcquireConfig) (*HTTPEngine, error) {
	client := resty.New()

	var proxyURL *url.URL
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("http_engine: parse proxy: %w", err)
		}
		proxyURL = u
	}

	switch cfg.TLSProfile {
	case "chrome":
		client.SetTransport(chromeTransport(proxyURL))
	case "cloudflare":
		t := http.DefaultTransport.(*http.Transport).Clone()
		if proxyURL != nil {
			t.Proxy = http.ProxyURL(proxyURL)
		}
		client.SetTransport(t)
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	default:
		t := http.DefaultTransport.(*http.Transport).Clone()
		if proxyURL != nil {
			t.Proxy = http.ProxyURL(proxyURL)
		}
		client.SetTransport(t)
	}

	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	client.SetHeaders(map[string]string{
		"User-Agent":      cfg.UserAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language": cfg.AcceptLanguage,
		"Cache-Control":   "no-cache",
	})

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 10 << 20
	}
	return &HTTPEngine{client: client, maxBody: maxBody, timeout: cfg.FetchTimeout}, nil
}

// chromeTransport dials TLS with a Chrome ClientHello so fingerprinting
// bot walls see a browser rather than Go's default handshake.
func chromeTransport(proxyURL *url.URL) *http.Transport {
	t := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxyURL != nil {
		t.Proxy = http.ProxyURL(proxyURL)
	}
	return t
}

func (e *HTTPEngine) Name() string { return "http" }

// Fetch performs a single GET. Non-2xx responses are returned with their
// status so the caller can classify them.
func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetHeaders(req.Headers).
		SetDoNotParseResponse(true).
		Get(req.URL)
	if err != nil {
		return nil, fmt.Errorf("http_engine: do request: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, e.maxBody))
	if err != nil {
		return nil, fmt.Errorf("http_engine: read body: %w", err)
	}

	finalURL := req.URL
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		finalURL = resp.RawResponse.Request.URL.String()
	}

	return &FetchResult{
		HTML:        string(raw),
		StatusCode:  resp.StatusCode(),
		FinalURL:    finalURL,
		ContentType: resp.Header().Get("Content-Type"),
	}, nil
}

// isHTMLContentType returns true if the content-type header looks like HTML.
// An empty header is given the benefit of the doubt.
func isHTMLContentType(ct string) bool {
	if ct == "" {
		return true
	}
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
