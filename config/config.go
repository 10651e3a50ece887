package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/joho/godotenv"
)

// DefaultUserAgent is the identification string sent by the lightweight
// fetcher and the rendering sessions unless PRODEX_USER_AGENT overrides it.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Acquire   AcquireConfig
	Extract   ExtractConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the headless browser used for rendered fetches.
type BrowserConfig struct {
	// Enabled toggles the rendering path entirely. When false, escalation
	// returns whatever the lightweight fetch produced.
	Enabled bool // default: true

	// Backend selects the rendering implementation: "rod" or "chromedp".
	Backend string // default: "rod"

	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxSessions bounds the number of simultaneous rendering sessions.
	// Callers queue behind this limit.
	MaxSessions int // default: 4

	// DefaultProxy is the proxy URL used by the browser.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Stealth injects the stealth evasion script into every session.
	Stealth bool // default: true

	// BlockAds blocks well-known ad and tracker hosts during rendering.
	BlockAds bool // default: true

	// BlockedURLPatterns are extra URL patterns (Network.setBlockedURLs
	// syntax, e.g. "*.woff2") blocked during rendering.
	BlockedURLPatterns []string

	// ScrollPasses is the number of viewport scrolls performed after the
	// network settles, to materialise lazy-loaded images.
	ScrollPasses int // default: 0
}

// AcquireConfig controls the lightweight fetch and the escalation policy.
type AcquireConfig struct {
	// UserAgent is the browser-like identification header.
	UserAgent string // default: DefaultUserAgent

	// AcceptLanguage is sent with the lightweight fetch.
	AcceptLanguage string // default: "en-US,en;q=0.9,ar;q=0.8"

	// FetchTimeout bounds the lightweight fetch.
	FetchTimeout time.Duration // default: 30s

	// MaxBodyBytes caps the lightweight response body.
	MaxBodyBytes int64 // default: 10 MiB

	// TLSProfile selects the lightweight transport: "chrome" (utls Chrome
	// fingerprint), "cloudflare" (cloudflare-bp transport) or "std".
	TLSProfile string // default: "chrome"

	// Proxy is an optional proxy URL for the lightweight fetch.
	Proxy string

	// RenderTimeout bounds the whole rendering session.
	RenderTimeout time.Duration // default: 60s

	// IdleTimeout bounds the wait for network activity to settle.
	IdleTimeout time.Duration // default: 45s

	// IdleWindow is how long the network must stay quiet to count as idle.
	IdleWindow time.Duration // default: 500ms

	// ReadyTimeout bounds the optional wait for a product selector.
	ReadyTimeout time.Duration // default: 10s

	// ReadySelectors signal that product content has materialised.
	ReadySelectors []string

	// ChallengeMarkers identify anti-bot interstitials.
	ChallengeMarkers []string

	// ProductMarkers signal that a page carries product data. Matching is
	// case-insensitive.
	ProductMarkers []string
}

// ExtractConfig controls the extractor cascade.
type ExtractConfig struct {
	// RenderedWait bounds the selector wait of the rendered-DOM stage.
	RenderedWait time.Duration // default: 10s

	// HeadingSelector locates the product heading.
	HeadingSelector string // default: "h1"

	// PriceSelector locates the price container.
	PriceSelector string // default: ".price"

	// DetailsSelector locates the product-details container.
	DetailsSelector string // default: ".product-details"

	// AvailabilitySelector locates the optional availability container.
	AvailabilitySelector string // default: ".availability"

	// StateMarkers are script assignments that introduce inline JSON state.
	StateMarkers []string

	// DescriptionFormat is "text", "markdown" or "html".
	DescriptionFormat string // default: "text"

	// MinMainText is the shortest readability article accepted before the
	// pruning fallback is used.
	MinMainText int // default: 50
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key (or client IP).
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// CORSConfig controls cross-origin access to the API.
type CORSConfig struct {
	// AllowOrigins lists permitted origins; "*" allows all.
	AllowOrigins []string // default: ["*"]
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host: envOr("PRODEX_HOST", "0.0.0.0"),
			Port: envIntOr("PRODEX_PORT", 8080),
			Mode: envOr("PRODEX_MODE", "release"),
		},
		Browser: BrowserConfig{
			Enabled:            envBoolOr("PRODEX_BROWSER_ENABLED", true),
			Backend:            envOr("PRODEX_BROWSER_BACKEND", "rod"),
			Headless:           envBoolOr("PRODEX_HEADLESS", true),
			MaxSessions:        envIntOr("PRODEX_BROWSER_MAX_SESSIONS", 4),
			DefaultProxy:       os.Getenv("PRODEX_BROWSER_PROXY"),
			NoSandbox:          envBoolOr("PRODEX_NO_SANDBOX", false),
			BrowserBin:         os.Getenv("PRODEX_BROWSER_BIN"),
			Stealth:            envBoolOr("PRODEX_STEALTH", true),
			BlockAds:           envBoolOr("PRODEX_BLOCK_ADS", true),
			BlockedURLPatterns: envSliceOr("PRODEX_BLOCKED_URL_PATTERNS", []string{"*.woff", "*.woff2", "*.ttf", "*.mp4", "*.webm"}),
			ScrollPasses:       envIntOr("PRODEX_SCROLL_PASSES", 0),
		},
		Acquire: AcquireConfig{
			UserAgent:      envOr("PRODEX_USER_AGENT", DefaultUserAgent),
			AcceptLanguage: envOr("PRODEX_ACCEPT_LANGUAGE", "en-US,en;q=0.9,ar;q=0.8"),
			FetchTimeout:   envDurationOr("PRODEX_FETCH_TIMEOUT", 30*time.Second),
			MaxBodyBytes:   int64(envIntOr("PRODEX_FETCH_MAX_BODY", 10<<20)),
			TLSProfile:     envOr("PRODEX_TLS_PROFILE", "chrome"),
			Proxy:          os.Getenv("PRODEX_FETCH_PROXY"),
			RenderTimeout:  envDurationOr("PRODEX_RENDER_TIMEOUT", 60*time.Second),
			IdleTimeout:    envDurationOr("PRODEX_RENDER_IDLE_TIMEOUT", 45*time.Second),
			IdleWindow:     envDurationOr("PRODEX_RENDER_IDLE_WINDOW", 500*time.Millisecond),
			ReadyTimeout:   envDurationOr("PRODEX_RENDER_READY_TIMEOUT", 10*time.Second),
			ReadySelectors: envListOr("PRODEX_READY_SELECTORS", []string{
				`script[type="application/ld+json"]`,
				`script[type="application/json"]`,
				`script[id^="ProductJson-"]`,
				".product-details",
				".price",
				"h1",
			}),
			ChallengeMarkers: envListOr("PRODEX_CHALLENGE_MARKERS", []string{
				"Just a moment",
				"cf-browser-verification",
				"challenge-platform",
				"Attention Required! | Cloudflare",
				"Checking your browser",
			}),
			ProductMarkers: envListOr("PRODEX_PRODUCT_MARKERS", []string{
				"application/ld+json",
				"application/json",
				"og:title",
				"product:price:amount",
				"og:price:amount",
				`itemprop="price"`,
				"ProductJson-",
				"__INITIAL_STATE__",
			}),
		},
		Extract: ExtractConfig{
			RenderedWait:         envDurationOr("PRODEX_RENDERED_WAIT", 10*time.Second),
			HeadingSelector:      envOr("PRODEX_HEADING_SELECTOR", "h1"),
			PriceSelector:        envOr("PRODEX_PRICE_SELECTOR", ".price"),
			DetailsSelector:      envOr("PRODEX_DETAILS_SELECTOR", ".product-details"),
			AvailabilitySelector: envOr("PRODEX_AVAILABILITY_SELECTOR", ".availability"),
			StateMarkers: envListOr("PRODEX_STATE_MARKERS", []string{
				"window.__INITIAL_STATE__",
				"window.__PRODUCT_STATE__",
				"window.__STATE__",
			}),
			DescriptionFormat: envOr("PRODEX_DESCRIPTION_FORMAT", "text"),
			MinMainText:       envIntOr("PRODEX_MIN_MAIN_TEXT", 50),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PRODEX_AUTH_ENABLED", false),
			APIKeys: envSliceOr("PRODEX_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PRODEX_RATE_RPS", 5.0),
			Burst:             envIntOr("PRODEX_RATE_BURST", 10),
		},
		CORS: CORSConfig{
			AllowOrigins: envSliceOr("PRODEX_CORS_ORIGINS", []string{"*"}),
		},
		Log: LogConfig{
			Level:  envOr("PRODEX_LOG_LEVEL", "info"),
			Format: envOr("PRODEX_LOG_FORMAT", "json"),
		},
	}
}

// Validate rejects unknown enum values and selectors that do not compile.
func (c *Config) Validate() error {
	switch c.Browser.Backend {
	case "rod", "chromedp":
	default:
		return fmt.Errorf("config: unknown browser backend %q", c.Browser.Backend)
	}
	switch c.Acquire.TLSProfile {
	case "chrome", "cloudflare", "std":
	default:
		return fmt.Errorf("config: unknown TLS profile %q", c.Acquire.TLSProfile)
	}
	switch c.Extract.DescriptionFormat {
	case "text", "markdown", "html":
	default:
		return fmt.Errorf("config: unknown description format %q", c.Extract.DescriptionFormat)
	}
	if c.Browser.MaxSessions < 1 {
		return fmt.Errorf("config: PRODEX_BROWSER_MAX_SESSIONS must be >= 1, got %d", c.Browser.MaxSessions)
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("config: auth enabled but PRODEX_API_KEYS is empty")
	}

	selectors := append([]string{
		c.Extract.HeadingSelector,
		c.Extract.PriceSelector,
		c.Extract.DetailsSelector,
		c.Extract.AvailabilitySelector,
	}, c.Acquire.ReadySelectors...)
	for _, sel := range selectors {
		if _, err := cascadia.Compile(sel); err != nil {
			return fmt.Errorf("config: invalid selector %q: %w", sel, err)
		}
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	return splitOr(key, ",", fallback)
}

// envListOr splits on ";" for values that may themselves contain commas
// (CSS selector groups, marker phrases).
func envListOr(key string, fallback []string) []string {
	return splitOr(key, ";", fallback)
}

func splitOr(key, sep string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, sep)
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
