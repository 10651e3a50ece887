package api

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/use-agent/prodex/api/handler"
	"github.com/use-agent/prodex/api/middleware"
	"github.com/use-agent/prodex/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
// sp may be nil when rendering is disabled.
//
// Middleware chain:
//
//	Global:  Recovery → RequestID → AccessLog → CORS
//	API:     Auth (if enabled) → RateLimit
//
// Health is mounted outside auth so monitoring checks always work. Every
// route is served both at the root and under /api/v1.
func NewRouter(ex handler.Extractor, sp handler.StatsProvider, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog())
	r.Use(cors.New(corsConfig(cfg.CORS)))

	limit := middleware.RateLimit(cfg.RateLimit)
	for _, g := range []*gin.RouterGroup{r.Group(""), r.Group("/api/v1")} {
		// Health: no auth required.
		g.GET("/health", handler.Health(sp, startTime))

		protected := g.Group("")
		if cfg.Auth.Enabled {
			protected.Use(middleware.Auth(cfg.Auth.APIKeys))
		}
		protected.Use(limit)

		protected.GET("/extract", handler.Extract(ex))
		protected.GET("/debug/fields", handler.Fields(ex))
	}

	return r
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-API-Key", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowOrigins) == 0 || slices.Contains(cfg.AllowOrigins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowOrigins
	}
	return c
}
