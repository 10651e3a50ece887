package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/prodex/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// StatsProvider reports rendering pool utilisation. Both scraper
// backends implement it.
type StatsProvider interface {
	Stats() models.PoolStats
}

// Health returns a handler for GET /health.
//
// Reports pool utilisation and degrades status when more than 80% of
// rendering sessions are active. A nil provider means rendering is
// disabled.
func Health(sp StatsProvider, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := models.PoolStats{Backend: "disabled"}
		if sp != nil {
			stats = sp.Stats()
		}

		status := "healthy"
		if stats.MaxSessions > 0 && stats.ActiveSessions > int(float64(stats.MaxSessions)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			PoolStats: stats,
			Version:   Version,
		})
	}
}
