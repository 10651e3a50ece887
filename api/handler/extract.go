package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/prodex/logging"
	"github.com/use-agent/prodex/models"
	"github.com/use-agent/prodex/pipeline"
)

// Extractor runs extraction calls. *pipeline.Pipeline implements it.
type Extractor interface {
	Run(ctx context.Context, rawURL string) (*pipeline.Result, error)
	Fields(ctx context.Context, rawURL string) (*models.FieldsReport, error)
}

// Extract returns a handler for GET /extract?url=.
//
// Flow:
//  1. Bind & validate the url query parameter.
//  2. Pipeline.Run → record + stage metadata.
//  3. Respond 200 with data and meta, or the mapped error status.
func Extract(ex Extractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		var q models.ExtractQuery
		if err := bindQuery(c, &q); err != nil {
			respondError(c, err)
			return
		}

		// ── 2. Extract ──────────────────────────────────────────────
		res, err := ex.Run(c.Request.Context(), q.URL)
		if err != nil {
			logging.FromContext(c.Request.Context()).Warn("extraction failed", "url", q.URL, "error", err)
			respondError(c, err)
			return
		}

		// ── 3. Respond ──────────────────────────────────────────────
		c.JSON(http.StatusOK, models.ExtractResponse{
			Data: res.Record,
			Meta: models.ExtractMeta{
				URL:      res.URL,
				Stage:    res.Stage,
				Source:   res.Source,
				Rendered: res.Rendered,
				Verdict:  string(res.Verdict),
				Timing: models.TimingInfo{
					TotalMs:   res.TotalDuration.Milliseconds(),
					AcquireMs: res.AcquireDuration.Milliseconds(),
					ExtractMs: res.ExtractDuration.Milliseconds(),
				},
			},
		})
	}
}

// Fields returns a handler for GET /debug/fields?url=.
func Fields(ex Extractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q models.ExtractQuery
		if err := bindQuery(c, &q); err != nil {
			respondError(c, err)
			return
		}

		report, err := ex.Fields(c.Request.Context(), q.URL)
		if err != nil {
			logging.FromContext(c.Request.Context()).Warn("field inspection failed", "url", q.URL, "error", err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.FieldsResponse{Data: *report})
	}
}

func bindQuery(c *gin.Context, q *models.ExtractQuery) error {
	if err := c.ShouldBindQuery(q); err != nil {
		return &models.InputError{Message: err.Error()}
	}
	return q.Validate()
}
