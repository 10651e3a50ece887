package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/prodex/models"
)

// respondError writes the {"error", "code"} body with the status mapped
// from err.
func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), models.ErrorResponse{
		Error: err.Error(),
		Code:  models.ErrorCode(err),
	})
}

// statusFor translates the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	var ie *models.InputError
	if errors.As(err, &ie) {
		return http.StatusBadRequest // 400
	}
	var fe *models.FetchError
	if errors.As(err, &fe) {
		if fe.Kind == models.FetchTimeout {
			return http.StatusGatewayTimeout // 504
		}
		return http.StatusBadGateway // 502
	}
	return http.StatusInternalServerError // 500
}
