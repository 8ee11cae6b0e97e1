// Package httpapi is the gin-based HTTP/WS surface: it decodes request
// parameters, consults the store/candle-service/aggregation engine, and
// shapes responses. It holds no business logic of its own (§4.6).
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes named in §6.
const (
	CodeInvalidLimitRange   = "INVALID_LIMIT_RANGE"
	CodeSymbolNotFound      = "SYMBOL_NOT_FOUND"
	CodePriceNotAvailable   = "PRICE_NOT_AVAILABLE"
	CodeRateLimited         = "RATE_LIMITED"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

// errorEnvelope is the §6 error response shape.
type errorEnvelope struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string, details interface{}) {
	c.JSON(status, errorEnvelope{Error: http.StatusText(status), Message: message, Code: code, Details: details})
}

func notFound(c *gin.Context, message string) {
	respondError(c, http.StatusNotFound, CodeSymbolNotFound, message, nil)
}

func invalidRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, CodeInvalidLimitRange, message, nil)
}
