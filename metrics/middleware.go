package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware collects HTTP request metrics for every route except /metrics itself.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()

		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := normalizePath(c.Request.URL.Path)
		method := c.Request.Method

		HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// normalizePath collapses dynamic path segments to avoid high-cardinality labels,
// e.g. /api/v1/candles/BTCUSDT/range -> /api/v1/candles/:symbol/range
func normalizePath(path string) string {
	patterns := map[string]string{
		"/api/v1/candles/":                     "/api/v1/candles/:symbol",
		"/api/v1/symbols/":                     "/api/v1/symbols/:symbol",
		"/api/v1/aggregation/candles/":         "/api/v1/aggregation/candles/:symbol",
		"/api/v1/aggregation/volume-profile/":  "/api/v1/aggregation/volume-profile/:symbol",
		"/api/v1/aggregation/footprint/":       "/api/v1/aggregation/footprint/:symbol",
		"/api/v1/aggregation/liquidations/":    "/api/v1/aggregation/liquidations/:symbol",
		"/api/v1/aggregation/heatmap/":         "/api/v1/aggregation/heatmap/:symbol",
		"/api/v1/websocket/price/":             "/api/v1/websocket/price/:symbol",
		"/api/v1/websocket/depth/":             "/api/v1/websocket/depth/:symbol",
		"/api/v1/websocket/trades/":            "/api/v1/websocket/trades/:symbol",
		"/api/v1/websocket/kline/":             "/api/v1/websocket/kline/:symbol",
		"/api/v1/websocket/volume/":            "/api/v1/websocket/volume/:symbol",
		"/api/v1/websocket/markprice/":         "/api/v1/websocket/markprice/:symbol",
		"/api/v1/websocket/liquidations/":      "/api/v1/websocket/liquidations/:symbol",
		"/api/v1/websocket/symbols/":           "/api/v1/websocket/symbols/:symbol",
	}

	for prefix, normalized := range patterns {
		if len(path) > len(prefix) && path[:len(prefix)] == prefix {
			rest := path[len(prefix):]
			for i, c := range rest {
				if c == '/' {
					return normalized + rest[i:]
				}
			}
			return normalized
		}
	}

	return path
}
