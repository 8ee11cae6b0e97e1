package httpapi

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// respondJSON writes payload as JSON and sets the response headers named in
// §4.6: X-Response-Time, X-Data-Count, X-Cache-Key and Cache-Control.
func respondJSON(c *gin.Context, status int, start time.Time, count int, cacheKey string, maxAge time.Duration, payload interface{}) {
	c.Header("X-Response-Time", strconv.FormatInt(time.Since(start).Milliseconds(), 10)+"ms")
	c.Header("X-Data-Count", strconv.Itoa(count))
	if cacheKey != "" {
		c.Header("X-Cache-Key", cacheKey)
	}
	if maxAge > 0 {
		c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
	} else {
		c.Header("Cache-Control", "no-store")
	}
	c.JSON(status, payload)
}

func cacheKeyFor(parts ...interface{}) string {
	key := ""
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += fmt.Sprintf("%v", p)
	}
	return key
}
