package httpapi

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
)

// intParam parses a query parameter as an int, defaulting to def if absent,
// and enforces [min, max] per §6's per-endpoint limit ranges.
func intParam(c *gin.Context, name string, def, min, max int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be between %d and %d", name, min, max)
	}
	return v, nil
}

func int64Param(c *gin.Context, name string, required bool) (int64, bool, error) {
	raw := c.Query(name)
	if raw == "" {
		if required {
			return 0, false, fmt.Errorf("%s is required", name)
		}
		return 0, false, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer", name)
	}
	return v, true, nil
}

func floatParam(c *gin.Context, name string, def float64) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	return v, nil
}
