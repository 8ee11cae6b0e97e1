package candles

import (
	"fmt"
	"time"
)

// intervalMs is the single source of truth mapping a kline interval string
// to its duration in milliseconds. Every place in this package that needs
// an interval's length calls this instead of hand-rolling interval-specific
// branches (§9 design note: no interval-specific special casing).
func intervalMs(interval string) (int64, error) {
	var unit time.Duration
	var n int64

	switch {
	case len(interval) < 2:
		return 0, fmt.Errorf("candles: malformed interval %q", interval)
	default:
		suffix := interval[len(interval)-1]
		switch suffix {
		case 'm':
			unit = time.Minute
		case 'h':
			unit = time.Hour
		case 'd':
			unit = 24 * time.Hour
		case 'w':
			unit = 7 * 24 * time.Hour
		default:
			return 0, fmt.Errorf("candles: unknown interval unit in %q", interval)
		}
		if _, err := fmt.Sscanf(interval[:len(interval)-1], "%d", &n); err != nil || n <= 0 {
			return 0, fmt.Errorf("candles: malformed interval %q", interval)
		}
	}
	return n * unit.Milliseconds(), nil
}
