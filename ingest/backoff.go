package ingest

import (
	"math/rand"
	"time"
)

// backoff computes the Reconnecting -> Dialing delay: exponential starting at
// min, doubling up to max, with +/-20% jitter (§4.1).
type backoff struct {
	min, max time.Duration
	attempt  int
}

func newBackoff(min, max time.Duration) *backoff {
	return &backoff{min: min, max: max}
}

func (b *backoff) next() time.Duration {
	d := b.min << b.attempt
	if d > b.max || d <= 0 {
		d = b.max
	} else {
		b.attempt++
	}

	jitter := 0.8 + rand.Float64()*0.4 // +/-20%
	return time.Duration(float64(d) * jitter)
}

func (b *backoff) reset() {
	b.attempt = 0
}
