// Package aggregation derives volume profile, footprint, heatmap and
// liquidation-classification views from the store's trade/kline/liquidation
// history, behind a short-TTL computation cache (§4.4).
package aggregation

import (
	"sync"
	"time"

	"github.com/aspen-market/backbone/metrics"
)

const cacheTTL = 5 * time.Second

type cacheEntry struct {
	value   interface{}
	expires time.Time
}

// inFlight tracks a computation already running for a key so concurrent
// callers wait on it instead of starting a duplicate (§4.4 at-most-one-
// concurrent-computation). There is no singleflight import anywhere in the
// pack, so this is hand-rolled the way the teacher's own FundingRateCache
// handles its TTL refresh.
type inFlight struct {
	done  chan struct{}
	value interface{}
	err   error
}

// cache is a keyed, TTL'd, de-duplicating computation cache shared by every
// aggregation kind.
type cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	calls   map[string]*inFlight
}

func newCache() *cache {
	return &cache{
		entries: make(map[string]cacheEntry),
		calls:   make(map[string]*inFlight),
	}
}

// getOrCompute returns the cached value for key if still fresh, otherwise
// runs fn. Concurrent callers for the same key during a miss share the
// single in-flight computation (§4.4).
func (c *cache) getOrCompute(kind, key string, fn func() (interface{}, error)) (interface{}, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && time.Now().Before(e.expires) {
		c.mu.Unlock()
		metrics.AggregationCacheHitsTotal.WithLabelValues(kind, "hit").Inc()
		return e.value, nil
	}

	if call, ok := c.calls[key]; ok {
		c.mu.Unlock()
		metrics.AggregationCacheHitsTotal.WithLabelValues(kind, "coalesced").Inc()
		<-call.done
		return call.value, call.err
	}

	call := &inFlight{done: make(chan struct{})}
	c.calls[key] = call
	c.mu.Unlock()
	metrics.AggregationCacheHitsTotal.WithLabelValues(kind, "miss").Inc()

	start := time.Now()
	value, err := fn()
	metrics.AggregationComputeDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	call.value, call.err = value, err
	close(call.done)

	c.mu.Lock()
	delete(c.calls, key)
	if err == nil {
		c.entries[key] = cacheEntry{value: value, expires: time.Now().Add(cacheTTL)}
	}
	c.mu.Unlock()

	return value, err
}
