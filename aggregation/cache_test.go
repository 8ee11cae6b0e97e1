package aggregation

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_HitsWithinTTL(t *testing.T) {
	c := newCache()
	calls := int32(0)
	fn := func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	}

	v1, err := c.getOrCompute("test", "k", fn)
	require.NoError(t, err)
	v2, err := c.getOrCompute("test", "k", fn)
	require.NoError(t, err)

	assert.Equal(t, 42, v1)
	assert.Equal(t, 42, v2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := newCache()
	c.entries["k"] = cacheEntry{value: 1, expires: time.Now().Add(-time.Second)}

	calls := int32(0)
	v, err := c.getOrCompute("test", "k", func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// TestCache_AtMostOneConcurrentComputation verifies §4.4/§8: concurrent
// callers for the same key during a miss share one underlying computation.
func TestCache_AtMostOneConcurrentComputation(t *testing.T) {
	c := newCache()
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})

	fn := func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return "value", nil
	}

	var wg sync.WaitGroup
	results := make([]interface{}, 5)
	wg.Add(5)
	for i := 0; i < 5; i++ {
		go func(i int) {
			defer wg.Done()
			v, _ := c.getOrCompute("test", "shared-key", fn)
			results[i] = v
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "value", r)
	}
}
