package candles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntervalMs_Minutes(t *testing.T) {
	ms, err := intervalMs("1m")
	assert.NoError(t, err)
	assert.Equal(t, int64(60_000), ms)
}

func TestIntervalMs_Hours(t *testing.T) {
	ms, err := intervalMs("4h")
	assert.NoError(t, err)
	assert.Equal(t, int64(4*60*60*1000), ms)
}

func TestIntervalMs_Days(t *testing.T) {
	ms, err := intervalMs("1d")
	assert.NoError(t, err)
	assert.Equal(t, int64(24*60*60*1000), ms)
}

func TestIntervalMs_MalformedErrors(t *testing.T) {
	_, err := intervalMs("bogus")
	assert.Error(t, err)

	_, err = intervalMs("m")
	assert.Error(t, err)

	_, err = intervalMs("5x")
	assert.Error(t, err)
}
