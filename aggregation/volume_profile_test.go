package aggregation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aspen-market/backbone/store"
)

// TestVolumeProfileFromKlines_ConservesTotalVolume checks §8's volume-profile
// conservation invariant: sum of bucketed volume equals the input total (S4: V=42.0).
func TestVolumeProfileFromKlines_ConservesTotalVolume(t *testing.T) {
	klines := []store.Kline{
		{Low: 100.0, High: 100.4, Close: 100.2, Volume: 22, TakerBuyVolume: 10},
		{Low: 99.5, High: 101.0, Close: 100.8, Volume: 20, TakerBuyVolume: 8},
	}
	vp := VolumeProfileFromKlines("BTCUSDT", klines, 1.0)

	var total float64
	for _, lvl := range vp.Levels {
		total += lvl.Volume
	}
	assert.InDelta(t, 42.0, total, 1e-9)
}

func TestVolumeProfileFromKlines_POCIsHighestVolumeBucket(t *testing.T) {
	klines := []store.Kline{
		{Low: 100.0, High: 100.2, Close: 100.1, Volume: 1, TakerBuyVolume: 1},
		{Low: 200.0, High: 200.4, Close: 200.2, Volume: 80, TakerBuyVolume: 50},
	}
	vp := VolumeProfileFromKlines("BTCUSDT", klines, 1.0)
	assert.InDelta(t, 200.5, vp.POC, 1e-9)
}

// TestVolumeProfile_ValueAreaContainsPOC checks §8's value-area-containment
// invariant: VAL <= POC <= VAH.
func TestVolumeProfile_ValueAreaContainsPOC(t *testing.T) {
	klines := make([]store.Kline, 0, 20)
	for i := 0; i < 20; i++ {
		price := 100 + float64(i)
		klines = append(klines, store.Kline{Low: price, High: price + 0.2, Close: price + 0.1, Volume: float64(i%5 + 1), TakerBuyVolume: float64((i % 5) + 1) / 2})
	}
	vp := VolumeProfileFromKlines("BTCUSDT", klines, 1.0)

	require.NotZero(t, len(vp.Levels))
	assert.LessOrEqual(t, vp.VAL, vp.POC)
	assert.GreaterOrEqual(t, vp.VAH, vp.POC)
}

// TestVolumeProfileFromKlines_DojiAssignsCloseBucket checks §4.4's doji rule:
// a zero-width [low, high] range assigns its whole volume to the close bucket.
func TestVolumeProfileFromKlines_DojiAssignsCloseBucket(t *testing.T) {
	klines := []store.Kline{
		{Low: 100.0, High: 100.0, Close: 100.0, Volume: 5, TakerBuyVolume: 3},
	}
	vp := VolumeProfileFromKlines("BTCUSDT", klines, 1.0)

	require.Len(t, vp.Levels, 1)
	assert.InDelta(t, 5, vp.Levels[0].Volume, 1e-9)
}

// TestVolumeProfileFromKlines_SpreadsAcrossIntersectedBuckets checks §4.4's
// proportional-distribution rule: a candle spanning multiple buckets
// contributes to every bucket its range intersects, not just one.
func TestVolumeProfileFromKlines_SpreadsAcrossIntersectedBuckets(t *testing.T) {
	klines := []store.Kline{
		{Low: 100.0, High: 103.0, Close: 101.5, Volume: 30, TakerBuyVolume: 15},
	}
	vp := VolumeProfileFromKlines("BTCUSDT", klines, 1.0)

	require.Len(t, vp.Levels, 3)
	for _, lvl := range vp.Levels {
		assert.InDelta(t, 10, lvl.Volume, 1e-9)
	}
}

func TestVolumeProfileFromKlines_HeuristicSplitsWhenNoTakerBuyVolume(t *testing.T) {
	klines := []store.Kline{
		{High: 110, Low: 100, Close: 108, Volume: 10, TakerBuyVolume: 0},
	}
	vp := VolumeProfileFromKlines("BTCUSDT", klines, 10.0)

	require.Len(t, vp.Levels, 1)
	lvl := vp.Levels[0]
	assert.InDelta(t, 10, lvl.Volume, 1e-9)
	assert.Greater(t, lvl.BuyVolume, lvl.SellVolume) // bullish candle: buy-weighted
}

func TestVolumeProfileFromKlines_PrefersRealTakerBuyVolume(t *testing.T) {
	klines := []store.Kline{
		{High: 110, Low: 100, Close: 101, Volume: 10, TakerBuyVolume: 9}, // closed near low but real data says mostly buy
	}
	vp := VolumeProfileFromKlines("BTCUSDT", klines, 10.0)

	require.Len(t, vp.Levels, 1)
	assert.InDelta(t, 9, vp.Levels[0].BuyVolume, 1e-9)
}
