package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Kline freeze invariant
// ============================================================

func TestApplyKlineUpdate_ClosedKlineIsFrozen(t *testing.T) {
	s := New(16)
	s.AddSymbol("BTCUSDT")

	k1 := Kline{Symbol: "BTCUSDT", Interval: "1m", OpenTime: 1000, Open: 100, High: 110, Low: 95, Close: 105, Volume: 10, TakerBuyVolume: 6, IsClosed: true}
	require.NoError(t, s.ApplyKlineUpdate("BTCUSDT", k1))

	_, closed, ok := s.GetKline("BTCUSDT", "1m")
	require.True(t, ok)
	require.Len(t, closed, 1)
	t1 := closed[0]

	// Re-apply the identical closed kline: must be idempotent (§8 I1).
	require.NoError(t, s.ApplyKlineUpdate("BTCUSDT", k1))
	_, closed2, _ := s.GetKline("BTCUSDT", "1m")
	require.Len(t, closed2, 1)
	assert.Equal(t, t1, closed2[0])
}

func TestApplyKlineUpdate_FormingThenClosed(t *testing.T) {
	s := New(16)
	s.AddSymbol("ETHUSDT")

	forming := Kline{Symbol: "ETHUSDT", Interval: "1m", OpenTime: 2000, Close: 50, IsClosed: false}
	require.NoError(t, s.ApplyKlineUpdate("ETHUSDT", forming))

	current, closed, ok := s.GetKline("ETHUSDT", "1m")
	require.True(t, ok)
	require.NotNil(t, current)
	assert.Empty(t, closed)

	closedK := forming
	closedK.IsClosed = true
	require.NoError(t, s.ApplyKlineUpdate("ETHUSDT", closedK))

	current2, closed2, _ := s.GetKline("ETHUSDT", "1m")
	assert.Nil(t, current2)
	require.Len(t, closed2, 1)
}

func TestApplyKlineUpdate_ClosedHistoryCapped(t *testing.T) {
	s := New(16)
	s.AddSymbol("BTCUSDT")

	for i := 0; i < closedKlinesPerInterval+10; i++ {
		k := Kline{Symbol: "BTCUSDT", Interval: "1m", OpenTime: int64(i), IsClosed: true}
		require.NoError(t, s.ApplyKlineUpdate("BTCUSDT", k))
	}

	_, closed, _ := s.GetKline("BTCUSDT", "1m")
	assert.Len(t, closed, closedKlinesPerInterval)
	assert.Equal(t, int64(10), closed[0].OpenTime) // oldest evicted FIFO
}

// ============================================================
// Depth monotonicity
// ============================================================

func TestApplyDepthUpdate_DiscardsRegressingFinalUpdateID(t *testing.T) {
	s := New(16)
	s.AddSymbol("BTCUSDT")

	require.NoError(t, s.ApplyDepthUpdate("BTCUSDT", DepthSnapshot{Symbol: "BTCUSDT", FinalUpdateID: 100}))
	require.NoError(t, s.ApplyDepthUpdate("BTCUSDT", DepthSnapshot{Symbol: "BTCUSDT", FinalUpdateID: 50}))

	snap, ok := s.GetDepth("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, int64(100), snap.FinalUpdateID)
}

// ============================================================
// Liquidation dedup (§8 S5)
// ============================================================

func TestApplyLiquidationUpdate_DedupsSameEvent(t *testing.T) {
	s := New(16)
	s.AddSymbol("BTCUSDT")

	l := Liquidation{Symbol: "BTCUSDT", Side: LiquidationSell, AvgPrice: 108900.001, Quantity: 1.00005, TradeTime: 123456}

	applied1, err := s.ApplyLiquidationUpdate("BTCUSDT", l)
	require.NoError(t, err)
	assert.True(t, applied1)

	// Same event re-delivered via the global forceOrder stream.
	applied2, err := s.ApplyLiquidationUpdate("BTCUSDT", l)
	require.NoError(t, err)
	assert.False(t, applied2)

	liqs := s.GetLiquidations("BTCUSDT", 0, 10)
	require.Len(t, liqs, 1)
}

// TestApplyLiquidationUpdate_PerSymbolStreamWinsDedupTie checks §4.1's
// preference: when the global stream's frame for an event lands first, a
// later per-symbol frame for the same event upgrades the stored record even
// though it is still reported as a non-applied duplicate.
func TestApplyLiquidationUpdate_PerSymbolStreamWinsDedupTie(t *testing.T) {
	s := New(16)
	s.AddSymbol("BTCUSDT")

	global := Liquidation{Symbol: "BTCUSDT", Side: LiquidationSell, AvgPrice: 108900.001, Quantity: 1.00005, TradeTime: 123456, Origin: StreamGlobal}
	applied1, err := s.ApplyLiquidationUpdate("BTCUSDT", global)
	require.NoError(t, err)
	assert.True(t, applied1)

	perSymbol := global
	perSymbol.Origin = StreamPerSymbol
	applied2, err := s.ApplyLiquidationUpdate("BTCUSDT", perSymbol)
	require.NoError(t, err)
	assert.False(t, applied2) // still a dedup'd duplicate, not a new event

	liqs := s.GetLiquidations("BTCUSDT", 0, 10)
	require.Len(t, liqs, 1)
	assert.Equal(t, StreamPerSymbol, liqs[0].Origin)
}

func TestApplyLiquidationUpdate_DistinctEventsBothApplied(t *testing.T) {
	s := New(16)
	s.AddSymbol("BTCUSDT")

	l1 := Liquidation{Symbol: "BTCUSDT", AvgPrice: 100, Quantity: 1, TradeTime: 1}
	l2 := Liquidation{Symbol: "BTCUSDT", AvgPrice: 200, Quantity: 1, TradeTime: 2}

	a1, _ := s.ApplyLiquidationUpdate("BTCUSDT", l1)
	a2, _ := s.ApplyLiquidationUpdate("BTCUSDT", l2)
	assert.True(t, a1)
	assert.True(t, a2)
	assert.Len(t, s.GetLiquidations("BTCUSDT", 0, 10), 2)
}

// ============================================================
// Trade ring / volume identity
// ============================================================

func TestGetRecentTrades_ClampsToRingCapacity(t *testing.T) {
	s := New(16)
	s.AddSymbol("BTCUSDT")
	require.NoError(t, s.ApplyTrade("BTCUSDT", Trade{Symbol: "BTCUSDT", Price: 1, Quantity: 1}))

	trades := s.GetRecentTrades("BTCUSDT", tradeRingCapacity+500)
	assert.Len(t, trades, 1)
}

func TestKline_SellVolume(t *testing.T) {
	k := Kline{Volume: 2.107, TakerBuyVolume: 1.234}
	assert.InDelta(t, 0.873, k.SellVolume(), 1e-9)
}

// ============================================================
// Unknown symbol
// ============================================================

func TestApplyPriceUpdate_UnknownSymbolErrors(t *testing.T) {
	s := New(16)
	err := s.ApplyPriceUpdate("NOPE", PriceTick{})
	assert.Error(t, err)
}

func TestGetPrice_UnknownSymbolNotFound(t *testing.T) {
	s := New(16)
	_, ok := s.GetPrice("NOPE")
	assert.False(t, ok)
}
