package candles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aspen-market/backbone/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	db := newTestDB(t)
	st := store.New(8)
	st.AddSymbol("BTCUSDT")
	return New(st, db, nil), st
}

func TestGetLatestCandle_PrefersFormingOverClosed(t *testing.T) {
	svc, st := newTestService(t)

	require.NoError(t, st.ApplyKlineUpdate("BTCUSDT", store.Kline{Symbol: "BTCUSDT", Interval: "1m", OpenTime: 1000, IsClosed: true}))
	require.NoError(t, st.ApplyKlineUpdate("BTCUSDT", store.Kline{Symbol: "BTCUSDT", Interval: "1m", OpenTime: 2000, Close: 42, IsClosed: false}))

	k, ok, err := svc.GetLatestCandle("BTCUSDT", "1m")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2000), k.OpenTime)
}

func TestGetLatestCandle_FallsBackToPersistedWhenNoMemoryHistory(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.persist.Upsert(store.Kline{Symbol: "BTCUSDT", Interval: "1m", OpenTime: 500, Close: 10, IsClosed: true}))

	k, ok, err := svc.GetLatestCandle("BTCUSDT", "1m")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(500), k.OpenTime)
}

func TestGetCandles_MergesFormingWithClosedHistory(t *testing.T) {
	svc, st := newTestService(t)

	for _, ot := range []int64{1000, 2000, 3000} {
		require.NoError(t, st.ApplyKlineUpdate("BTCUSDT", store.Kline{Symbol: "BTCUSDT", Interval: "1m", OpenTime: ot, IsClosed: true}))
	}
	require.NoError(t, st.ApplyKlineUpdate("BTCUSDT", store.Kline{Symbol: "BTCUSDT", Interval: "1m", OpenTime: 4000, Close: 99, IsClosed: false}))

	ks, err := svc.GetCandles(context.Background(), "BTCUSDT", "1m", 4)
	require.NoError(t, err)
	require.Len(t, ks, 4)
	assert.Equal(t, int64(1000), ks[0].OpenTime)
	assert.Equal(t, int64(4000), ks[3].OpenTime)
	assert.False(t, ks[3].IsClosed)
}

func TestToCompact_MatchesCompactShape(t *testing.T) {
	ks := []store.Kline{{OpenTime: 1000, Open: 100, High: 102, Low: 99, Close: 101, Volume: 2.107, TakerBuyVolume: 1.234}}
	resp := ToCompact("BTCUSDT", "1m", ks)

	assert.Equal(t, "BTCUSDT", resp.Symbol)
	assert.Equal(t, "1m", resp.Interval)
	require.Len(t, resp.Data, 1)
	assert.InDelta(t, 2.107, resp.Data[0].V, 1e-9)
	assert.InDelta(t, 1.234, resp.Data[0].BV, 1e-9)
	assert.InDelta(t, 0.873, resp.Data[0].SV, 0.001)
	assert.Equal(t, int64(1000), resp.First)
	assert.Equal(t, int64(1000), resp.Last)
	assert.Equal(t, 1, resp.Count)
}

func TestGetCandlesInRange_DeduplicatesByOpenTime(t *testing.T) {
	svc, st := newTestService(t)
	require.NoError(t, st.ApplyKlineUpdate("BTCUSDT", store.Kline{Symbol: "BTCUSDT", Interval: "1m", OpenTime: 1000, Close: 1, IsClosed: true}))
	require.NoError(t, svc.persist.Upsert(store.Kline{Symbol: "BTCUSDT", Interval: "1m", OpenTime: 1000, Close: 1, IsClosed: true}))

	ks, err := svc.GetCandlesInRange(context.Background(), "BTCUSDT", "1m", 0, 2000)
	require.NoError(t, err)
	assert.Len(t, ks, 1)
}
