package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aspen-market/backbone/store"
)

func newTestClient(st *store.Store) *Client {
	return New("wss://example.invalid/stream", st, "test")
}

// ---- frame dispatch ----

func TestDispatchTicker_AppliesPriceUpdate(t *testing.T) {
	st := store.New(8)
	st.AddSymbol("BTCUSDT")
	c := newTestClient(st)

	raw := []byte(`{"stream":"btcusdt@ticker","data":{"E":1000,"s":"BTCUSDT","p":"10","P":"0.5","c":"20010","v":"1000"}}`)
	malformed := c.handleFrame(raw)
	require.False(t, malformed)

	tick, ok := st.GetPrice("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 20010.0, tick.LastPrice)
}

func TestDispatchKline_SellVolumeDerivedFromTakerBuy(t *testing.T) {
	st := store.New(8)
	st.AddSymbol("BTCUSDT")
	c := newTestClient(st)

	raw := []byte(`{"stream":"btcusdt@kline_1m","data":{"E":1000,"s":"BTCUSDT","k":{
		"t":1000,"T":59999,"s":"BTCUSDT","i":"1m",
		"o":"100","c":"101","h":"102","l":"99",
		"v":"2.107","n":5,"x":true,"q":"210.7","V":"1.234","Q":"123.4"
	}}}`)
	malformed := c.handleFrame(raw)
	require.False(t, malformed)

	_, closed, ok := st.GetKline("BTCUSDT", "1m")
	require.True(t, ok)
	require.Len(t, closed, 1)
	assert.InDelta(t, 0.873, closed[0].SellVolume(), 0.001)
}

func TestDispatchDepth_UnknownSymbolIgnored(t *testing.T) {
	st := store.New(8)
	c := newTestClient(st)

	raw := []byte(`{"stream":"ethusdt@depth@100ms","data":{"E":1,"s":"ETHUSDT","U":1,"u":2,"b":[],"a":[]}}`)
	malformed := c.handleFrame(raw)
	assert.False(t, malformed)

	_, ok := st.GetDepth("ETHUSDT")
	assert.False(t, ok)
}

func TestDispatchForceOrder_SideParsedFromUpstreamField(t *testing.T) {
	st := store.New(8)
	st.AddSymbol("BTCUSDT")
	c := newTestClient(st)

	raw := []byte(`{"stream":"btcusdt@forceOrder","data":{"E":500,"o":{"s":"BTCUSDT","S":"SELL","p":"100","ap":"99.5","q":"1.0","X":"FILLED","T":500}}}`)
	malformed := c.handleFrame(raw)
	require.False(t, malformed)

	liqs := st.GetLiquidations("BTCUSDT", 0, 10)
	require.Len(t, liqs, 1)
	assert.Equal(t, store.LiquidationSell, liqs[0].Side)
}

func TestHandleFrame_MalformedKlineCountsAsMalformed(t *testing.T) {
	st := store.New(8)
	st.AddSymbol("BTCUSDT")
	c := newTestClient(st)

	raw := []byte(`{"stream":"btcusdt@kline_1m","data":"not-an-object"}`)
	malformed := c.handleFrame(raw)
	assert.True(t, malformed)
}

func TestHandleFrame_NonStreamMessageIgnoredNotMalformed(t *testing.T) {
	st := store.New(8)
	c := newTestClient(st)

	raw := []byte(`{"result":null,"id":1}`)
	malformed := c.handleFrame(raw)
	assert.False(t, malformed)
}

// ---- parse error budget ----

func TestTripParseErrorBudget_TripsAtThreshold(t *testing.T) {
	st := store.New(8)
	c := newTestClient(st)

	tripped := false
	for i := 0; i < parseErrorBudget; i++ {
		tripped = c.tripParseErrorBudget()
	}
	assert.True(t, tripped)
}

func TestTripParseErrorBudget_BelowThresholdDoesNotTrip(t *testing.T) {
	st := store.New(8)
	c := newTestClient(st)

	tripped := c.tripParseErrorBudget()
	assert.False(t, tripped)
}

// ---- REST kline row parsing ----

func TestParseKlineRow_CoercesMixedTypes(t *testing.T) {
	row := restKlineRow{
		float64(1000), "100", "102", "99", "101", "2.107",
		float64(59999), "210.7", float64(5), "1.234", "123.4", "0",
	}
	k, err := parseKlineRow("BTCUSDT", "1m", row)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), k.OpenTime)
	assert.Equal(t, 100.0, k.Open)
	assert.InDelta(t, 0.873, k.SellVolume(), 0.001)
	assert.True(t, k.IsClosed)
}

func TestParseKlineRow_TooShortErrors(t *testing.T) {
	_, err := parseKlineRow("BTCUSDT", "1m", restKlineRow{"1", "2"})
	assert.Error(t, err)
}
