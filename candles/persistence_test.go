package candles

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aspen-market/backbone/store"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE candles (
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		open_time INTEGER NOT NULL,
		close_time INTEGER NOT NULL,
		open TEXT NOT NULL,
		high TEXT NOT NULL,
		low TEXT NOT NULL,
		close TEXT NOT NULL,
		volume TEXT NOT NULL,
		quote_volume TEXT NOT NULL,
		taker_buy_volume TEXT NOT NULL,
		trade_count INTEGER NOT NULL,
		closed INTEGER NOT NULL,
		PRIMARY KEY (symbol, interval, open_time)
	)`)
	require.NoError(t, err)
	return db
}

func TestPersistence_UpsertThenLatest(t *testing.T) {
	db := newTestDB(t)
	p := newPersistence(db)

	k := store.Kline{Symbol: "BTCUSDT", Interval: "1m", OpenTime: 1000, CloseTime: 59999, Open: 100, High: 102, Low: 99, Close: 101, Volume: 2.107, TakerBuyVolume: 1.234, IsClosed: true}
	require.NoError(t, p.Upsert(k))

	got, ok, err := p.Latest("BTCUSDT", "1m")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 2.107, got.Volume, 1e-9)
	assert.InDelta(t, 1.234, got.TakerBuyVolume, 1e-9)
}

func TestPersistence_UpsertReplacesSameOpenTime(t *testing.T) {
	db := newTestDB(t)
	p := newPersistence(db)

	k1 := store.Kline{Symbol: "BTCUSDT", Interval: "1m", OpenTime: 1000, Close: 100, IsClosed: true}
	k2 := store.Kline{Symbol: "BTCUSDT", Interval: "1m", OpenTime: 1000, Close: 105, IsClosed: true}
	require.NoError(t, p.Upsert(k1))
	require.NoError(t, p.Upsert(k2))

	rows, err := p.Range("BTCUSDT", "1m", 0, 2000)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 105.0, rows[0].Close)
}

func TestPersistence_RangeOrdersAscending(t *testing.T) {
	db := newTestDB(t)
	p := newPersistence(db)

	for _, ot := range []int64{3000, 1000, 2000} {
		require.NoError(t, p.Upsert(store.Kline{Symbol: "BTCUSDT", Interval: "1m", OpenTime: ot, IsClosed: true}))
	}

	rows, err := p.Range("BTCUSDT", "1m", 0, 5000)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(1000), rows[0].OpenTime)
	assert.Equal(t, int64(2000), rows[1].OpenTime)
	assert.Equal(t, int64(3000), rows[2].OpenTime)
}

func TestPersistence_LatestNoRowsReturnsFalse(t *testing.T) {
	db := newTestDB(t)
	p := newPersistence(db)

	_, ok, err := p.Latest("BTCUSDT", "1m")
	require.NoError(t, err)
	assert.False(t, ok)
}
