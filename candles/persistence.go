package candles

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aspen-market/backbone/metrics"
	"github.com/aspen-market/backbone/store"
)

// persistence wraps the candles table. OHLCV fields round-trip through
// shopspring/decimal rather than float64 so the TEXT column never
// accumulates binary-float drift across repeated upserts of the same
// (symbol, interval, openTime) row (§4.3 byte-for-byte overlap requirement).
type persistence struct {
	db *sql.DB
}

func newPersistence(db *sql.DB) *persistence {
	return &persistence{db: db}
}

func dec(f float64) string {
	return decimal.NewFromFloat(f).String()
}

func undec(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

// Upsert writes k, replacing any existing row for the same
// (symbol, interval, openTime) key.
func (p *persistence) Upsert(k store.Kline) error {
	start := time.Now()
	_, err := p.db.Exec(`
		INSERT INTO candles (symbol, interval, open_time, close_time, open, high, low, close, volume, quote_volume, taker_buy_volume, trade_count, closed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, interval, open_time) DO UPDATE SET
			close_time = excluded.close_time,
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			quote_volume = excluded.quote_volume,
			taker_buy_volume = excluded.taker_buy_volume,
			trade_count = excluded.trade_count,
			closed = excluded.closed`,
		k.Symbol, k.Interval, k.OpenTime, k.CloseTime,
		dec(k.Open), dec(k.High), dec(k.Low), dec(k.Close),
		dec(k.Volume), dec(k.QuoteVolume), dec(k.TakerBuyVolume),
		k.TradeCount, boolToInt(k.IsClosed),
	)
	metrics.DBQueryDuration.WithLabelValues("candle_upsert").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DBQueryTotal.WithLabelValues("candle_upsert", "error").Inc()
		return err
	}
	metrics.DBQueryTotal.WithLabelValues("candle_upsert", "success").Inc()
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Range returns persisted closed candles in [startMs, endMs], oldest first.
func (p *persistence) Range(symbol, interval string, startMs, endMs int64) ([]store.Kline, error) {
	start := time.Now()
	rows, err := p.db.Query(`
		SELECT open_time, close_time, open, high, low, close, volume, quote_volume, taker_buy_volume, trade_count, closed
		FROM candles
		WHERE symbol = ? AND interval = ? AND open_time >= ? AND open_time <= ?
		ORDER BY open_time ASC`,
		symbol, interval, startMs, endMs,
	)
	metrics.DBQueryDuration.WithLabelValues("candle_range").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DBQueryTotal.WithLabelValues("candle_range", "error").Inc()
		return nil, err
	}
	defer rows.Close()

	var out []store.Kline
	for rows.Next() {
		var k store.Kline
		var open, high, low, close_, volume, quoteVolume, takerBuy string
		var closedInt int
		if err := rows.Scan(&k.OpenTime, &k.CloseTime, &open, &high, &low, &close_, &volume, &quoteVolume, &takerBuy, &k.TradeCount, &closedInt); err != nil {
			return nil, err
		}
		k.Symbol = symbol
		k.Interval = interval
		k.Open = undec(open)
		k.High = undec(high)
		k.Low = undec(low)
		k.Close = undec(close_)
		k.Volume = undec(volume)
		k.QuoteVolume = undec(quoteVolume)
		k.TakerBuyVolume = undec(takerBuy)
		k.IsClosed = closedInt != 0
		out = append(out, k)
	}
	metrics.DBQueryTotal.WithLabelValues("candle_range", "success").Inc()
	return out, rows.Err()
}

// Latest returns the most recent persisted closed candle, if any.
func (p *persistence) Latest(symbol, interval string) (store.Kline, bool, error) {
	row := p.db.QueryRow(`
		SELECT open_time, close_time, open, high, low, close, volume, quote_volume, taker_buy_volume, trade_count, closed
		FROM candles
		WHERE symbol = ? AND interval = ?
		ORDER BY open_time DESC LIMIT 1`,
		symbol, interval,
	)
	var k store.Kline
	var open, high, low, close_, volume, quoteVolume, takerBuy string
	var closedInt int
	err := row.Scan(&k.OpenTime, &k.CloseTime, &open, &high, &low, &close_, &volume, &quoteVolume, &takerBuy, &k.TradeCount, &closedInt)
	if err == sql.ErrNoRows {
		return store.Kline{}, false, nil
	}
	if err != nil {
		return store.Kline{}, false, err
	}
	k.Symbol = symbol
	k.Interval = interval
	k.Open = undec(open)
	k.High = undec(high)
	k.Low = undec(low)
	k.Close = undec(close_)
	k.Volume = undec(volume)
	k.QuoteVolume = undec(quoteVolume)
	k.TakerBuyVolume = undec(takerBuy)
	k.IsClosed = closedInt != 0
	return k, true, nil
}
