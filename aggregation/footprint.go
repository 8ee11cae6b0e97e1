package aggregation

import "github.com/aspen-market/backbone/store"

// BuildFootprint buckets trades that occurred within [k.OpenTime, k.CloseTime]
// by price, producing the per-level buy/sell/delta breakdown plus the
// candle-level totals and POC (§4.4).
func BuildFootprint(k store.Kline, trades []store.Trade, bucketSize float64) FootprintCandle {
	buckets := make(map[float64]*bucketVolume)
	var tbv, tsv float64

	for _, t := range trades {
		if t.TradeTime < k.OpenTime || t.TradeTime > k.CloseTime {
			continue
		}
		key := bucketKey(t.Price, bucketSize)
		b, ok := buckets[key]
		if !ok {
			b = &bucketVolume{}
			buckets[key] = b
		}
		if t.IsBuyerMaker {
			b.sell += t.Quantity
			tsv += t.Quantity
		} else {
			b.buy += t.Quantity
			tbv += t.Quantity
		}
	}

	levels := make([]FootprintLevel, 0, len(buckets))
	var pocPrice float64
	var pocVolume float64
	for price, b := range buckets {
		vol := b.buy + b.sell
		levels = append(levels, FootprintLevel{Price: price + bucketSize/2, BuyVolume: b.buy, SellVolume: b.sell, Delta: b.buy - b.sell})
		if vol > pocVolume {
			pocVolume = vol
			pocPrice = price + bucketSize/2
		}
	}

	// No trade fell in [OpenTime, CloseTime] — trade history for that span
	// isn't in the ring. Fall back to the candle's own taker-buy/sell split
	// with an empty level breakdown (§4.4).
	if len(levels) == 0 {
		tbv = k.TakerBuyVolume
		tsv = k.SellVolume()
	}

	return FootprintCandle{
		OpenTime: k.OpenTime,
		TBV:      tbv,
		TSV:      tsv,
		TD:       tbv - tsv,
		POC:      pocPrice,
		Levels:   levels,
	}
}
