package aggregation

import (
	"math"
	"sort"

	"github.com/aspen-market/backbone/store"
)

// bucketVolume accumulates buy/sell volume for one price bucket, keyed by
// the bucket's lower bound.
type bucketVolume struct {
	buy  float64
	sell float64
}

func bucketKey(price, bucketSize float64) float64 {
	return math.Floor(price/bucketSize) * bucketSize
}

// buildVolumeProfile converts bucketed buy/sell volume into a VolumeProfile
// with POC (the bucket holding the most volume) and a value area expanded
// outward from the POC until it covers valueAreaPct of total volume (§4.4).
func buildVolumeProfile(symbol string, buckets map[float64]*bucketVolume, bucketSize, valueAreaPct float64) VolumeProfile {
	if len(buckets) == 0 {
		return VolumeProfile{Symbol: symbol}
	}

	prices := make([]float64, 0, len(buckets))
	for p := range buckets {
		prices = append(prices, p)
	}
	sort.Float64s(prices)

	levels := make([]VolumeProfileLevel, len(prices))
	total := 0.0
	pocIdx := 0
	for i, p := range prices {
		b := buckets[p]
		vol := b.buy + b.sell
		levels[i] = VolumeProfileLevel{Price: p + bucketSize/2, Volume: vol, BuyVolume: b.buy, SellVolume: b.sell}
		total += vol
		if vol > levels[pocIdx].Volume {
			pocIdx = i
		}
	}

	target := total * valueAreaPct
	lo, hi := pocIdx, pocIdx
	covered := levels[pocIdx].Volume
	for covered < target && (lo > 0 || hi < len(levels)-1) {
		expandLo := lo > 0
		expandHi := hi < len(levels)-1
		switch {
		case expandLo && expandHi:
			if levels[lo-1].Volume >= levels[hi+1].Volume {
				lo--
				covered += levels[lo].Volume
			} else {
				hi++
				covered += levels[hi].Volume
			}
		case expandLo:
			lo--
			covered += levels[lo].Volume
		case expandHi:
			hi++
			covered += levels[hi].Volume
		}
	}

	return VolumeProfile{
		Symbol: symbol,
		POC:    levels[pocIdx].Price,
		VAH:    levels[hi].Price,
		VAL:    levels[lo].Price,
		VAV:    covered,
		Levels: levels,
	}
}

// VolumeProfileFromKlines buckets candle volume by its OHLC range over the
// requested candle window (§4.4: volume profile's input is a window of
// candles, not the trade ring). Each candle's
// volume is spread across every bucket its [low, high] range intersects,
// proportional to the fraction of that range falling in the bucket (§4.4
// bucketing rule), rather than dumped entirely at the range midpoint. Buy/
// sell split is a heuristic from the candle's body-to-range ratio: a bullish
// (or flat) candle is weighted toward buy volume (60-90%), a bearish one
// toward sell volume (10-30% buy), superseded by real takerBuyVolume
// whenever that is available (§9 design note).
func VolumeProfileFromKlines(symbol string, klines []store.Kline, bucketSize float64) VolumeProfile {
	buckets := make(map[float64]*bucketVolume)
	for _, k := range klines {
		buyVol, sellVol := k.TakerBuyVolume, k.SellVolume()
		if k.Volume > 0 && k.TakerBuyVolume == 0 {
			ratio := bodyToRangeBuyRatio(k)
			buyVol = k.Volume * ratio
			sellVol = k.Volume * (1 - ratio)
		}
		for key, frac := range rangeBucketFractions(k.Low, k.High, k.Close, bucketSize) {
			b, ok := buckets[key]
			if !ok {
				b = &bucketVolume{}
				buckets[key] = b
			}
			b.buy += buyVol * frac
			b.sell += sellVol * frac
		}
	}
	return buildVolumeProfile(symbol, buckets, bucketSize, 0.70)
}

// rangeBucketFractions splits [low, high] across the price buckets it
// overlaps, returning each bucket's share of the range (summing to 1.0). A
// doji (zero-width range) falls entirely into the close-price bucket (§4.4).
func rangeBucketFractions(low, high, close, bucketSize float64) map[float64]float64 {
	out := make(map[float64]float64)
	rng := high - low
	if rng <= 0 {
		out[bucketKey(close, bucketSize)] = 1.0
		return out
	}
	for key := bucketKey(low, bucketSize); key <= high; key += bucketSize {
		overlapLo := math.Max(low, key)
		overlapHi := math.Min(high, key+bucketSize)
		if overlapHi <= overlapLo {
			continue
		}
		out[key] += (overlapHi - overlapLo) / rng
	}
	return out
}

// bodyToRangeBuyRatio maps a candle's body-to-range ratio to a buy-volume
// fraction: 0.60-0.90 for a bullish or flat candle, 0.10-0.30 for a bearish
// one, the larger the body the further from the middle (§4.4 bucketing rule).
func bodyToRangeBuyRatio(k store.Kline) float64 {
	rng := k.High - k.Low
	if rng <= 0 {
		return 0.5
	}
	body := math.Min(math.Abs(k.Close-k.Open)/rng, 1)
	if k.Close >= k.Open {
		return 0.60 + body*0.30
	}
	return 0.30 - body*0.20
}
