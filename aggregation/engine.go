package aggregation

import (
	"context"
	"fmt"
	"sort"

	"github.com/aspen-market/backbone/candles"
	"github.com/aspen-market/backbone/store"
)

// maxVolumeProfileHours caps the requested window per §4.4 ("by hours,
// capped to 168" — one week of 1-minute candles).
const maxVolumeProfileHours = 168

// Engine answers aggregation queries against the store, behind the
// computation cache (§4.4).
type Engine struct {
	st      *store.Store
	candles *candles.Service
	cache   *cache
}

func NewEngine(st *store.Store, cs *candles.Service) *Engine {
	return &Engine{st: st, candles: cs, cache: newCache()}
}

// GetVolumeProfile returns the volume profile for symbol over the last
// hours of 1-minute candles (capped to maxVolumeProfileHours), bucketed by
// bucketSize (§4.4: volume profile's input is a candle window, not the
// trade ring — a fixed-size trade ring can't distinguish a 1-hour window
// from a 168-hour one once it's full).
func (e *Engine) GetVolumeProfile(symbol string, hours int, bucketSize float64) (VolumeProfile, error) {
	if hours <= 0 {
		hours = 1
	}
	if hours > maxVolumeProfileHours {
		hours = maxVolumeProfileHours
	}
	key := fmt.Sprintf("vp:%s:%d:%g", symbol, hours, bucketSize)
	v, err := e.cache.getOrCompute("volume_profile", key, func() (interface{}, error) {
		klines, err := e.candles.GetCandles(context.Background(), symbol, "1m", hours*60)
		if err != nil {
			return nil, err
		}
		if len(klines) == 0 {
			return VolumeProfile{Symbol: symbol}, nil
		}
		return VolumeProfileFromKlines(symbol, klines, bucketSize), nil
	})
	if err != nil {
		return VolumeProfile{}, err
	}
	return v.(VolumeProfile), nil
}

// GetFootprint returns the footprint for up to n most recent candles of interval.
func (e *Engine) GetFootprint(symbol, interval string, n int, bucketSize float64) ([]FootprintCandle, error) {
	key := fmt.Sprintf("fp:%s:%s:%d:%g", symbol, interval, n, bucketSize)
	v, err := e.cache.getOrCompute("footprint", key, func() (interface{}, error) {
		current, closed, ok := e.st.GetKline(symbol, interval)
		if !ok {
			return []FootprintCandle{}, nil
		}
		klines := closed
		if current != nil {
			klines = append(append([]store.Kline(nil), closed...), *current)
		}
		if len(klines) > n {
			klines = klines[len(klines)-n:]
		}
		trades := e.st.GetRecentTrades(symbol, 100000)
		out := make([]FootprintCandle, len(klines))
		for i, k := range klines {
			out[i] = BuildFootprint(k, trades, bucketSize)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]FootprintCandle), nil
}

// GetHeatmap returns the price x time heatmap for symbol over the last n candles of interval.
func (e *Engine) GetHeatmap(symbol, interval string, n int, bucketSize float64) (Heatmap, error) {
	key := fmt.Sprintf("hm:%s:%s:%d:%g", symbol, interval, n, bucketSize)
	v, err := e.cache.getOrCompute("heatmap", key, func() (interface{}, error) {
		current, closed, ok := e.st.GetKline(symbol, interval)
		if !ok {
			return Heatmap{Symbol: symbol}, nil
		}
		klines := closed
		if current != nil {
			klines = append(append([]store.Kline(nil), closed...), *current)
		}
		if len(klines) > n {
			klines = klines[len(klines)-n:]
		}
		return BuildHeatmap(symbol, klines, bucketSize), nil
	})
	if err != nil {
		return Heatmap{}, err
	}
	return v.(Heatmap), nil
}

// GetLiquidations returns classified liquidations for symbol since sinceMs.
func (e *Engine) GetLiquidations(symbol string, sinceMs int64, limit int, notionalThreshold float64) ([]ClassifiedLiquidation, error) {
	key := fmt.Sprintf("liq:%s:%d:%d:%g", symbol, sinceMs, limit, notionalThreshold)
	v, err := e.cache.getOrCompute("liquidations", key, func() (interface{}, error) {
		liqs := e.st.GetLiquidations(symbol, sinceMs, limit)
		// GetLiquidations returns newest-first; classification requires ascending order.
		sort.Slice(liqs, func(i, j int) bool { return liqs[i].TradeTime < liqs[j].TradeTime })
		return ClassifyLiquidations(liqs, notionalThreshold)
	})
	if err != nil {
		return nil, err
	}
	return v.([]ClassifiedLiquidation), nil
}

// Stats reports aggregation-engine-wide counters for the /aggregation/stats endpoint.
func (e *Engine) Stats() map[string]interface{} {
	e.cache.mu.Lock()
	defer e.cache.mu.Unlock()
	return map[string]interface{}{
		"cachedEntries":  len(e.cache.entries),
		"inFlightCalls":  len(e.cache.calls),
	}
}
