package aggregation

import (
	"math"

	"github.com/aspen-market/backbone/store"
)

// BuildHeatmap grids klines into (time, price) cells, splitting each
// candle's volume evenly across the price buckets its range spans.
// Intensity is volume normalized to [0, 1] against the grid's own maximum,
// so callers get a relative heat reading regardless of scale (§4.4).
func BuildHeatmap(symbol string, klines []store.Kline, bucketSize float64) Heatmap {
	type cellKey struct {
		time  int64
		price float64
	}
	raw := make(map[cellKey]float64)

	for _, k := range klines {
		lo := bucketKey(k.Low, bucketSize)
		hi := bucketKey(k.High, bucketSize)
		steps := int(math.Round((hi-lo)/bucketSize)) + 1
		if steps < 1 {
			steps = 1
		}
		share := k.Volume / float64(steps)
		for i := 0; i < steps; i++ {
			price := lo + float64(i)*bucketSize + bucketSize/2
			raw[cellKey{time: k.OpenTime, price: price}] += share
		}
	}

	maxVol := 0.0
	for _, v := range raw {
		if v > maxVol {
			maxVol = v
		}
	}

	cells := make([]HeatmapCell, 0, len(raw))
	for key, vol := range raw {
		intensity := 0.0
		if maxVol > 0 {
			intensity = vol / maxVol
		}
		cells = append(cells, HeatmapCell{Time: key.time, Price: key.price, Intensity: intensity})
	}

	return Heatmap{Symbol: symbol, Cells: cells}
}
