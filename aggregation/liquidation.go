package aggregation

import (
	"fmt"

	"github.com/aspen-market/backbone/store"
)

const (
	cascadeWindowMs  = 5000
	cascadeMinCount  = 3
	sweepWindowMs    = 2000
	defaultNotional  = 50000.0 // USD-equivalent notional threshold for a sweep (§4.4)
)

// ClassifyLiquidations groups liqs into single/cascade/sweep patterns (§4.4):
//   - sweep: both sides liquidated within sweepWindowMs of each other, with
//     combined notional over notionalThreshold.
//   - cascade: 3 or more same-side liquidations within cascadeWindowMs.
//   - single: anything else.
//
// liqs must already be ascending by TradeTime (the store returns them newest
// first; Engine.GetLiquidations sorts them before calling this). A violation
// returns an error rather than being silently re-sorted (§9 design note).
func ClassifyLiquidations(liqs []store.Liquidation, notionalThreshold float64) ([]ClassifiedLiquidation, error) {
	if notionalThreshold <= 0 {
		notionalThreshold = defaultNotional
	}
	for i := 1; i < len(liqs); i++ {
		if liqs[i].TradeTime < liqs[i-1].TradeTime {
			return nil, fmt.Errorf("aggregation: liquidations not ascending by tradeTime at index %d", i)
		}
	}

	out := make([]ClassifiedLiquidation, len(liqs))
	for i, l := range liqs {
		class, confidence := classifyOne(liqs, i, notionalThreshold)
		out[i] = ClassifiedLiquidation{
			Symbol:     l.Symbol,
			Side:       string(l.Side),
			Price:      l.AvgPrice,
			Quantity:   l.Quantity,
			TradeTime:  l.TradeTime,
			Class:      class,
			Confidence: confidence,
		}
	}
	return out, nil
}

func classifyOne(liqs []store.Liquidation, i int, notionalThreshold float64) (LiquidationClass, float64) {
	l := liqs[i]

	// Sweep: opposite-side liquidation within sweepWindowMs and combined
	// notional over threshold.
	notional := l.AvgPrice * l.Quantity
	oppositeCount := 0
	for j := range liqs {
		if j == i {
			continue
		}
		o := liqs[j]
		if abs64(o.TradeTime-l.TradeTime) > sweepWindowMs {
			continue
		}
		if o.Side != l.Side {
			oppositeCount++
			notional += o.AvgPrice * o.Quantity
		}
	}
	if oppositeCount > 0 && notional > notionalThreshold {
		confidence := clamp01(notional / (notionalThreshold * 2))
		return ClassSweep, confidence
	}

	// Cascade: 3+ same-side liquidations within cascadeWindowMs.
	sameSideCount := 1
	for j := range liqs {
		if j == i {
			continue
		}
		o := liqs[j]
		if o.Side == l.Side && abs64(o.TradeTime-l.TradeTime) <= cascadeWindowMs {
			sameSideCount++
		}
	}
	if sameSideCount >= cascadeMinCount {
		confidence := clamp01(float64(sameSideCount) / (cascadeMinCount * 2))
		return ClassCascade, confidence
	}

	return ClassSingle, 1.0
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
