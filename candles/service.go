package candles

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/aspen-market/backbone/ingest"
	"github.com/aspen-market/backbone/store"
)

// backfillLookback bounds how far back Backfill starts (in candles) for a
// symbol/interval pair with no persisted history.
const backfillLookback = 500

// Service answers candle queries by merging the store's in-memory history
// with persisted history (rows written by RunPersister and by Backfill).
// GetCandles reads only memory and the candles table; it never calls the
// REST endpoint, and nothing calls Backfill on its own. Only the forming candle is
// ever taken from memory over a persisted value; every other overlap must
// agree byte-for-byte, since both sides ultimately derive from the same
// closed-kline event (§4.3 merge semantics, §9 design note).
type Service struct {
	st      *store.Store
	persist *persistence
	rest    *ingest.RESTClient
}

// New builds a candle Service backed by db for persistence and rest for backfill.
func New(st *store.Store, db *sql.DB, rest *ingest.RESTClient) *Service {
	return &Service{st: st, persist: newPersistence(db), rest: rest}
}

// RunPersister subscribes independently to the store's change stream and
// upserts every closed kline it observes, until ctx is cancelled. This is
// the only path that writes to the candles table outside of Backfill (§6
// "persisted state = closed klines only").
func (s *Service) RunPersister(ctx context.Context) {
	changes := s.st.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			if ev.Kind != store.ChangeKline {
				continue
			}
			k, ok := ev.Payload.(store.Kline)
			if !ok || !k.IsClosed {
				continue
			}
			if err := s.persist.Upsert(k); err != nil {
				log.Warn().Err(err).Str("symbol", k.Symbol).Str("interval", k.Interval).Msg("candles: persist closed kline failed")
			}
		}
	}
}

// GetLatestCandle returns the most recent candle for (symbol, interval):
// the forming one if present, otherwise the latest closed one.
func (s *Service) GetLatestCandle(symbol, interval string) (store.Kline, bool, error) {
	current, closed, ok := s.st.GetKline(symbol, interval)
	if ok && current != nil {
		return *current, true, nil
	}
	if ok && len(closed) > 0 {
		return closed[len(closed)-1], true, nil
	}
	return s.persist.Latest(symbol, interval)
}

// GetCandles returns up to limit most-recent candles (oldest first),
// merging in-memory and persisted history per the service's merge policy.
func (s *Service) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]store.Kline, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("candles: limit must be positive, got %d", limit)
	}

	current, closedMem, ok := s.st.GetKline(symbol, interval)
	if !ok {
		closed, err := s.persist.Range(symbol, interval, 0, nowMs())
		if err != nil {
			return nil, err
		}
		return tail(closed, limit), nil
	}

	closedNeeded := limit
	if current != nil {
		closedNeeded--
	}
	if closedNeeded < 0 {
		closedNeeded = 0
	}

	var merged []store.Kline
	if len(closedMem) >= closedNeeded {
		merged = tail(closedMem, closedNeeded)
	} else {
		remaining := closedNeeded - len(closedMem)
		stepMs, err := intervalMs(interval)
		if err != nil {
			return nil, err
		}
		var endMs int64
		if len(closedMem) > 0 {
			endMs = closedMem[0].OpenTime - 1
		} else {
			endMs = nowMs()
		}
		startMs := endMs - int64(remaining)*stepMs
		older, err := s.persist.Range(symbol, interval, startMs, endMs)
		if err != nil {
			return nil, err
		}
		merged = append(tail(older, remaining), closedMem...)
	}

	if current != nil {
		merged = append(merged, *current)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].OpenTime < merged[j].OpenTime })
	return tail(merged, limit), nil
}

// GetCandlesInRange returns persisted+in-memory candles with openTime in [startMs, endMs].
func (s *Service) GetCandlesInRange(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]store.Kline, error) {
	persisted, err := s.persist.Range(symbol, interval, startMs, endMs)
	if err != nil {
		return nil, err
	}

	byOpenTime := make(map[int64]store.Kline, len(persisted))
	for _, k := range persisted {
		byOpenTime[k.OpenTime] = k
	}

	current, closedMem, ok := s.st.GetKline(symbol, interval)
	if ok {
		for _, k := range closedMem {
			if k.OpenTime >= startMs && k.OpenTime <= endMs {
				byOpenTime[k.OpenTime] = k
			}
		}
		if current != nil && current.OpenTime >= startMs && current.OpenTime <= endMs {
			byOpenTime[current.OpenTime] = *current
		}
	}

	out := make([]store.Kline, 0, len(byOpenTime))
	for _, k := range byOpenTime {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
	return out, nil
}

func tail(ks []store.Kline, n int) []store.Kline {
	if n <= 0 {
		return nil
	}
	if len(ks) <= n {
		return append([]store.Kline(nil), ks...)
	}
	return append([]store.Kline(nil), ks[len(ks)-n:]...)
}

// ToCompact renders ks in the §6 compact response shape.
func ToCompact(symbol, interval string, ks []store.Kline) CompactResponse {
	points := make([]Point, len(ks))
	for i, k := range ks {
		points[i] = Point{T: k.OpenTime, O: k.Open, H: k.High, L: k.Low, C: k.Close, V: k.Volume, BV: k.TakerBuyVolume, SV: k.SellVolume()}
	}
	resp := CompactResponse{Symbol: symbol, Interval: interval, Data: points, Count: len(points)}
	if len(points) > 0 {
		resp.First = points[0].T
		resp.Last = points[len(points)-1].T
	}
	return resp
}
