package candles

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aspen-market/backbone/ingest"
	"github.com/aspen-market/backbone/metrics"
	"github.com/aspen-market/backbone/store"
)

const restPageLimit = 1000

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// pageResult holds one page's fetch outcome, indexed by its position in the
// gap so results can be persisted back in chronological order even though
// the fetches themselves complete out of order.
type pageResult struct {
	index  int
	klines []store.Kline
	err    error
}

// Backfill fills the gap between the latest persisted closed candle (or
// backfillLookback candles ago, if none exist) and now. Pages are requested
// in parallel, bounded by the shared REST rate limiter's concurrency
// semaphore (§4.3 step 2), rather than one at a time. Results are then
// persisted in chronological order, stopping at the first page that errored
// or came back empty so the backfill still returns partial data instead of
// a gap-riddled one (§4.3).
func (s *Service) Backfill(ctx context.Context, symbol, interval string) error {
	stepMs, err := intervalMs(interval)
	if err != nil {
		return err
	}

	var startMs int64
	latest, ok, err := s.persist.Latest(symbol, interval)
	if err != nil {
		return err
	}
	if ok {
		startMs = latest.OpenTime + stepMs
	} else {
		startMs = nowMs() - backfillLookback*stepMs
	}
	endMs := nowMs()

	type pageWindow struct{ start, end int64 }
	var pages []pageWindow
	for pageStart := startMs; pageStart < endMs; pageStart += stepMs * restPageLimit {
		pageEnd := pageStart + stepMs*restPageLimit
		if pageEnd > endMs {
			pageEnd = endMs
		}
		pages = append(pages, pageWindow{start: pageStart, end: pageEnd})
	}
	if len(pages) == 0 {
		return nil
	}

	results := make([]pageResult, len(pages))
	var wg sync.WaitGroup
	for i, pg := range pages {
		wg.Add(1)
		go func(i int, pg pageWindow) {
			defer wg.Done()

			start := time.Now()
			klines, err := s.rest.GetKlines(ctx, symbol, interval, pg.start, pg.end, restPageLimit)
			metrics.BackfillDuration.WithLabelValues(symbol, interval).Observe(time.Since(start).Seconds())

			status := "success"
			if err != nil {
				status = "error"
				var rle *ingest.RateLimitError
				if errors.As(err, &rle) {
					status = "rate_limited"
				}
			}
			metrics.BackfillRequestsTotal.WithLabelValues(symbol, interval, status).Inc()

			results[i] = pageResult{index: i, klines: klines, err: err}
		}(i, pg)
	}
	wg.Wait()

	var firstErr error
	for _, r := range results {
		if r.err != nil {
			log.Warn().Err(r.err).Str("symbol", symbol).Str("interval", interval).Msg("candles: backfill page failed, stopping with partial data")
			firstErr = r.err
			break
		}
		if len(r.klines) == 0 {
			break
		}
		for _, k := range r.klines {
			if !k.IsClosed {
				continue
			}
			if err := s.persist.Upsert(k); err != nil {
				return fmt.Errorf("candles: persisting backfilled candle: %w", err)
			}
		}
	}

	return firstErr
}
