package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/aspen-market/backbone/metrics"
	"github.com/aspen-market/backbone/ratelimit"
	"github.com/aspen-market/backbone/store"
)

// RESTClient fetches historical klines over HTTP, bounded by a shared rate
// limiter/semaphore pair so a burst of backfill gap requests never exceeds
// the upstream's per-minute call budget (§4.3).
type RESTClient struct {
	baseURL string
	http    *http.Client
	limiter *ratelimit.Limiter
}

func NewRESTClient(baseURL string, limiter *ratelimit.Limiter) *RESTClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	return &RESTClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second, Transport: transport},
		limiter: limiter,
	}
}

// GetKlines fetches up to limit klines for symbol/interval starting at
// startMs (inclusive), honoring the rate limiter and a 3s connect / 10s
// total deadline (§5). A non-2xx response in the 418/429 family is reported
// as a recoverable rate-limit error; callers should back off and retry the
// remaining gap on a later pass rather than treating it as fatal (§4.3).
func (c *RESTClient) GetKlines(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]store.Kline, error) {
	release, err := c.limiter.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingest: rate limiter wait: %w", err)
	}
	defer release()

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/klines?symbol=%s&interval=%s&startTime=%d&endTime=%d&limit=%d",
		c.baseURL, symbol, interval, startMs, endMs, limit)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ExchangeAPIRequestDuration.WithLabelValues("klines").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExchangeAPIRequestsTotal.WithLabelValues("klines", "error").Inc()
		return nil, fmt.Errorf("ingest: klines request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418 {
		metrics.ExchangeRateLimitHits.WithLabelValues("klines").Inc()
		metrics.ExchangeAPIRequestsTotal.WithLabelValues("klines", "rate_limited").Inc()
		return nil, &RateLimitError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ExchangeAPIRequestsTotal.WithLabelValues("klines", "error").Inc()
		return nil, fmt.Errorf("ingest: klines request returned status %d", resp.StatusCode)
	}
	metrics.ExchangeAPIRequestsTotal.WithLabelValues("klines", "success").Inc()

	var rows []restKlineRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("ingest: decode klines response: %w", err)
	}

	out := make([]store.Kline, 0, len(rows))
	for _, row := range rows {
		k, err := parseKlineRow(symbol, interval, row)
		if err != nil {
			continue // malformed row: skip rather than fail the whole backfill page
		}
		out = append(out, k)
	}
	return out, nil
}

// RateLimitError marks a response the caller should treat as recoverable (§7 RateLimited).
type RateLimitError struct {
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("ingest: rate limited (status %d)", e.StatusCode)
}

func rowString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func rowInt64(v interface{}) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

// parseKlineRow type-coerces one REST klines array row into a Kline. Every
// element arrives loosely typed (numbers are sometimes JSON numbers,
// sometimes strings depending on field), so every field is coerced rather
// than asserted (§4.3 "type-coerce string numerics").
func parseKlineRow(symbol, interval string, row restKlineRow) (store.Kline, error) {
	if len(row) < 11 {
		return store.Kline{}, fmt.Errorf("ingest: kline row too short: %d fields", len(row))
	}
	k := store.Kline{
		Symbol:         symbol,
		Interval:       interval,
		OpenTime:       rowInt64(row[0]),
		Open:           parseF(rowString(row[1])),
		High:           parseF(rowString(row[2])),
		Low:            parseF(rowString(row[3])),
		Close:          parseF(rowString(row[4])),
		Volume:         parseF(rowString(row[5])),
		CloseTime:      rowInt64(row[6]),
		QuoteVolume:    parseF(rowString(row[7])),
		TradeCount:     rowInt64(row[8]),
		TakerBuyVolume: parseF(rowString(row[9])),
		IsClosed:       true, // REST history only ever returns closed candles
	}
	return k, nil
}
