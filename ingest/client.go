package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/aspen-market/backbone/metrics"
	"github.com/aspen-market/backbone/store"
)

const (
	heartbeatMissThreshold = 30 * time.Second
	parseErrorWindow       = 10 * time.Second
	parseErrorBudget       = 5
)

// defaultKlineIntervals are the kline streams subscribed per symbol beyond
// the fixed stream set (§4.1 names 1m/5m/15m explicitly; additional
// intervals used by the candle service's longer-window views are folded in
// here too, since subscribing once is cheaper than backfilling forever).
var defaultKlineIntervals = []string{"1m", "5m", "15m", "1h", "4h", "1d"}

// Client maintains one multiplexed WebSocket conversation with the upstream
// exchange, covering every symbol in the store's symbol set.
type Client struct {
	url       string
	store     *store.Store
	intervals []string
	dialer    websocket.Dialer
	wsMetrics *metrics.WSMetricsRecorder

	mu                         sync.RWMutex
	conn                       *websocket.Conn
	state                      State
	pending                    []string // symbols queued while not in Streaming
	globalForceOrderSubscribed bool     // reset per connection; see maybeSubscribeGlobalForceOrder

	errMu      sync.Mutex
	parseErrs  []time.Time
	lastFrame  time.Time
}

// New creates an ingest client against wsURL (a combined-stream endpoint)
// that will dispatch into st. kindLabel distinguishes spot vs futures in metrics.
func New(wsURL string, st *store.Store, kindLabel string) *Client {
	intervals := append([]string(nil), defaultKlineIntervals...)
	return &Client{
		url:       wsURL,
		store:     st,
		intervals: intervals,
		dialer:    websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		wsMetrics: metrics.NewWSMetricsRecorder("upstream_" + kindLabel),
		state:     Idle,
	}
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// AddSymbol subscribes to symbol's stream set immediately if Streaming,
// otherwise queues it for the next Subscribing transition (§4.1).
func (c *Client) AddSymbol(symbol string) {
	c.mu.Lock()
	streaming := c.state == Streaming
	conn := c.conn
	c.mu.Unlock()

	if !streaming || conn == nil {
		c.mu.Lock()
		c.pending = append(c.pending, symbol)
		c.mu.Unlock()
		return
	}

	if err := c.subscribeSymbols(conn, []string{symbol}); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("ingest: incremental subscribe failed")
		c.mu.Lock()
		c.pending = append(c.pending, symbol)
		c.mu.Unlock()
	}
}

// Run drives the dial/subscribe/stream/reconnect loop until ctx is cancelled.
func (c *Client) Run(ctx context.Context, initialSymbols []string) error {
	c.mu.Lock()
	c.pending = append(c.pending, initialSymbols...)
	c.mu.Unlock()

	bo := newBackoff(1*time.Second, 60*time.Second)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.setState(Dialing)
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.wsMetrics.RecordConnection(false)
			log.Warn().Err(err).Msg("ingest: dial failed, backing off")
			select {
			case <-time.After(bo.next()):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		c.wsMetrics.RecordConnection(true)
		bo.reset()

		c.mu.Lock()
		c.conn = conn
		c.state = Connected
		c.globalForceOrderSubscribed = false // fresh connection has zero subscriptions
		c.mu.Unlock()

		c.setState(Subscribing)
		c.mu.Lock()
		symbols := c.pending
		c.pending = nil
		c.mu.Unlock()
		// A fresh connection carries no subscriptions: resubscribe every
		// symbol in the store's set along with any queued ones.
		seen := make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			seen[s] = struct{}{}
		}
		for _, s := range c.store.Symbols() {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				symbols = append(symbols, s)
			}
		}
		if err := c.subscribeSymbols(conn, symbols); err != nil {
			log.Warn().Err(err).Msg("ingest: initial subscribe failed")
		}

		c.setState(Streaming)
		c.resetParseErrors()
		c.recordFrame()

		reason := c.readLoop(ctx, conn)
		c.wsMetrics.RecordDisconnect(reason)
		conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.setState(Reconnecting)
		c.wsMetrics.RecordReconnect()
		select {
		case <-time.After(bo.next()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// readLoop reads frames until a read error, a heartbeat miss, or a
// parse-error-budget exhaustion forces a reconnect; it returns the reason.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) string {
	heartbeat := time.NewTicker(5 * time.Second)
	defer heartbeat.Stop()

	msgCh := make(chan []byte, 1)
	errCh := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case msgCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return "shutdown"
		case err := <-errCh:
			log.Warn().Err(err).Msg("ingest: read error")
			return "error"
		case msg := <-msgCh:
			c.recordFrame()
			if c.handleFrame(msg) {
				if c.tripParseErrorBudget() {
					return "parse_error_budget"
				}
			}
		case <-heartbeat.C:
			if time.Since(c.lastFrameTime()) > heartbeatMissThreshold {
				return "heartbeat_miss"
			}
		}
	}
}

func (c *Client) recordFrame() {
	c.errMu.Lock()
	c.lastFrame = time.Now()
	c.errMu.Unlock()
}

func (c *Client) lastFrameTime() time.Time {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastFrame
}

func (c *Client) resetParseErrors() {
	c.errMu.Lock()
	c.parseErrs = nil
	c.errMu.Unlock()
}

// tripParseErrorBudget records a parse error and reports whether the
// run of >=5 errors within 10s budget (§4.1 failure semantics) has been exceeded.
func (c *Client) tripParseErrorBudget() bool {
	now := time.Now()
	c.errMu.Lock()
	defer c.errMu.Unlock()

	cutoff := now.Add(-parseErrorWindow)
	kept := c.parseErrs[:0]
	for _, t := range c.parseErrs {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.parseErrs = append(kept, now)
	return len(c.parseErrs) >= parseErrorBudget
}

// handleFrame parses and dispatches one frame, returning true if it was malformed.
func (c *Client) handleFrame(raw []byte) (malformed bool) {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Stream == "" {
		// Might be a subscribe ack; not every frame is stream data.
		return false
	}

	switch {
	case strings.HasSuffix(env.Stream, "@ticker"):
		return c.dispatchTicker(env.Data)
	case strings.Contains(env.Stream, "@depth"):
		return c.dispatchDepth(env.Data)
	case strings.HasSuffix(env.Stream, "@aggTrade"):
		return c.dispatchAggTrade(env.Data)
	case strings.Contains(env.Stream, "@kline_"):
		return c.dispatchKline(env.Data)
	case strings.HasSuffix(env.Stream, "@markPrice"):
		return c.dispatchMarkPrice(env.Data)
	case strings.Contains(env.Stream, "forceOrder"):
		return c.dispatchForceOrder(env.Data, env.Stream)
	default:
		return false
	}
}

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func (c *Client) dispatchTicker(data json.RawMessage) bool {
	var f tickerFrame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Debug().Err(err).Msg("ingest: malformed ticker frame")
		return true
	}
	if !c.store.HasSymbol(f.Symbol) {
		return false
	}
	tick := store.PriceTick{
		Symbol:       f.Symbol,
		LastPrice:    parseF(f.LastPrice),
		Change24h:    parseF(f.PriceChange),
		ChangePct24h: parseF(f.PriceChangePercent),
		Volume24h:    parseF(f.Volume),
		EventTime:    f.EventTime,
	}
	_ = c.store.ApplyPriceUpdate(f.Symbol, tick)
	metrics.RecordMarketDataLag(f.Symbol, f.EventTime)
	c.wsMetrics.RecordMessage("ticker")
	return false
}

func (c *Client) dispatchDepth(data json.RawMessage) bool {
	var f depthFrame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Debug().Err(err).Msg("ingest: malformed depth frame")
		return true
	}
	if !c.store.HasSymbol(f.Symbol) {
		return false
	}
	snap := store.DepthSnapshot{
		Symbol:        f.Symbol,
		Bids:          toLevels(f.Bids),
		Asks:          toLevels(f.Asks),
		FirstUpdateID: f.FirstUpdateID,
		FinalUpdateID: f.FinalUpdateID,
		EventTime:     f.EventTime,
	}
	_ = c.store.ApplyDepthUpdate(f.Symbol, snap)
	c.wsMetrics.RecordMessage("depth")
	return false
}

func toLevels(raw [][]string) []store.PriceLevel {
	out := make([]store.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		if len(lvl) != 2 {
			continue
		}
		out = append(out, store.PriceLevel{Price: parseF(lvl[0]), Size: parseF(lvl[1])})
	}
	return out
}

func (c *Client) dispatchAggTrade(data json.RawMessage) bool {
	var f aggTradeFrame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Debug().Err(err).Msg("ingest: malformed aggTrade frame")
		return true
	}
	if !c.store.HasSymbol(f.Symbol) {
		return false
	}
	tr := store.Trade{
		Symbol:       f.Symbol,
		Price:        parseF(f.Price),
		Quantity:     parseF(f.Quantity),
		IsBuyerMaker: f.IsBuyerMaker,
		TradeTime:    f.TradeTime,
	}
	_ = c.store.ApplyTrade(f.Symbol, tr)
	c.wsMetrics.RecordMessage("aggTrade")
	return false
}

func (c *Client) dispatchKline(data json.RawMessage) bool {
	var f klineFrame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Debug().Err(err).Msg("ingest: malformed kline frame")
		return true
	}
	if !c.store.HasSymbol(f.Symbol) {
		return false
	}
	k := store.Kline{
		Symbol:         f.Symbol,
		Interval:       f.Kline.Interval,
		OpenTime:       f.Kline.OpenTime,
		CloseTime:      f.Kline.CloseTime,
		Open:           parseF(f.Kline.OpenPrice),
		High:           parseF(f.Kline.HighPrice),
		Low:            parseF(f.Kline.LowPrice),
		Close:          parseF(f.Kline.ClosePrice),
		Volume:         parseF(f.Kline.Volume),
		TakerBuyVolume: parseF(f.Kline.TakerBuyBaseVolume), // verbatim from upstream, never estimated (§4.1)
		QuoteVolume:    parseF(f.Kline.QuoteVolume),
		TradeCount:     f.Kline.NumberOfTrades,
		IsClosed:       f.Kline.IsFinal,
	}
	_ = c.store.ApplyKlineUpdate(f.Symbol, k)
	c.wsMetrics.RecordMessage("kline")
	return false
}

func (c *Client) dispatchMarkPrice(data json.RawMessage) bool {
	var f markPriceFrame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Debug().Err(err).Msg("ingest: malformed markPrice frame")
		return true
	}
	if !c.store.HasSymbol(f.Symbol) {
		return false
	}
	mp := store.MarkPrice{
		Symbol:          f.Symbol,
		MarkPrice:       parseF(f.MarkPrice),
		IndexPrice:      parseF(f.IndexPrice),
		EstimatedSettle: parseF(f.EstimatedSettle),
		FundingRate:     parseF(f.FundingRate),
		NextFundingTime: f.NextFundingTime,
		EventTime:       f.EventTime,
	}
	_ = c.store.ApplyMarkPriceUpdate(f.Symbol, mp)
	c.wsMetrics.RecordMessage("markPrice")
	return false
}

// dispatchForceOrder handles both the per-symbol stream ("<s>@forceOrder")
// and the global stream ("!forceOrder@arr"); the store dedups by event key (§4.1).
func (c *Client) dispatchForceOrder(data json.RawMessage, stream string) bool {
	var f forceOrderFrame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Debug().Err(err).Msg("ingest: malformed forceOrder frame")
		return true
	}
	symbol := f.Order.Symbol
	if symbol == "" || !c.store.HasSymbol(symbol) {
		return false
	}
	side := store.LiquidationBuy
	if strings.EqualFold(f.Order.Side, "SELL") {
		side = store.LiquidationSell
	}
	origin := store.StreamPerSymbol
	if strings.HasPrefix(stream, "!") {
		origin = store.StreamGlobal
	}
	l := store.Liquidation{
		Symbol:     symbol,
		Side:       side,
		OrderPrice: parseF(f.Order.OrderPrice),
		AvgPrice:   parseF(f.Order.AvgPrice),
		Quantity:   parseF(f.Order.Quantity),
		Status:     f.Order.Status,
		TradeTime:  f.Order.TradeTime,
		EventTime:  f.EventTime,
		Origin:     origin,
	}
	_, _ = c.store.ApplyLiquidationUpdate(symbol, l)
	c.wsMetrics.RecordMessage("forceOrder")
	return false
}

// subscribeSymbols sends one multiplexed SUBSCRIBE covering every stream kind
// for each symbol (§4.1 stream composition), plus the global forceOrder
// stream (subscribed once per connection, guarded by c.globalForceOrderSubscribed).
func (c *Client) subscribeSymbols(conn *websocket.Conn, symbols []string) error {
	if len(symbols) == 0 {
		return c.maybeSubscribeGlobalForceOrder(conn)
	}

	params := make([]string, 0, len(symbols)*(4+len(c.intervals)))
	for _, sym := range symbols {
		lower := strings.ToLower(sym)
		params = append(params,
			lower+"@ticker",
			lower+"@depth@100ms",
			lower+"@aggTrade",
			lower+"@markPrice",
			lower+"@forceOrder",
		)
		for _, interval := range c.intervals {
			params = append(params, fmt.Sprintf("%s@kline_%s", lower, interval))
		}
	}

	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     time.Now().UnixNano(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	return c.maybeSubscribeGlobalForceOrder(conn)
}

func (c *Client) maybeSubscribeGlobalForceOrder(conn *websocket.Conn) error {
	c.mu.Lock()
	already := c.globalForceOrderSubscribed
	c.globalForceOrderSubscribed = true
	c.mu.Unlock()
	if already {
		return nil
	}
	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": []string{"!forceOrder@arr"},
		"id":     time.Now().UnixNano(),
	}
	return conn.WriteJSON(msg)
}
