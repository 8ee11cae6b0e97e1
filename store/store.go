package store

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	tradeRingCapacity       = 1000
	liquidationRingCapacity = 1000
	liquidationTTL          = 48 * time.Hour
	closedKlinesPerInterval = 60 // K, per §4.2
	liqDedupWindow          = 10 * time.Second
)

// klineHistory holds the forming candle plus the last K closed candles for
// one (symbol, interval) pair.
type klineHistory struct {
	current *Kline
	closed  []Kline // oldest first, FIFO, capped at closedKlinesPerInterval
}

type liqDedupEntry struct {
	key    string
	seen   time.Time
	origin StreamOrigin
}

// symbolState is the per-symbol cache. All fields are guarded by mu; the
// ingest dispatcher is the sole writer for a given symbol (§4.2 concurrency
// policy), so writes never contend with each other across symbols.
type symbolState struct {
	mu sync.RWMutex

	price     *PriceTick
	depth     *DepthSnapshot
	trades    []Trade // newest first, capped at tradeRingCapacity
	klines    map[string]*klineHistory
	markPrice *MarkPrice

	liquidations []Liquidation // newest first
	liqDedup     []liqDedupEntry
}

func newSymbolState() *symbolState {
	return &symbolState{klines: make(map[string]*klineHistory)}
}

// Store is the process-wide market-data cache. Global structures (the symbol
// set) use a coarse RWMutex; per-symbol state uses its own lock so that
// writes for different symbols never contend (§5).
type Store struct {
	mu      sync.RWMutex
	symbols map[string]struct{}
	states  map[string]*symbolState

	changeBuffer int
	subMu        sync.RWMutex
	subscribers  []chan ChangeEvent
	changes      chan ChangeEvent // the hub's default subscription, kept for callers using Changes()
}

// New creates an empty store. changeBuffer sizes each subscriber's lossy
// change-event channel; when a subscriber's buffer is full, the new event is
// dropped for that subscriber, per §4.2's "emit is lossy by design".
func New(changeBuffer int) *Store {
	s := &Store{
		symbols:      make(map[string]struct{}),
		states:       make(map[string]*symbolState),
		changeBuffer: changeBuffer,
	}
	s.changes = s.subscribe()
	return s
}

// Changes returns the hub's change-event stream.
func (s *Store) Changes() <-chan ChangeEvent {
	return s.changes
}

// Subscribe registers an independent lossy change-event stream. Every
// subscriber receives every event; a slow subscriber only drops its own
// copy, never another subscriber's (e.g. the candle service persisting
// closed klines runs independently of the hub's broadcast).
func (s *Store) Subscribe() <-chan ChangeEvent {
	return s.subscribe()
}

func (s *Store) subscribe() chan ChangeEvent {
	ch := make(chan ChangeEvent, s.changeBuffer)
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Store) emit(ev ChangeEvent) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// That subscriber's intake is saturated: drop its copy, keep the store write. (§4.2)
		}
	}
}

// AddSymbol adds symbol to S if absent. Idempotent.
func (s *Store) AddSymbol(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.symbols[symbol]; ok {
		return
	}
	s.symbols[symbol] = struct{}{}
	s.states[symbol] = newSymbolState()
}

// HasSymbol reports whether symbol is a member of S.
func (s *Store) HasSymbol(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.symbols[symbol]
	return ok
}

// Symbols returns a sorted snapshot of S.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *Store) state(symbol string) (*symbolState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[symbol]
	return st, ok
}

// ---- read side (§4.2) ----

func (s *Store) GetPrice(symbol string) (PriceTick, bool) {
	st, ok := s.state(symbol)
	if !ok {
		return PriceTick{}, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.price == nil {
		return PriceTick{}, false
	}
	return *st.price, true
}

func (s *Store) GetDepth(symbol string) (DepthSnapshot, bool) {
	st, ok := s.state(symbol)
	if !ok {
		return DepthSnapshot{}, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.depth == nil {
		return DepthSnapshot{}, false
	}
	snap := *st.depth
	snap.Bids = append([]PriceLevel(nil), st.depth.Bids...)
	snap.Asks = append([]PriceLevel(nil), st.depth.Asks...)
	return snap, true
}

// GetRecentTrades returns the last n trades, newest first, n clamped to the ring capacity.
func (s *Store) GetRecentTrades(symbol string, n int) []Trade {
	st, ok := s.state(symbol)
	if !ok {
		return nil
	}
	if n > tradeRingCapacity {
		n = tradeRingCapacity
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if n > len(st.trades) {
		n = len(st.trades)
	}
	out := make([]Trade, n)
	copy(out, st.trades[:n])
	return out
}

// GetKline returns the current (possibly forming) kline and the closed history, oldest first.
func (s *Store) GetKline(symbol, interval string) (current *Kline, closed []Kline, ok bool) {
	st, exists := s.state(symbol)
	if !exists {
		return nil, nil, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	h, exists := st.klines[interval]
	if !exists {
		return nil, nil, false
	}
	if h.current != nil {
		cp := *h.current
		current = &cp
	}
	closed = make([]Kline, len(h.closed))
	copy(closed, h.closed)
	return current, closed, true
}

func (s *Store) GetMarkPrice(symbol string) (MarkPrice, bool) {
	st, ok := s.state(symbol)
	if !ok {
		return MarkPrice{}, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.markPrice == nil {
		return MarkPrice{}, false
	}
	return *st.markPrice, true
}

// GetLiquidations returns liquidations with tradeTime >= sinceMs, newest first, up to limit.
func (s *Store) GetLiquidations(symbol string, sinceMs int64, limit int) []Liquidation {
	st, ok := s.state(symbol)
	if !ok {
		return nil
	}
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]Liquidation, 0, limit)
	for _, l := range st.liquidations {
		if l.TradeTime < sinceMs {
			continue
		}
		out = append(out, l)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// ---- write side (§4.2) ----

func (s *Store) ApplyPriceUpdate(symbol string, tick PriceTick) error {
	st, ok := s.state(symbol)
	if !ok {
		return fmt.Errorf("store: unknown symbol %s", symbol)
	}
	st.mu.Lock()
	st.price = &tick
	st.mu.Unlock()
	s.emit(ChangeEvent{Kind: ChangePrice, Symbol: symbol, Payload: tick})
	return nil
}

// ApplyDepthUpdate discards updates whose finalUpdateId regresses (§4.2 invariant).
func (s *Store) ApplyDepthUpdate(symbol string, snap DepthSnapshot) error {
	st, ok := s.state(symbol)
	if !ok {
		return fmt.Errorf("store: unknown symbol %s", symbol)
	}
	st.mu.Lock()
	if st.depth != nil && snap.FinalUpdateID < st.depth.FinalUpdateID {
		st.mu.Unlock()
		return nil
	}
	st.depth = &snap
	st.mu.Unlock()
	s.emit(ChangeEvent{Kind: ChangeDepth, Symbol: symbol, Payload: snap})
	return nil
}

func (s *Store) ApplyTrade(symbol string, t Trade) error {
	st, ok := s.state(symbol)
	if !ok {
		return fmt.Errorf("store: unknown symbol %s", symbol)
	}
	st.mu.Lock()
	st.trades = append([]Trade{t}, st.trades...)
	if len(st.trades) > tradeRingCapacity {
		st.trades = st.trades[:tradeRingCapacity]
	}
	st.mu.Unlock()
	s.emit(ChangeEvent{Kind: ChangeTrade, Symbol: symbol, Payload: t})
	return nil
}

// ApplyKlineUpdate applies a kline frame. Closed klines are idempotent: a
// closed kline with an openTime already present in the closed history
// leaves the stored entry unchanged rather than appending a duplicate (§4.2
// I1, §8 invariant 1 — the frozen tuple never changes once written).
func (s *Store) ApplyKlineUpdate(symbol string, k Kline) error {
	st, ok := s.state(symbol)
	if !ok {
		return fmt.Errorf("store: unknown symbol %s", symbol)
	}
	st.mu.Lock()
	h, exists := st.klines[k.Interval]
	if !exists {
		h = &klineHistory{}
		st.klines[k.Interval] = h
	}

	if !k.IsClosed {
		cp := k
		h.current = &cp
		st.mu.Unlock()
		s.emit(ChangeEvent{Kind: ChangeKline, Symbol: symbol, Payload: k})
		return nil
	}

	present := false
	for i := range h.closed {
		if h.closed[i].OpenTime == k.OpenTime {
			present = true
			break
		}
	}
	if !present {
		h.closed = append(h.closed, k)
		if len(h.closed) > closedKlinesPerInterval {
			h.closed = h.closed[len(h.closed)-closedKlinesPerInterval:]
		}
	}
	if h.current != nil && h.current.OpenTime == k.OpenTime {
		h.current = nil
	}
	st.mu.Unlock()
	s.emit(ChangeEvent{Kind: ChangeKline, Symbol: symbol, Payload: k})
	return nil
}

func (s *Store) ApplyMarkPriceUpdate(symbol string, mp MarkPrice) error {
	st, ok := s.state(symbol)
	if !ok {
		return fmt.Errorf("store: unknown symbol %s", symbol)
	}
	st.mu.Lock()
	st.markPrice = &mp
	st.mu.Unlock()
	s.emit(ChangeEvent{Kind: ChangeMarkPrice, Symbol: symbol, Payload: mp})
	return nil
}

func liqDedupKey(l Liquidation) string {
	priceRounded := float64(int64(l.AvgPrice*100+0.5)) / 100
	qtyRounded := float64(int64(l.Quantity*10000+0.5)) / 10000
	return fmt.Sprintf("%d:%.2f:%.4f", l.TradeTime, priceRounded, qtyRounded)
}

// ApplyLiquidationUpdate dedups forceOrder events seen on both the per-symbol
// and the global stream (§4.1, §8 S5): the same (tradeTime, price rounded to
// 0.01, quantity rounded to 0.0001) key within liqDedupWindow is applied once.
func (s *Store) ApplyLiquidationUpdate(symbol string, l Liquidation) (applied bool, err error) {
	st, ok := s.state(symbol)
	if !ok {
		return false, fmt.Errorf("store: unknown symbol %s", symbol)
	}
	key := liqDedupKey(l)
	now := time.Now()

	st.mu.Lock()
	cutoff := now.Add(-liqDedupWindow)
	kept := st.liqDedup[:0]
	for _, e := range st.liqDedup {
		if e.seen.After(cutoff) {
			kept = append(kept, e)
		}
	}
	st.liqDedup = kept
	for i, e := range st.liqDedup {
		if e.key != key {
			continue
		}
		// Duplicate of an event already applied. Per §4.1, a per-symbol-stream
		// frame wins over a global-stream one for the same event: if the kept
		// record came from the global stream and this one is per-symbol,
		// upgrade the stored record and the dedup entry's origin in place.
		if e.origin == StreamGlobal && l.Origin == StreamPerSymbol {
			st.liqDedup[i].origin = StreamPerSymbol
			for j := range st.liquidations {
				if liqDedupKey(st.liquidations[j]) == key {
					st.liquidations[j] = l
					break
				}
			}
		}
		st.mu.Unlock()
		return false, nil
	}
	st.liqDedup = append(st.liqDedup, liqDedupEntry{key: key, seen: now, origin: l.Origin})

	st.liquidations = append([]Liquidation{l}, st.liquidations...)
	if len(st.liquidations) > liquidationRingCapacity {
		st.liquidations = st.liquidations[:liquidationRingCapacity]
	}
	// The TTL window is anchored at the newest retained trade time.
	newest := int64(0)
	for _, e := range st.liquidations {
		if e.TradeTime > newest {
			newest = e.TradeTime
		}
	}
	ttlCutoff := newest - liquidationTTL.Milliseconds()
	trimmed := st.liquidations[:0]
	for _, e := range st.liquidations {
		if e.TradeTime >= ttlCutoff {
			trimmed = append(trimmed, e)
		}
	}
	st.liquidations = trimmed
	st.mu.Unlock()

	s.emit(ChangeEvent{Kind: ChangeLiquidation, Symbol: symbol, Payload: l})
	return true, nil
}
