// Package store holds the authoritative in-memory market-data caches: the
// latest observed value for each (symbol, stream-kind) pair, plus bounded
// histories for trades, klines and liquidations. Writers are the ingest
// dispatcher; readers are the HTTP surface, the hub and the aggregation engine.
package store

// PriceTick is the latest ticker snapshot for a symbol.
type PriceTick struct {
	Symbol        string
	LastPrice     float64
	Change24h     float64
	ChangePct24h  float64
	Volume24h     float64
	EventTime     int64
}

// PriceLevel is one side of a DepthSnapshot: price -> size.
type PriceLevel struct {
	Price float64
	Size  float64
}

// DepthSnapshot is the latest order-book snapshot for a symbol.
type DepthSnapshot struct {
	Symbol        string
	Bids          []PriceLevel // descending by price
	Asks          []PriceLevel // ascending by price
	FirstUpdateID int64
	FinalUpdateID int64
	EventTime     int64
}

// Trade is one aggregate trade tick.
type Trade struct {
	Symbol       string
	Price        float64
	Quantity     float64
	IsBuyerMaker bool
	TradeTime    int64
}

// Kline is one interval-scoped candle.
type Kline struct {
	Symbol         string
	Interval       string
	OpenTime       int64
	CloseTime      int64
	Open           float64
	High           float64
	Low            float64
	Close          float64
	Volume         float64
	TakerBuyVolume float64
	QuoteVolume    float64
	TradeCount     int64
	IsClosed       bool
}

// SellVolume derives taker-sell volume: volume - takerBuyVolume.
func (k Kline) SellVolume() float64 {
	return k.Volume - k.TakerBuyVolume
}

// MarkPrice is the latest futures mark-price/funding snapshot for a symbol.
type MarkPrice struct {
	Symbol          string
	MarkPrice       float64
	IndexPrice      float64
	EstimatedSettle float64
	FundingRate     float64
	NextFundingTime int64
	EventTime       int64
}

// LiquidationSide identifies which side of the market was liquidated.
type LiquidationSide string

const (
	LiquidationBuy  LiquidationSide = "BUY"  // liquidated long
	LiquidationSell LiquidationSide = "SELL" // liquidated short
)

// StreamOrigin distinguishes which upstream stream a forceOrder frame arrived
// on. Per-symbol frames are preferred over the global stream when both carry
// the same event (§4.1).
type StreamOrigin string

const (
	StreamPerSymbol StreamOrigin = "per_symbol"
	StreamGlobal    StreamOrigin = "global"
)

// Liquidation is one forced-order event.
type Liquidation struct {
	Symbol     string
	Side       LiquidationSide
	OrderPrice float64
	AvgPrice   float64
	Quantity   float64
	Status     string
	TradeTime  int64
	EventTime  int64
	Origin     StreamOrigin
}

// ChangeKind identifies which cache a ChangeEvent describes.
type ChangeKind string

const (
	ChangePrice       ChangeKind = "price_update"
	ChangeDepth       ChangeKind = "depth_update"
	ChangeTrade       ChangeKind = "trade_update"
	ChangeKline       ChangeKind = "kline_update"
	ChangeMarkPrice   ChangeKind = "mark_price_update"
	ChangeLiquidation ChangeKind = "liquidation_update"
)

// ChangeEvent is emitted after every successful store write, for the hub to
// fan out. Payload is always an immutable value (a copy), never a pointer
// into the store's own state, so the hub can hold it past the write.
type ChangeEvent struct {
	Kind    ChangeKind
	Symbol  string
	Payload interface{}
}
