// Package ingest maintains the single long-lived upstream WebSocket
// conversation (per §4.1), parses frames and dispatches typed updates to the
// store. It also runs the REST backfill client used by the candle service.
package ingest

import "encoding/json"

// streamEnvelope is the combined-stream wrapper every multiplexed frame arrives in:
// {"stream":"btcusdt@kline_1m","data":{...}}
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// tickerFrame mirrors the upstream 24hr ticker stream payload.
type tickerFrame struct {
	EventTime          int64  `json:"E"`
	Symbol             string `json:"s"`
	PriceChange        string `json:"p"`
	PriceChangePercent string `json:"P"`
	LastPrice          string `json:"c"`
	Volume             string `json:"v"`
}

// depthFrame mirrors the upstream incremental depth-update payload.
type depthFrame struct {
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateID int64      `json:"U"`
	FinalUpdateID int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

// aggTradeFrame mirrors the upstream aggregate-trade stream payload.
type aggTradeFrame struct {
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// klineFrame mirrors the upstream kline stream payload.
type klineFrame struct {
	EventTime int64 `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime            int64  `json:"t"`
		CloseTime           int64  `json:"T"`
		Symbol              string `json:"s"`
		Interval            string `json:"i"`
		OpenPrice           string `json:"o"`
		ClosePrice          string `json:"c"`
		HighPrice           string `json:"h"`
		LowPrice            string `json:"l"`
		Volume              string `json:"v"`
		NumberOfTrades      int64  `json:"n"`
		IsFinal             bool   `json:"x"`
		QuoteVolume         string `json:"q"`
		TakerBuyBaseVolume  string `json:"V"`
		TakerBuyQuoteVolume string `json:"Q"`
	} `json:"k"`
}

// markPriceFrame mirrors the upstream mark-price stream payload.
type markPriceFrame struct {
	EventTime       int64  `json:"E"`
	Symbol          string `json:"s"`
	MarkPrice       string `json:"p"`
	IndexPrice      string `json:"i"`
	EstimatedSettle string `json:"P"`
	FundingRate     string `json:"r"`
	NextFundingTime int64  `json:"T"`
}

// forceOrderFrame mirrors the upstream forced-liquidation stream payload.
type forceOrderFrame struct {
	EventTime int64 `json:"E"`
	Order     struct {
		Symbol      string `json:"s"`
		Side        string `json:"S"`
		OrderPrice  string `json:"p"`
		AvgPrice    string `json:"ap"`
		Quantity    string `json:"q"`
		Status      string `json:"X"`
		TradeTime   int64  `json:"T"`
	} `json:"o"`
}

// restKlineRow is one row of the REST klines endpoint's array-of-arrays response:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume, count, takerBuyBase, takerBuyQuote, ignore]
type restKlineRow []interface{}
