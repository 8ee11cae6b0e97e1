// Package candles serves historical and realtime kline data, merging the
// store's in-memory forming candle with REST-backfilled and persisted
// history (§4.3).
package candles

// Point is one bar in the compact response shape (§6).
type Point struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
	BV float64 `json:"bv"`
	SV float64 `json:"sv"`
}

// CompactResponse is the exact wire shape named in §6:
// {"s","i","d":[{t,o,h,l,c,v,bv,sv}],"n","f","l"}
type CompactResponse struct {
	Symbol   string  `json:"s"`
	Interval string  `json:"i"`
	Data     []Point `json:"d"`
	Count    int     `json:"n"`
	First    int64   `json:"f"`
	Last     int64   `json:"l"`
}
