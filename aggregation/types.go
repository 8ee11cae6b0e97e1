package aggregation

// VolumeProfileLevel is one price bucket's aggregated volume.
type VolumeProfileLevel struct {
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	BuyVolume  float64 `json:"buyVolume"`
	SellVolume float64 `json:"sellVolume"`
}

// VolumeProfile is the price-by-volume distribution over a window, with the
// point of control (POC) and value area bounds (VAH/VAL/VAV) (§4.4).
type VolumeProfile struct {
	Symbol string               `json:"symbol"`
	POC    float64              `json:"poc"`
	VAH    float64              `json:"vah"`
	VAL    float64              `json:"val"`
	VAV    float64              `json:"vav"`
	Levels []VolumeProfileLevel `json:"levels"`
}

// FootprintLevel is one price bucket within a single candle's footprint.
type FootprintLevel struct {
	Price      float64 `json:"price"`
	BuyVolume  float64 `json:"buyVolume"`
	SellVolume float64 `json:"sellVolume"`
	Delta      float64 `json:"delta"`
}

// FootprintCandle is the per-candle buy/sell/delta/POC breakdown (§4.4).
type FootprintCandle struct {
	OpenTime   int64            `json:"openTime"`
	TBV        float64          `json:"tbv"`
	TSV        float64          `json:"tsv"`
	TD         float64          `json:"td"`
	POC        float64          `json:"poc"`
	Levels     []FootprintLevel `json:"levels"`
}

// HeatmapCell is one (price, time) intensity reading.
type HeatmapCell struct {
	Time      int64   `json:"time"`
	Price     float64 `json:"price"`
	Intensity float64 `json:"intensity"`
}

// Heatmap is a price x time grid of trading intensity (§4.4).
type Heatmap struct {
	Symbol string        `json:"symbol"`
	Cells  []HeatmapCell `json:"cells"`
}

// LiquidationClass is the pattern a classified liquidation event belongs to.
type LiquidationClass string

const (
	ClassSingle  LiquidationClass = "single"
	ClassCascade LiquidationClass = "cascade"
	ClassSweep   LiquidationClass = "sweep"
)

// ClassifiedLiquidation pairs a raw liquidation with its pattern classification.
type ClassifiedLiquidation struct {
	Symbol     string           `json:"symbol"`
	Side       string           `json:"side"`
	Price      float64          `json:"price"`
	Quantity   float64          `json:"quantity"`
	TradeTime  int64            `json:"tradeTime"`
	Class      LiquidationClass `json:"class"`
	Confidence float64          `json:"confidence"`
}
