package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aspen-market/backbone/aggregation"
	"github.com/aspen-market/backbone/candles"
	"github.com/aspen-market/backbone/config"
	"github.com/aspen-market/backbone/hub"
	"github.com/aspen-market/backbone/store"
)

// SymbolAdder is the narrow slice of ingest.Client that the surface needs
// for POST /symbols and POST /websocket/symbols/:symbol: subscribe a new
// symbol's stream set. The surface depends on this interface, not on the
// ingest package, so it never reaches past decode-and-delegate (§4.6).
type SymbolAdder interface {
	AddSymbol(symbol string)
}

// Handler holds read-only references to every collaborator the surface
// consults. It never mutates store/hub/aggregation state directly beyond
// registering a new symbol.
type Handler struct {
	st      *store.Store
	candles *candles.Service
	agg     *aggregation.Engine
	hub     *hub.Hub
	db      *config.Database
	ingest  []SymbolAdder
}

func NewHandler(st *store.Store, candleSvc *candles.Service, agg *aggregation.Engine, h *hub.Hub, db *config.Database, ingest ...SymbolAdder) *Handler {
	return &Handler{st: st, candles: candleSvc, agg: agg, hub: h, db: db, ingest: ingest}
}

func (h *Handler) GetHealth(c *gin.Context) {
	dbStatus := "ok"
	if h.db == nil {
		dbStatus = "unavailable"
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": dbStatus})
}

func (h *Handler) ListSymbols(c *gin.Context) {
	symbols := h.st.Symbols()
	c.JSON(http.StatusOK, gin.H{"count": len(symbols), "symbols": symbols})
}

func (h *Handler) GetSymbol(c *gin.Context) {
	symbol := c.Param("symbol")
	if !h.st.HasSymbol(symbol) {
		notFound(c, "unknown symbol "+symbol)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol})
}

type addSymbolRequest struct {
	Symbol     string `json:"symbol" binding:"required"`
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
}

func (h *Handler) AddSymbol(c *gin.Context) {
	var req addSymbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "body must include symbol")
		return
	}

	h.st.AddSymbol(req.Symbol)
	if h.db != nil {
		if err := h.db.AddSymbol(req.Symbol, req.BaseAsset, req.QuoteAsset); err != nil {
			respondError(c, http.StatusInternalServerError, CodeUpstreamUnavailable, "failed to persist symbol", nil)
			return
		}
	}
	for _, client := range h.ingest {
		client.AddSymbol(req.Symbol)
	}
	c.JSON(http.StatusOK, gin.H{"symbol": req.Symbol, "added": true})
}

func (h *Handler) GetCandles(c *gin.Context) {
	start := time.Now()
	symbol := c.Param("symbol")
	interval := c.DefaultQuery("interval", "1m")
	limit, err := intParam(c, "limit", 500, 1, 1500)
	if err != nil {
		invalidRequest(c, err.Error())
		return
	}

	ks, err := h.candles.GetCandles(context.Background(), symbol, interval, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeUpstreamUnavailable, err.Error(), nil)
		return
	}
	resp := candles.ToCompact(symbol, interval, ks)
	respondJSON(c, http.StatusOK, start, resp.Count, cacheKeyFor("candles", symbol, interval, limit), 0, resp)
}

func (h *Handler) GetLatestCandle(c *gin.Context) {
	start := time.Now()
	symbol := c.Param("symbol")
	interval := c.DefaultQuery("interval", "1m")

	k, ok, err := h.candles.GetLatestCandle(symbol, interval)
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeUpstreamUnavailable, err.Error(), nil)
		return
	}
	if !ok {
		notFound(c, "no candle available for "+symbol)
		return
	}
	respondJSON(c, http.StatusOK, start, 1, cacheKeyFor("latest", symbol, interval), 0, gin.H{"symbol": symbol, "interval": interval, "candle": k})
}

func (h *Handler) GetCandlesRange(c *gin.Context) {
	start := time.Now()
	symbol := c.Param("symbol")
	interval := c.DefaultQuery("interval", "1m")
	startMs, ok1, err := int64Param(c, "start_time", true)
	if err != nil {
		invalidRequest(c, err.Error())
		return
	}
	endMs, ok2, err := int64Param(c, "end_time", true)
	if err != nil {
		invalidRequest(c, err.Error())
		return
	}
	if !ok1 || !ok2 || startMs > endMs {
		invalidRequest(c, "start_time and end_time must be provided and ordered")
		return
	}

	ks, err := h.candles.GetCandlesInRange(context.Background(), symbol, interval, startMs, endMs)
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeUpstreamUnavailable, err.Error(), nil)
		return
	}
	resp := candles.ToCompact(symbol, interval, ks)
	respondJSON(c, http.StatusOK, start, resp.Count, cacheKeyFor("range", symbol, interval, startMs, endMs), 0, resp)
}

func (h *Handler) GetAggregationCandles(c *gin.Context) {
	start := time.Now()
	symbol := c.Param("symbol")
	interval := c.Param("interval")
	limit, err := intParam(c, "limit", 500, 1, 5000)
	if err != nil {
		invalidRequest(c, err.Error())
		return
	}

	ks, err := h.candles.GetCandles(context.Background(), symbol, interval, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeUpstreamUnavailable, err.Error(), nil)
		return
	}
	resp := candles.ToCompact(symbol, interval, ks)
	respondJSON(c, http.StatusOK, start, resp.Count, cacheKeyFor("agg-candles", symbol, interval, limit), 5*time.Second, resp)
}

func (h *Handler) GetVolumeProfile(c *gin.Context) {
	start := time.Now()
	symbol := c.Param("symbol")
	hours, err := intParam(c, "hours", 24, 1, 168)
	if err != nil {
		invalidRequest(c, err.Error())
		return
	}
	bucketSize, err := floatParam(c, "bucket_size", 1.0)
	if err != nil {
		invalidRequest(c, err.Error())
		return
	}

	vp, err := h.agg.GetVolumeProfile(symbol, hours, bucketSize)
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeUpstreamUnavailable, err.Error(), nil)
		return
	}
	respondJSON(c, http.StatusOK, start, len(vp.Levels), cacheKeyFor("vp", symbol, hours), 5*time.Second, vp)
}

func (h *Handler) GetFootprint(c *gin.Context) {
	start := time.Now()
	symbol := c.Param("symbol")
	interval := c.Param("interval")
	limit, err := intParam(c, "limit", 100, 1, 1000)
	if err != nil {
		invalidRequest(c, err.Error())
		return
	}
	bucketSize, err := floatParam(c, "bucket_size", 1.0)
	if err != nil {
		invalidRequest(c, err.Error())
		return
	}

	fp, err := h.agg.GetFootprint(symbol, interval, limit, bucketSize)
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeUpstreamUnavailable, err.Error(), nil)
		return
	}
	respondJSON(c, http.StatusOK, start, len(fp), cacheKeyFor("fp", symbol, interval, limit), 5*time.Second, fp)
}

func (h *Handler) GetLiquidations(c *gin.Context) {
	start := time.Now()
	symbol := c.Param("symbol")
	hours, err := intParam(c, "hours", 1, 1, 24)
	if err != nil {
		invalidRequest(c, err.Error())
		return
	}
	sinceMs := time.Now().Add(-time.Duration(hours)*time.Hour).UnixMilli()

	out, err := h.agg.GetLiquidations(symbol, sinceMs, 1000, 0)
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeUpstreamUnavailable, err.Error(), nil)
		return
	}
	respondJSON(c, http.StatusOK, start, len(out), cacheKeyFor("liq", symbol, hours), 5*time.Second, out)
}

func (h *Handler) GetHeatmap(c *gin.Context) {
	start := time.Now()
	symbol := c.Param("symbol")
	hours, err := intParam(c, "hours", 4, 1, 48)
	if err != nil {
		invalidRequest(c, err.Error())
		return
	}
	resolution, err := intParam(c, "resolution", 50, 10, 500)
	if err != nil {
		invalidRequest(c, err.Error())
		return
	}

	n := hours * 60 // approximate 1m-candle count for the window
	hm, err := h.agg.GetHeatmap(symbol, "1m", n, float64(resolution))
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeUpstreamUnavailable, err.Error(), nil)
		return
	}
	respondJSON(c, http.StatusOK, start, len(hm.Cells), cacheKeyFor("heatmap", symbol, hours, resolution), 5*time.Second, hm)
}

type multiRequest struct {
	Symbol               string   `json:"symbol" binding:"required"`
	Intervals            []string `json:"intervals"`
	Limit                int      `json:"limit"`
	IncludeVolumeProfile bool     `json:"include_volume_profile"`
	IncludeLiquidations  bool     `json:"include_liquidations"`
	VPHours              int      `json:"vp_hours"`
	LiqHours             int      `json:"liq_hours"`
}

func (h *Handler) PostMulti(c *gin.Context) {
	start := time.Now()
	var req multiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid multi-fetch request body")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 500
	}
	if len(req.Intervals) == 0 {
		req.Intervals = []string{"1m"}
	}

	result := gin.H{"symbol": req.Symbol}
	candlesByInterval := make(map[string]interface{}, len(req.Intervals))
	for _, interval := range req.Intervals {
		ks, err := h.candles.GetCandles(context.Background(), req.Symbol, interval, req.Limit)
		if err != nil {
			continue
		}
		candlesByInterval[interval] = candles.ToCompact(req.Symbol, interval, ks)
	}
	result["candles"] = candlesByInterval

	if req.IncludeVolumeProfile {
		vpHours := req.VPHours
		if vpHours <= 0 {
			vpHours = 24
		}
		vp, err := h.agg.GetVolumeProfile(req.Symbol, vpHours, 1.0)
		if err == nil {
			result["volumeProfile"] = vp
		}
	}
	if req.IncludeLiquidations {
		liqHours := req.LiqHours
		if liqHours <= 0 {
			liqHours = 1
		}
		sinceMs := time.Now().Add(-time.Duration(liqHours) * time.Hour).UnixMilli()
		liqs, err := h.agg.GetLiquidations(req.Symbol, sinceMs, 1000, 0)
		if err == nil {
			result["liquidations"] = liqs
		}
	}

	respondJSON(c, http.StatusOK, start, len(req.Intervals), "", 0, result)
}

func (h *Handler) GetAggregationStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.agg.Stats())
}

func (h *Handler) GetWSStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}

func (h *Handler) GetWSPrice(c *gin.Context) {
	symbol := c.Param("symbol")
	tick, ok := h.st.GetPrice(symbol)
	if !ok {
		respondError(c, http.StatusNotFound, CodePriceNotAvailable, "no price cached for "+symbol, nil)
		return
	}
	c.JSON(http.StatusOK, tick)
}

func (h *Handler) GetWSDepth(c *gin.Context) {
	symbol := c.Param("symbol")
	depth, ok := h.st.GetDepth(symbol)
	if !ok {
		notFound(c, "no depth cached for "+symbol)
		return
	}
	c.JSON(http.StatusOK, depth)
}

func (h *Handler) GetWSTrades(c *gin.Context) {
	symbol := c.Param("symbol")
	limit, err := intParam(c, "limit", 100, 1, 1000)
	if err != nil {
		invalidRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, h.st.GetRecentTrades(symbol, limit))
}

func (h *Handler) GetWSKline(c *gin.Context) {
	symbol := c.Param("symbol")
	interval := c.Param("interval")
	current, closed, ok := h.st.GetKline(symbol, interval)
	if !ok || (current == nil && len(closed) == 0) {
		notFound(c, "no kline cached for "+symbol+" "+interval)
		return
	}
	k := current
	if k == nil {
		last := closed[len(closed)-1]
		k = &last
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol, "interval": interval, "kline": k,
		"buyVolume": k.TakerBuyVolume, "sellVolume": k.SellVolume(), "delta": k.TakerBuyVolume - k.SellVolume(),
	})
}

func (h *Handler) GetWSVolume(c *gin.Context) {
	symbol := c.Param("symbol")
	interval := c.DefaultQuery("interval", "1m")
	current, _, ok := h.st.GetKline(symbol, interval)
	if !ok || current == nil {
		notFound(c, "no forming candle for "+symbol+" "+interval)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "interval": interval, "buyVolume": current.TakerBuyVolume, "sellVolume": current.SellVolume()})
}

func (h *Handler) GetWSMarkPrice(c *gin.Context) {
	symbol := c.Param("symbol")
	mp, ok := h.st.GetMarkPrice(symbol)
	if !ok {
		notFound(c, "no mark price cached for "+symbol)
		return
	}
	c.JSON(http.StatusOK, mp)
}

func (h *Handler) GetWSLiquidations(c *gin.Context) {
	symbol := c.Param("symbol")
	limit, err := intParam(c, "limit", 100, 1, 1000)
	if err != nil {
		invalidRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, h.st.GetLiquidations(symbol, 0, limit))
}

func (h *Handler) PostWSSymbol(c *gin.Context) {
	symbol := c.Param("symbol")
	h.st.AddSymbol(symbol)
	for _, client := range h.ingest {
		client.AddSymbol(symbol)
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "added": true})
}

func (h *Handler) ServeWebSocket(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}
