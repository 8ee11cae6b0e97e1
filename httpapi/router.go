package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aspen-market/backbone/metrics"
)

// NewRouter builds the full §6 route tree over h.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), metrics.GinMiddleware())

	r.GET("/health", h.GetHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/symbols", h.ListSymbols)
		v1.POST("/symbols", h.AddSymbol)
		v1.GET("/symbols/:symbol", h.GetSymbol)

		v1.GET("/candles/:symbol", h.GetCandles)
		v1.GET("/candles/:symbol/latest", h.GetLatestCandle)
		v1.GET("/candles/:symbol/range", h.GetCandlesRange)

		agg := v1.Group("/aggregation")
		{
			agg.GET("/candles/:symbol/:interval", h.GetAggregationCandles)
			agg.GET("/volume-profile/:symbol", h.GetVolumeProfile)
			agg.GET("/footprint/:symbol/:interval", h.GetFootprint)
			agg.GET("/liquidations/:symbol", h.GetLiquidations)
			agg.GET("/heatmap/:symbol", h.GetHeatmap)
			agg.POST("/multi", h.PostMulti)
			agg.GET("/stats", h.GetAggregationStats)
		}

		ws := v1.Group("/websocket")
		{
			ws.GET("/stats", h.GetWSStats)
			ws.GET("/price/:symbol", h.GetWSPrice)
			ws.GET("/depth/:symbol", h.GetWSDepth)
			ws.GET("/trades/:symbol", h.GetWSTrades)
			ws.GET("/kline/:symbol/:interval", h.GetWSKline)
			ws.GET("/volume/:symbol", h.GetWSVolume)
			ws.GET("/markprice/:symbol", h.GetWSMarkPrice)
			ws.GET("/liquidations/:symbol", h.GetWSLiquidations)
			ws.POST("/symbols/:symbol", h.PostWSSymbol)
			ws.GET("/connect", h.ServeWebSocket)
		}
	}

	return r
}
