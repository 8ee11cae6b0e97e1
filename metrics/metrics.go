package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================================
// HTTP API Metrics
// ============================================================================

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backbone_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backbone_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backbone_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// ============================================================================
// Market Data / WebSocket Metrics
// ============================================================================

var (
	WSConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backbone_ws_connections_total",
			Help: "Total number of WebSocket connection attempts",
		},
		[]string{"type", "status"}, // type: "upstream_spot", "upstream_futures"; status: "success", "failed"
	)

	WSDisconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backbone_ws_disconnects_total",
			Help: "Total number of WebSocket disconnections",
		},
		[]string{"type", "reason"}, // reason: "shutdown", "error", "parse_error_budget", "heartbeat_miss"
	)

	WSReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backbone_ws_reconnects_total",
			Help: "Total number of WebSocket reconnection attempts",
		},
		[]string{"type"},
	)

	WSMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backbone_ws_messages_total",
			Help: "Total number of WebSocket messages received",
		},
		[]string{"stream"}, // "ticker", "depth", "aggTrade", "kline", "markPrice", "forceOrder"
	)

	WSActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backbone_ws_active_connections",
			Help: "Number of active WebSocket connections",
		},
		[]string{"type"},
	)

	WSClientsEvictedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backbone_ws_clients_evicted_total",
			Help: "Total number of client sessions evicted for a full send buffer",
		},
		[]string{"reason"},
	)

	MarketDataLag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backbone_market_data_lag_seconds",
			Help: "Market data lag in seconds (now - event time)",
		},
		[]string{"symbol"},
	)

	SubscribedSymbols = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backbone_subscribed_symbols",
			Help: "Number of subscribed trading symbols",
		},
	)
)

// ============================================================================
// Candle Service / Aggregation Metrics
// ============================================================================

var (
	BackfillRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backbone_backfill_requests_total",
			Help: "Total number of historical candle backfill requests",
		},
		[]string{"symbol", "interval", "status"},
	)

	BackfillDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backbone_backfill_duration_seconds",
			Help:    "Backfill request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"symbol", "interval"},
	)

	AggregationCacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backbone_aggregation_cache_hits_total",
			Help: "Total number of aggregation computation cache hits/misses",
		},
		[]string{"kind", "result"}, // result: "hit", "miss", "coalesced"
	)

	AggregationComputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backbone_aggregation_compute_duration_seconds",
			Help:    "Aggregation computation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"kind"},
	)
)

// ============================================================================
// Database Metrics
// ============================================================================

var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backbone_db_query_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backbone_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"operation"},
	)
)

// ============================================================================
// Exchange API Metrics
// ============================================================================

var (
	ExchangeAPIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backbone_exchange_api_requests_total",
			Help: "Total number of upstream exchange REST API requests",
		},
		[]string{"endpoint", "status"},
	)

	ExchangeAPIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backbone_exchange_api_request_duration_seconds",
			Help:    "Upstream exchange REST API request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"endpoint"},
	)

	ExchangeRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backbone_exchange_rate_limit_hits_total",
			Help: "Total number of upstream REST responses rejected as rate limited (HTTP 429/418)",
		},
		[]string{"endpoint"},
	)
)

// ============================================================================
// System Metrics (Go runtime metrics are auto-collected by promhttp)
// ============================================================================

var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backbone_app_info",
			Help: "Application information",
		},
		[]string{"version", "go_version"},
	)

	AppStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backbone_app_start_timestamp_seconds",
			Help: "Application start timestamp in seconds",
		},
	)
)
