package metrics

import "time"

// WSMetricsRecorder tracks connection lifecycle metrics for one WebSocket role.
type WSMetricsRecorder struct {
	Type string // "upstream_spot", "upstream_futures"
}

func NewWSMetricsRecorder(wsType string) *WSMetricsRecorder {
	return &WSMetricsRecorder{Type: wsType}
}

func (r *WSMetricsRecorder) RecordConnection(success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	WSConnectionsTotal.WithLabelValues(r.Type, status).Inc()

	if success {
		WSActiveConnections.WithLabelValues(r.Type).Inc()
	}
}

func (r *WSMetricsRecorder) RecordDisconnect(reason string) {
	WSDisconnectsTotal.WithLabelValues(r.Type, reason).Inc()
	WSActiveConnections.WithLabelValues(r.Type).Dec()
}

func (r *WSMetricsRecorder) RecordReconnect() {
	WSReconnectsTotal.WithLabelValues(r.Type).Inc()
}

func (r *WSMetricsRecorder) RecordMessage(stream string) {
	WSMessagesTotal.WithLabelValues(stream).Inc()
}

// RecordEviction records a client session destroyed for a full send buffer.
func RecordEviction(reason string) {
	WSClientsEvictedTotal.WithLabelValues(reason).Inc()
}

// RecordMarketDataLag records ingest-to-now lag for a symbol's last event.
// eventTime is epoch millis. Readings outside [0, 60s) are dropped as noise
// (clock skew or a stale snapshot), matching the bound the gauge is scraped at.
func RecordMarketDataLag(symbol string, eventTime int64) {
	lag := float64(time.Now().UnixMilli()-eventTime) / 1000.0
	if lag >= 0 && lag < 60 {
		MarketDataLag.WithLabelValues(symbol).Set(lag)
	}
}

func SetSubscribedSymbols(count int) {
	SubscribedSymbols.Set(float64(count))
}
