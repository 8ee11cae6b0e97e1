package metrics

import (
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is the build version, injectable via -ldflags.
var Version = "dev"

// Init records process-level metrics that don't change for the life of the run.
func Init() {
	AppInfo.WithLabelValues(Version, runtime.Version()).Set(1)
	AppStartTime.Set(float64(time.Now().Unix()))
}

// Handler exposes the Prometheus registry over HTTP.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(
		prometheus.DefaultGatherer,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	)
	
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
