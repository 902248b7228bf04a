package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

// StatsSource provides the statistics summarised by MetricsAggregator
type StatsSource interface {
	Stats() types.ResumptionStats
}

// AppStatsSource provides registry statistics
type AppStatsSource interface {
	Stats() types.Stats
}

// MetricsAggregator serves Prometheus metrics and a JSON summary
type MetricsAggregator struct {
	metrics  *monitoring.Metrics
	gatherer prometheus.Gatherer
	apps     AppStatsSource
	ctrl     StatsSource
}

// NewMetricsAggregator creates a metrics aggregator
func NewMetricsAggregator(metrics *monitoring.Metrics, gatherer prometheus.Gatherer, apps AppStatsSource, ctrl StatsSource) *MetricsAggregator {
	return &MetricsAggregator{
		metrics:  metrics,
		gatherer: gatherer,
		apps:     apps,
		ctrl:     ctrl,
	}
}

// MetricsSnapshot is the JSON summary of the service
type MetricsSnapshot struct {
	Timestamp     time.Time                  `json:"timestamp"`
	UptimeSeconds float64                    `json:"uptime_seconds"`
	Counters      monitoring.MetricsSnapshot `json:"counters"`
	Apps          types.Stats                `json:"apps"`
	Resumption    types.ResumptionStats      `json:"resumption"`
}

// Register mounts the metrics routes on router
func (ma *MetricsAggregator) Register(router gin.IRouter) {
	router.GET("/metrics", ma.Prometheus())
	router.GET("/metrics/json", ma.GetAggregatedMetrics)
}

// Prometheus returns the exposition handler for the gatherer
func (ma *MetricsAggregator) Prometheus() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(ma.gatherer, promhttp.HandlerOpts{}))
}

// GetAggregatedMetrics returns the JSON summary
func (ma *MetricsAggregator) GetAggregatedMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, MetricsSnapshot{
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: ma.metrics.Uptime().Seconds(),
		Counters:      ma.metrics.Snapshot(),
		Apps:          ma.apps.Stats(),
		Resumption:    ma.ctrl.Stats(),
	})
}
