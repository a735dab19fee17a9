package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
)

var allStatuses = []domain.StreamStatus{
	domain.StatusOffline,
	domain.StatusStarting,
	domain.StatusLive,
	domain.StatusStopping,
}

// PrometheusCollector implements ports.StreamObserver on top of Prometheus
// metrics. Per-user status counts are summed into one gauge per status.
type PrometheusCollector struct {
	streams         *prometheus.GaugeVec
	transitions     *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	tickDuration    prometheus.Histogram
	persistFailures prometheus.Counter
	activeSessions  prometheus.Gauge

	mu     sync.Mutex
	counts map[domain.UserID]map[domain.StreamStatus]int
}

// NewPrometheusCollector registers the collector's metrics on reg. A nil reg
// uses the default registerer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &PrometheusCollector{
		streams: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bintunet_streams",
			Help: "Number of stream configurations by lifecycle status",
		}, []string{"status"}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bintunet_stream_transitions_total",
			Help: "Total number of stream status transitions by target status",
		}, []string{"to"}),

		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bintunet_stream_rejections_total",
			Help: "Total number of rejected stream commands by reason",
		}, []string{"reason"}),

		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bintunet_telemetry_tick_duration_seconds",
			Help:    "Duration of one telemetry tick over a user's live streams",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),

		persistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bintunet_persist_failures_total",
			Help: "Total number of stream snapshots that could not be persisted",
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bintunet_active_sessions",
			Help: "Number of signed-in sessions with a loaded engine",
		}),

		counts: make(map[domain.UserID]map[domain.StreamStatus]int),
	}

	for _, s := range allStatuses {
		c.streams.WithLabelValues(string(s)).Set(0)
	}
	return c
}

func (c *PrometheusCollector) ObserveTransition(to domain.StreamStatus) {
	c.transitions.WithLabelValues(string(to)).Inc()
}

func (c *PrometheusCollector) ObserveRejection(reason string) {
	c.rejections.WithLabelValues(reason).Inc()
}

// ObserveStatusCounts replaces one user's contribution. A nil map removes it.
func (c *PrometheusCollector) ObserveStatusCounts(userID domain.UserID, counts map[domain.StreamStatus]int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if counts == nil {
		delete(c.counts, userID)
	} else {
		copied := make(map[domain.StreamStatus]int, len(counts))
		for k, v := range counts {
			copied[k] = v
		}
		c.counts[userID] = copied
	}

	totals := make(map[domain.StreamStatus]int, len(allStatuses))
	for _, perUser := range c.counts {
		for status, n := range perUser {
			totals[status] += n
		}
	}
	for _, s := range allStatuses {
		c.streams.WithLabelValues(string(s)).Set(float64(totals[s]))
	}
}

func (c *PrometheusCollector) ObserveTick(duration time.Duration) {
	c.tickDuration.Observe(duration.Seconds())
}

func (c *PrometheusCollector) ObservePersistFailure() {
	c.persistFailures.Inc()
}

func (c *PrometheusCollector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}

var _ ports.StreamObserver = (*PrometheusCollector)(nil)
