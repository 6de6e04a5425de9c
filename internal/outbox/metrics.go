package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks relay throughput. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Published      prometheus.Counter
	PublishErrors  prometheus.Counter
	Pending        prometheus.Gauge
	BatchDurations prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "certreg_outbox_published_total",
			Help: "Outbox entries published to Kafka",
		}),
		PublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "certreg_outbox_publish_errors_total",
			Help: "Relay batches that failed and were left pending",
		}),
		Pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "certreg_outbox_pending",
			Help: "Unpublished outbox entries at the last relay tick",
		}),
		BatchDurations: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "certreg_outbox_batch_duration_seconds",
			Help:    "Time to claim, publish and mark one relay batch",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeBatch(published int, seconds float64, failed bool) {
	if m == nil {
		return
	}
	m.BatchDurations.Observe(seconds)
	if failed {
		m.PublishErrors.Inc()
		return
	}
	m.Published.Add(float64(published))
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(n))
}
