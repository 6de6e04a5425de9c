package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for registry operations. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Operation outcomes by operation and result code ("ok" on success)
	Operations *prometheus.CounterVec

	// Latency of each mutating operation including the store transaction
	OperationLatency *prometheus.HistogramVec

	CertificatesMinted  prometheus.Counter
	TransfersCompleted  prometheus.Counter
	AdminChanges        prometheus.Counter
	CertificatesCurrent prometheus.Gauge
}

// New registers the registry metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certreg_registry_operations_total",
			Help: "Total registry operations by operation and result",
		}, []string{"operation", "result"}),

		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certreg_registry_operation_duration_seconds",
			Help:    "Duration of registry mutations including the store transaction",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),

		CertificatesMinted: factory.NewCounter(prometheus.CounterOpts{
			Name: "certreg_certificates_minted_total",
			Help: "Total number of certificates minted by this process",
		}),
		TransfersCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "certreg_certificate_transfers_total",
			Help: "Total number of successful certificate transfers",
		}),
		AdminChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "certreg_admin_changes_total",
			Help: "Total number of administrator changes",
		}),
		CertificatesCurrent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "certreg_certificates",
			Help: "Number of certificates in the registry as of the last mint",
		}),
	}
}

// ObserveOperation records an operation outcome and its latency.
func (m *Metrics) ObserveOperation(op, result string, d time.Duration) {
	if m != nil {
		m.Operations.WithLabelValues(op, result).Inc()
		m.OperationLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}

// IncrementMinted records a committed mint and the resulting supply.
func (m *Metrics) IncrementMinted(total uint64) {
	if m != nil {
		m.CertificatesMinted.Inc()
		m.CertificatesCurrent.Set(float64(total))
	}
}

func (m *Metrics) IncrementTransfers() {
	if m != nil {
		m.TransfersCompleted.Inc()
	}
}

func (m *Metrics) IncrementAdminChanges() {
	if m != nil {
		m.AdminChanges.Inc()
	}
}
