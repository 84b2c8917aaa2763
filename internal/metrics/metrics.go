package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters of the transaction engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	SalesCommitted    *prometheus.CounterVec
	SalesRejected     *prometheus.CounterVec
	CommitLatencyMS   prometheus.Histogram
	PaymentsInitiated *prometheus.CounterVec
	Callbacks         *prometheus.CounterVec
	PaymentsExpired   prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SalesCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: "sales",
			Name:      "committed_total",
			Help:      "Sales committed, by payment method.",
		}, []string{"method"}),
		SalesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: "sales",
			Name:      "rejected_total",
			Help:      "Sale commits refused, by error kind.",
		}, []string{"kind"}),
		CommitLatencyMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pos",
			Subsystem: "sales",
			Name:      "commit_duration_ms",
			Help:      "Duration of the sale unit of work in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
		PaymentsInitiated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: "payments",
			Name:      "initiated_total",
			Help:      "Gateway payment initiations, by result.",
		}, []string{"result"}),
		Callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: "payments",
			Name:      "callbacks_total",
			Help:      "Gateway callbacks, by reconciliation outcome.",
		}, []string{"outcome"}),
		PaymentsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: "payments",
			Name:      "expired_total",
			Help:      "Pending payments expired by the sweep.",
		}),
	}
	reg.MustRegister(m.SalesCommitted, m.SalesRejected, m.CommitLatencyMS, m.PaymentsInitiated, m.Callbacks, m.PaymentsExpired)
	return m
}

func (m *Metrics) SaleCommitted(method string, started time.Time) {
	if m == nil {
		return
	}
	m.SalesCommitted.WithLabelValues(method).Inc()
	m.CommitLatencyMS.Observe(float64(time.Since(started).Milliseconds()))
}

func (m *Metrics) SaleRejected(kind string) {
	if m == nil {
		return
	}
	m.SalesRejected.WithLabelValues(kind).Inc()
}

func (m *Metrics) PaymentInitiated(result string) {
	if m == nil {
		return
	}
	m.PaymentsInitiated.WithLabelValues(result).Inc()
}

func (m *Metrics) Callback(outcome string) {
	if m == nil {
		return
	}
	m.Callbacks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Expired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PaymentsExpired.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
