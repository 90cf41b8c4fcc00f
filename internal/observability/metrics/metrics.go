package metrics

import "github.com/prometheus/client_golang/prometheus"

// BillingMetrics exposes counters/histograms for billing flows.
type BillingMetrics struct {
	invoicesIssued   *prometheus.CounterVec
	paymentsApplied  *prometheus.CounterVec
	importRows       *prometheus.CounterVec
	effectDeliveries *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
}

func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	m := &BillingMetrics{
		invoicesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "invoices_issued_total",
			Help:      "Total invoices issued",
		}, []string{"origin", "status"}),
		paymentsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "payments_applied_total",
			Help:      "Total payments applied",
		}, []string{"method", "status"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "import_rows_total",
			Help:      "Total ledger import rows by disposition",
		}, []string{"disposition"}),
		effectDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "effect_deliveries_total",
			Help:      "Total side-effect deliveries",
		}, []string{"type", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "request_latency_seconds",
			Help:      "Latency of billing API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.invoicesIssued, m.paymentsApplied, m.importRows, m.effectDeliveries, m.requestLatency)
	return m
}

func (m *BillingMetrics) ObserveInvoiceIssued(origin, status string) {
	if m == nil {
		return
	}
	m.invoicesIssued.WithLabelValues(origin, status).Inc()
}

func (m *BillingMetrics) ObservePaymentApplied(method, status string) {
	if m == nil {
		return
	}
	m.paymentsApplied.WithLabelValues(method, status).Inc()
}

func (m *BillingMetrics) ObserveImportRow(disposition string) {
	if m == nil {
		return
	}
	m.importRows.WithLabelValues(disposition).Inc()
}

func (m *BillingMetrics) ObserveEffectDelivery(effectType, status string) {
	if m == nil {
		return
	}
	m.effectDeliveries.WithLabelValues(effectType, status).Inc()
}

func (m *BillingMetrics) ObserveRequestLatency(route string, seconds float64) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(route).Observe(seconds)
}
