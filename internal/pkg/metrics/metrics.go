package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the service's Prometheus instruments. Constructed once in
// main and injected into the services; a nil *Metrics disables recording,
// which keeps unit tests free of registry wiring.
type Metrics struct {
	HoldsCreated  prometheus.Counter
	HoldsRejected prometheus.Counter
	HoldsConsumed prometheus.Counter
	HoldsReleased prometheus.Counter
	OrdersCreated prometheus.Counter

	// Webhooks counts notification deliveries by outcome (success/failure)
	// and result (applied/deferred/duplicate/noop).
	Webhooks *prometheus.CounterVec

	RequestDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HoldsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "holds_created_total",
			Help: "Holds successfully created.",
		}),
		HoldsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "holds_rejected_total",
			Help: "Hold attempts rejected for insufficient stock.",
		}),
		HoldsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "holds_consumed_total",
			Help: "Holds consumed into orders.",
		}),
		HoldsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "holds_released_total",
			Help: "Expired holds released back to stock.",
		}),
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders created from holds.",
		}),
		Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Payment notifications by outcome and processing result.",
		}, []string{"outcome", "result"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
	reg.MustRegister(
		m.HoldsCreated, m.HoldsRejected, m.HoldsConsumed, m.HoldsReleased,
		m.OrdersCreated, m.Webhooks, m.RequestDuration,
	)
	return m
}

// The receiver nil check must come before any field read: a nil *Metrics
// is the documented way to disable recording.
func (m *Metrics) IncHoldsCreated() {
	if m == nil || m.HoldsCreated == nil {
		return
	}
	m.HoldsCreated.Inc()
}

func (m *Metrics) IncHoldsRejected() {
	if m == nil || m.HoldsRejected == nil {
		return
	}
	m.HoldsRejected.Inc()
}

func (m *Metrics) IncHoldsConsumed() {
	if m == nil || m.HoldsConsumed == nil {
		return
	}
	m.HoldsConsumed.Inc()
}

func (m *Metrics) IncHoldsReleased() {
	if m == nil || m.HoldsReleased == nil {
		return
	}
	m.HoldsReleased.Inc()
}

func (m *Metrics) IncOrdersCreated() {
	if m == nil || m.OrdersCreated == nil {
		return
	}
	m.OrdersCreated.Inc()
}

func (m *Metrics) IncWebhook(outcome, result string) {
	if m == nil || m.Webhooks == nil {
		return
	}
	m.Webhooks.WithLabelValues(outcome, result).Inc()
}

func (m *Metrics) ObserveRequest(route, status string, seconds float64) {
	if m == nil || m.RequestDuration == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, status).Observe(seconds)
}
