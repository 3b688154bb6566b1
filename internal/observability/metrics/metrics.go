package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking flow.
type BookingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	sagaDuration       prometheus.Histogram
	compensationsTotal *prometheus.CounterVec
	providerCallsTotal *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Total booking attempts by outcome",
		}, []string{"status"}),
		sagaDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "physio",
			Subsystem: "booking",
			Name:      "saga_seconds",
			Help:      "End-to-end duration of the booking saga",
			Buckets:   prometheus.DefBuckets,
		}),
		compensationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "booking",
			Name:      "compensations_total",
			Help:      "Calendar event rollbacks after a store failure",
		}, []string{"outcome"}),
		providerCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "booking",
			Name:      "provider_calls_total",
			Help:      "Outbound calls to scheduling providers",
		}, []string{"provider", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.sagaDuration, m.compensationsTotal, m.providerCallsTotal)
	return m
}

func (m *BookingMetrics) ObserveBooking(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveSagaDuration(seconds float64) {
	if m == nil {
		return
	}
	m.sagaDuration.Observe(seconds)
}

func (m *BookingMetrics) ObserveCompensation(outcome string) {
	if m == nil {
		return
	}
	m.compensationsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveProviderCall(provider, outcome string) {
	if m == nil {
		return
	}
	m.providerCallsTotal.WithLabelValues(provider, outcome).Inc()
}
