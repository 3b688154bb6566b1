package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveBooking("confirmed")
	m.ObserveSagaDuration(0.25)
	m.ObserveCompensation("success")
	m.ObserveProviderCall("zoom", "error")
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("confirmed")
	m.ObserveSagaDuration(0.1)
	m.ObserveCompensation("failure")
	m.ObserveProviderCall("gcal", "ok")
}
