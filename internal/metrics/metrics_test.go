package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestOrderMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)

	m.RecordOrderCreated(3159)
	m.RecordOrderCreated(1000)
	m.RecordOrderCancelled()
	m.RecordTransition("pending", "confirmed")
	m.RecordStockRejected()

	if got := counterValue(t, m.ordersCreated); got != 2 {
		t.Errorf("expected created 2, got %f", got)
	}
	if got := counterValue(t, m.ordersCancelled); got != 1 {
		t.Errorf("expected cancelled 1, got %f", got)
	}
	if got := counterValue(t, m.transitions.WithLabelValues("pending", "confirmed")); got != 1 {
		t.Errorf("expected one transition, got %f", got)
	}
	if got := counterValue(t, m.stockRejected); got != 1 {
		t.Errorf("expected one rejection, got %f", got)
	}

	histogram := &dto.Metric{}
	if err := m.orderValue.Write(histogram); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}
	if histogram.Histogram.GetSampleCount() != 2 {
		t.Errorf("expected 2 samples, got %d", histogram.Histogram.GetSampleCount())
	}
	if histogram.Histogram.GetSampleSum() != 4159 {
		t.Errorf("expected sum 4159, got %f", histogram.Histogram.GetSampleSum())
	}
}

func TestOrderMetrics_ReRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewOrderMetrics(reg)
	second := NewOrderMetrics(reg)

	first.RecordOrderCancelled()
	second.RecordOrderCancelled()

	if got := counterValue(t, first.ordersCancelled); got != 2 {
		t.Errorf("expected shared counter value 2, got %f", got)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var orders *OrderMetrics
	orders.RecordOrderCreated(100)
	orders.RecordTransition("a", "b")

	var http *HTTPMetrics
	http.RequestStarted()
	http.RequestFinished("GET", "/", 200, time.Millisecond)
}

func TestHTTPMetrics_RequestFinished(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.RequestStarted()
	m.RequestFinished("GET", "/api/v1/products/{id}", 404, 5*time.Millisecond)

	if got := counterValue(t, m.requests.WithLabelValues("GET", "/api/v1/products/{id}", "404")); got != 1 {
		t.Errorf("expected one request, got %f", got)
	}

	gauge := &dto.Metric{}
	if err := m.inFlight.Write(gauge); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gauge.Gauge.GetValue() != 0 {
		t.Errorf("expected no in-flight requests, got %f", gauge.Gauge.GetValue())
	}
}
