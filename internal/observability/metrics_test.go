package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsRegistered(t *testing.T) {
	StageDuration.WithLabelValues("embed").Observe(0.1)
	TurnsTotal.WithLabelValues("typed", OutcomeOK).Inc()
	ImagesIndexedTotal.Add(0)
	ImagesSkippedTotal.Add(0)
	HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "2xx").Add(0)
	HTTPRequestDuration.WithLabelValues("GET", "/healthz").Observe(0)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	expected := map[string]bool{
		"findit_stage_duration_seconds":        false,
		"findit_turns_total":                   false,
		"findit_images_indexed_total":          false,
		"findit_images_skipped_total":          false,
		"findit_http_requests_total":           false,
		"findit_http_request_duration_seconds": false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

func TestStageRecordsDuration(t *testing.T) {
	before := histogramCount(t, StageDuration, "caption")

	_, stage := StartStage(context.Background(), "caption")
	stage.End(errors.New("boom"))

	if after := histogramCount(t, StageDuration, "caption"); after-before != 1 {
		t.Errorf("expected one observation, got delta=%d", after-before)
	}
}

func TestMiddlewareCapturesStatusCode(t *testing.T) {
	before := counterValue(t, HTTPRequestsTotal, "POST", "/v1/search", "4xx")

	handler := MetricsMiddleware("/v1/search", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1/search", nil))

	after := counterValue(t, HTTPRequestsTotal, "POST", "/v1/search", "4xx")
	if after-before != 1 {
		t.Errorf("expected 4xx count to increase by 1, got delta=%f", after-before)
	}
}

func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter metric: %v", err)
	}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs, err := hv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting histogram metric: %v", err)
	}
	if err := obs.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing histogram metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}
