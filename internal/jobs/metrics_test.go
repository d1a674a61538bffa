package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
)

func scrape(reg *prometheus.Registry) string {
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	assert.NoError(t, m.Track("permissions:integrity_scan").End(nil))
	failure := errors.New("boom")
	assert.ErrorIs(t, m.Track("permissions:integrity_scan").End(failure), failure)

	body := scrape(reg)
	assert.Contains(t, body, `leads_jobs_total{job="permissions:integrity_scan",status="success"} 1`)
	assert.Contains(t, body, `leads_jobs_total{job="permissions:integrity_scan",status="failure"} 1`)
	assert.Contains(t, body, `leads_jobs_failures_total{job="permissions:integrity_scan"} 1`)
}

func TestSetDanglingProfiles(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SetDanglingProfiles(3)
	assert.Contains(t, scrape(reg), "leads_dangling_role_profiles 3")
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.SetDanglingProfiles(1)
	assert.NoError(t, m.Track("x").End(nil))
}
