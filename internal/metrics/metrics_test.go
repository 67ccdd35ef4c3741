package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	assert.NotNil(t, collector.sequenceClaims, "sequenceClaims counter should be initialized")
	assert.NotNil(t, collector.jobsSubmitted, "jobsSubmitted counter should be initialized")
	assert.NotNil(t, collector.jobLatency, "jobLatency histogram should be initialized")
	assert.NotNil(t, collector.httpRequests, "httpRequests counter should be initialized")
	assert.NotNil(t, collector.fallbacks, "fallbacks counter should be initialized")
}

func TestCounters(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.RecordClaim("course")
	collector.RecordClaim("course")
	collector.RecordSubmitted("create_course")
	collector.RecordCompleted("create_course", 0.2)
	collector.RecordFailed("update_rosters", 1)
	collector.RecordRetry("update_rosters")
	collector.RecordHTTP("create_course", "200", 0.01)
	collector.RecordFallback("fetch_assignment_pes", "unready")
	collector.RecordShortfall("fetch_assignment_pes")
	collector.SetInFlight(3)

	body := scrape(t, collector)
	assert.Contains(t, body, `recsync_sequence_claims_total{entity="course"} 2`)
	assert.Contains(t, body, `recsync_jobs_completed_total{operation="create_course"} 1`)
	assert.Contains(t, body, `recsync_fetch_fallbacks_total{operation="fetch_assignment_pes",reason="unready"} 1`)
	assert.Contains(t, body, "recsync_jobs_in_flight 3")
}

func TestNilCollectorIsSafe(t *testing.T) {
	var collector *Collector
	assert.NotPanics(t, func() {
		collector.RecordClaim("course")
		collector.RecordHTTP("op", "500", 1)
		collector.SetInFlight(1)
	})
}

func TestHandler(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())
	collector.RecordSubmitted("create_course")

	assert.True(t, strings.Contains(scrape(t, collector), "recsync_jobs_submitted_total"))
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
