package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fentz26/recsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*harness, *Server) {
	t.Helper()
	h := newHarness(t)
	srv := NewServer(h.service, "127.0.0.1:0", h.sched.GetStats,
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("# metrics\n")) }), nil)
	return h, srv
}

func get(t *testing.T, srv *Server, method, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w.Result()
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestServer(t)

	resp := get(t, srv, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.True(t, health.OK)
	assert.Equal(t, "ok", health.DB)
	assert.Equal(t, "local", health.Client)
	assert.NotEmpty(t, health.Version)
	assert.NotEmpty(t, health.Time)
	assert.EqualValues(t, 4, health.Scheduler["global_max"])
}

func TestHealthEndpointMethodNotAllowed(t *testing.T) {
	_, srv := newTestServer(t)

	resp := get(t, srv, http.MethodPost, "/health")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthEndpointDatabaseClosed(t *testing.T) {
	h, srv := newTestServer(t)
	require.NoError(t, h.store.Close())

	resp := get(t, srv, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.False(t, health.OK)
	assert.NotEqual(t, "ok", health.DB)
}

func TestJobsEndpoint(t *testing.T) {
	h, srv := newTestServer(t)
	ctx := context.Background()

	_, err := h.service.CreateCourse(ctx, "course-1")
	require.NoError(t, err)
	_, err = h.service.CreateEcosystem(ctx, "eco-1")
	require.NoError(t, err)

	resp := get(t, srv, http.MethodGet, "/jobs")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var jobs []*models.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	assert.Len(t, jobs, 2)

	resp = get(t, srv, http.MethodGet, "/jobs?status=completed")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	jobs = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	assert.Empty(t, jobs)

	resp = get(t, srv, http.MethodGet, "/jobs?limit=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	jobs = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	assert.Len(t, jobs, 1)
}

func TestJobsEndpointRejectsBadQueries(t *testing.T) {
	_, srv := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, get(t, srv, http.MethodGet, "/jobs?status=lost").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, srv, http.MethodGet, "/jobs?limit=-1").StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, get(t, srv, http.MethodDelete, "/jobs").StatusCode)
}

func TestJobByIDEndpoint(t *testing.T) {
	h, srv := newTestServer(t)
	ctx := context.Background()

	job, err := h.service.CreateCourse(ctx, "course-1")
	require.NoError(t, err)
	require.NoError(t, h.sched.RunOnce(ctx))

	resp := get(t, srv, http.MethodGet, "/jobs/"+job.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail struct {
		ID       string            `json:"id"`
		Status   models.JobStatus  `json:"status"`
		Response json.RawMessage   `json:"response"`
		History  []models.PDREntry `json:"history"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	assert.Equal(t, job.ID, detail.ID)
	assert.Equal(t, models.JobStatusCompleted, detail.Status)
	assert.NotEmpty(t, detail.Response)
	assert.Len(t, detail.History, 3)
}

func TestJobByIDEndpointNotFound(t *testing.T) {
	_, srv := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, get(t, srv, http.MethodGet, "/jobs/no-such-job").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, srv, http.MethodGet, "/jobs/").StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := newTestServer(t)

	resp := get(t, srv, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
