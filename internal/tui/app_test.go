package tui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/recsync/internal/controlplane"
	"github.com/fentz26/recsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	jobs := []*models.Job{
		{ID: "job-aaaaaaaaaa", Operation: "create_course", Status: models.JobStatusCompleted, CreatedAt: now},
		{ID: "job-bbbbbbbbbb", Operation: "update_rosters", Status: models.JobStatusSubmitted, Attempt: 2, NextAttemptAt: now, CreatedAt: now},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		var out []*models.Job
		for _, j := range jobs {
			if status == "" || string(j.Status) == status {
				out = append(out, j)
			}
		}
		json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/jobs/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/jobs/")
		for _, j := range jobs {
			if j.ID == id {
				json.NewEncoder(w).Encode(map[string]any{
					"id": j.ID, "operation": j.Operation, "status": j.Status,
					"response": map[string]bool{"created": true},
					"history":  []models.PDREntry{{Action: "job.submit", Outcome: "success", Timestamp: now}},
				})
				return
			}
		}
		http.Error(w, "job not found", http.StatusNotFound)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(controlplane.HealthResponse{OK: true, DB: "ok", Client: "local"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientListJobs(t *testing.T) {
	c := NewClient(newTestAPI(t).URL)

	jobs, err := c.ListJobs("")
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = c.ListJobs("submitted")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "update_rosters", jobs[0].Title())
	assert.Contains(t, jobs[0].Description(), "attempt 3")
}

func TestClientGetJob(t *testing.T) {
	c := NewClient(newTestAPI(t).URL)

	d, err := c.GetJob("job-aaaaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, d.Status)
	assert.JSONEq(t, `{"created":true}`, string(d.Response))
	require.Len(t, d.History, 1)

	_, err = c.GetJob("missing")
	assert.Error(t, err)
}

func TestAppShowsJobsAndDetail(t *testing.T) {
	a := New(newTestAPI(t).URL)
	a.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	msg := a.jobs.Refresh()()
	a.Update(msg)
	a.Update(a.checkHealth()())
	view := a.View()
	assert.Contains(t, view, "create_course")
	assert.Contains(t, view, "local")

	_, cmd := a.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, modeDetail, a.mode)
	a.Update(cmd())
	require.NotNil(t, a.detail)
	assert.Contains(t, a.View(), "job.submit")

	a.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, modeList, a.mode)
}

func TestAppReportsErrors(t *testing.T) {
	a := New("http://127.0.0.1:1")

	a.Update(a.jobs.Refresh()())
	assert.Contains(t, a.View(), "Error:")
	assert.Contains(t, a.View(), "daemon offline")
}
