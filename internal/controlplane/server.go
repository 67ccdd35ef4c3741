package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/recsync/internal/logger"
	"github.com/fentz26/recsync/internal/models"
)

// Version is reported by /health. It is set at build time.
var Version = "dev"

// StatsFunc reports dispatcher statistics for /health.
type StatsFunc func() map[string]interface{}

// Server provides the daemon's status API.
type Server struct {
	service *Service
	addr    string
	stats   StatsFunc
	metrics http.Handler
	log     *logger.Logger
	server  *http.Server
}

// NewServer creates a new HTTP server. stats and metrics may be nil.
func NewServer(service *Service, addr string, stats StatsFunc, metrics http.Handler, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		service: service,
		addr:    addr,
		stats:   stats,
		metrics: metrics,
		log:     log.With("component", "server"),
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Job endpoints
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/jobs/", s.handleJobByID)

	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	// Health check
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("starting status server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	OK        bool                   `json:"ok"`
	DB        string                 `json:"db"`
	Client    string                 `json:"client"`
	Version   string                 `json:"version"`
	Time      string                 `json:"time"`
	Scheduler map[string]interface{} `json:"scheduler,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := HealthResponse{
		OK:      true,
		DB:      "ok",
		Client:  s.service.Client().Name(),
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if s.stats != nil {
		health.Scheduler = s.stats()
	}

	status := http.StatusOK
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.service.Ping(ctx); err != nil {
		health.OK = false
		health.DB = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// handleJobs handles GET /jobs?status=&limit=
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := r.URL.Query().Get("status")
	switch models.JobStatus(status) {
	case "", models.JobStatusSubmitted, models.JobStatusPending, models.JobStatusCompleted, models.JobStatusFailed:
	default:
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	jobs, err := s.service.ListJobs(r.Context(), status, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

type jobDetail struct {
	*models.Job
	Response json.RawMessage   `json:"response,omitempty"`
	History  []models.PDREntry `json:"history"`
}

// handleJobByID handles GET /jobs/{id}
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/jobs/"), "/")
	if id == "" {
		http.Error(w, "job id required", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	job, err := s.service.GetJob(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	history, err := s.service.JobHistory(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []models.PDREntry{}
	}

	detail := jobDetail{Job: job, History: history}
	if json.Valid(job.Response) {
		detail.Response = job.Response
	}
	writeJSON(w, http.StatusOK, detail)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
