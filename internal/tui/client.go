package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fentz26/recsync/internal/controlplane"
	"github.com/fentz26/recsync/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the daemon's status API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

func (c *Client) get(path string, out any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListJobs fetches jobs, optionally filtered by status.
func (c *Client) ListJobs(status string) ([]JobItem, error) {
	path := "/jobs"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var jobs []*models.Job
	if err := c.get(path, &jobs); err != nil {
		return nil, err
	}
	items := make([]JobItem, len(jobs))
	for i, j := range jobs {
		items[i] = JobItem{Job: j}
	}
	return items, nil
}

// JobDetail is a job with its response and decision history.
type JobDetail struct {
	models.Job
	Response json.RawMessage   `json:"response"`
	History  []models.PDREntry `json:"history"`
}

// GetJob fetches a single job.
func (c *Client) GetJob(id string) (*JobDetail, error) {
	var d JobDetail
	if err := c.get("/jobs/"+url.PathEscape(id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Health fetches the daemon's health. A 503 still returns the payload.
func (c *Client) Health() (*controlplane.HealthResponse, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var h controlplane.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, err
	}
	return &h, nil
}
