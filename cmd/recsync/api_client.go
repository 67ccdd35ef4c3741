package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fentz26/recsync/internal/controlplane"
)

// DefaultClientTimeout is the default timeout for status API requests.
const DefaultClientTimeout = 10 * time.Second

var apiClient = &http.Client{
	Timeout: DefaultClientTimeout,
}

// apiGet performs a GET request to the status API.
func apiGet(path string) ([]byte, error) {
	resp, err := apiClient.Get(apiAddr + path)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// checkHealth returns the parsed health payload even on non-200 responses so
// callers can show why the daemon is unhealthy.
func checkHealth() (*controlplane.HealthResponse, error) {
	resp, err := apiClient.Get(apiAddr + "/health")
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var health controlplane.HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &health, fmt.Errorf("health check failed (status %d)", resp.StatusCode)
	}
	return &health, nil
}
