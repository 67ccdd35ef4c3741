// Package transport sends JSON requests to the recommendation service, one
// endpoint per operation, and splits bulk requests into bounded chunks.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/recsync/internal/codec"
	"github.com/fentz26/recsync/internal/logger"
	"github.com/fentz26/recsync/internal/metrics"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// maxErrorBody caps how much of a failed response is kept in errors.
const maxErrorBody = 2048

// Config configures a Client.
type Config struct {
	BaseURL string
	// Token is a static bearer token, used when no client credentials are set.
	Token        string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
	// MaxBatch overrides the chunk size per bulk operation.
	MaxBatch map[string]int
}

// Client talks to the recommendation service. It never retries; callers own
// the retry policy.
type Client struct {
	baseURL  string
	http     *http.Client
	maxBatch map[string]int
	log      *logger.Logger
	metrics  *metrics.Collector
}

// New creates a Client. Every request carries a bearer token from the
// client-credentials grant, or the static token.
func New(cfg Config, log *logger.Logger, m *metrics.Collector) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("transport: base URL required")
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var ts oauth2.TokenSource
	switch {
	case cfg.ClientID != "":
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		ts = cc.TokenSource(context.Background())
	case cfg.Token != "":
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
	default:
		return nil, errors.New("transport: a token or client credentials are required")
	}

	maxBatch := make(map[string]int, len(codec.MaxBatch)+len(cfg.MaxBatch))
	for op, n := range codec.MaxBatch {
		maxBatch[op] = n
	}
	for op, n := range cfg.MaxBatch {
		maxBatch[op] = n
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
		},
		maxBatch: maxBatch,
		log:      log.With("component", "transport"),
		metrics:  m,
	}, nil
}

// MaxBatch returns the chunk size for a bulk operation.
func (c *Client) MaxBatch(op string) int {
	if n, ok := c.maxBatch[op]; ok && n > 0 {
		return n
	}
	return codec.DefaultMaxBatch
}

// Single posts request to the operation's endpoint and decodes the response
// into out.
func (c *Client) Single(ctx context.Context, op string, request, out any) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	raw, err := c.post(ctx, op, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Operation: op, StatusCode: http.StatusOK, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// Bulk sends requests in chunks of at most maxBatch, one call per chunk, in
// order. Each chunk is wrapped under requestsKey and its response array is
// read from responsesKey; the arrays are concatenated in input order.
func Bulk[Req, Resp any](ctx context.Context, c *Client, op, requestsKey, responsesKey string, maxBatch int, requests []Req) ([]Resp, error) {
	if maxBatch <= 0 {
		maxBatch = codec.DefaultMaxBatch
	}
	out := make([]Resp, 0, len(requests))
	for start := 0; start < len(requests); start += maxBatch {
		end := min(start+maxBatch, len(requests))
		chunk := requests[start:end]

		body, err := json.Marshal(map[string][]Req{requestsKey: chunk})
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		raw, err := c.post(ctx, op, body)
		if err != nil {
			return nil, err
		}

		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, &TransportError{Operation: op, StatusCode: http.StatusOK, Err: fmt.Errorf("decode response: %w", err)}
		}
		items, ok := envelope[responsesKey]
		if !ok {
			return nil, &ProtocolError{Operation: op, Reason: fmt.Sprintf("response has no %q array", responsesKey)}
		}
		var got []Resp
		if err := json.Unmarshal(items, &got); err != nil {
			return nil, &TransportError{Operation: op, StatusCode: http.StatusOK, Err: fmt.Errorf("decode %s: %w", responsesKey, err)}
		}
		if len(got) != len(chunk) {
			return nil, &ProtocolError{
				Operation: op,
				Reason:    fmt.Sprintf("sent %d requests, got %d responses", len(chunk), len(got)),
			}
		}
		out = append(out, got...)
	}
	return out, nil
}

// BulkOp is Bulk with the operation's registered keys and chunk size.
func BulkOp[Req, Resp any](ctx context.Context, c *Client, op string, requests []Req) ([]Resp, error) {
	keys, ok := codec.Bulk[op]
	if !ok {
		return nil, fmt.Errorf("%s is not a bulk operation", op)
	}
	return Bulk[Req, Resp](ctx, c, op, keys.Requests, keys.Responses, c.MaxBatch(op), requests)
}

func (c *Client) post(ctx context.Context, op string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+op, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordHTTP(op, "error", time.Since(start).Seconds())
		c.log.Warn("request failed", "operation", op, "error", err)
		return nil, &TransportError{Operation: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	c.metrics.RecordHTTP(op, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return nil, &TransportError{Operation: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		c.log.Warn("request rejected", "operation", op, "status", resp.StatusCode)
		return nil, &TransportError{Operation: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	c.log.Debug("request sent", "operation", op, "status", resp.StatusCode, "bytes", len(body))
	return raw, nil
}
