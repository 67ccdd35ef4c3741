package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/fentz26/recsync/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoItem struct {
	N int `json:"n"`
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, Token: "test-token"}, nil, nil)
	require.NoError(t, err)
	return c
}

func TestSingleSendsBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/create_course", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		var req codec.CreateCourseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(1), req.SequenceNumber)
		_ = json.NewEncoder(w).Encode(codec.CreateCourseResponse{CreatedCourseUUID: req.CourseUUID})
	})

	var resp codec.CreateCourseResponse
	err := c.Single(context.Background(), codec.OpCreateCourse, codec.CreateCourseRequest{CourseUUID: "c-1", SequenceNumber: 1}, &resp)
	require.NoError(t, err)
	assert.Equal(t, "c-1", resp.CreatedCourseUUID)
}

func TestBulkChunksAndPreservesOrder(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body map[string][]echoItem
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.LessOrEqual(t, len(body["items"]), 3)
		_ = json.NewEncoder(w).Encode(map[string][]echoItem{"results": body["items"]})
	})

	for _, n := range []int{0, 1, 3, 7, 9} {
		calls.Store(0)
		var in []echoItem
		for i := 0; i < n; i++ {
			in = append(in, echoItem{N: i})
		}
		out, err := Bulk[echoItem, echoItem](context.Background(), c, "op", "items", "results", 3, in)
		require.NoError(t, err)
		assert.Equal(t, int32((n+2)/3), calls.Load(), "calls for %d items", n)
		require.Len(t, out, n)
		for i, item := range out {
			assert.Equal(t, i, item.N)
		}
	}
}

func TestBulkLengthMismatchIsProtocolError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"recorded_response_uuids":["a"]}`))
	})
	_, err := BulkOp[codec.ResponseRequest, string](context.Background(), c, codec.OpRecordResponses,
		[]codec.ResponseRequest{{ResponseUUID: "a"}, {ResponseUUID: "b"}})

	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, codec.OpRecordResponses, perr.Operation)
	assert.False(t, IsRetryable(err))
}

func TestBulkUsesPerOperationBatch(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body struct {
			Rosters []codec.RosterRequest `json:"rosters"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		out := make([]codec.RosterResponse, len(body.Rosters))
		_ = json.NewEncoder(w).Encode(map[string]any{"updated_rosters": out})
	})
	assert.Equal(t, 100, c.MaxBatch(codec.OpUpdateRosters))
	assert.Equal(t, codec.DefaultMaxBatch, c.MaxBatch(codec.OpRecordResponses))

	_, err := BulkOp[codec.RosterRequest, codec.RosterResponse](context.Background(), c, codec.OpUpdateRosters,
		make([]codec.RosterRequest, 250))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTransportErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{"unavailable", http.StatusServiceUnavailable, `{}`, true},
		{"unprocessable", http.StatusUnprocessableEntity, `{"errors":[]}`, false},
		{"malformed", http.StatusOK, `not json`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			err := c.Single(context.Background(), "op", struct{}{}, &struct{}{})
			var terr *TransportError
			require.True(t, errors.As(err, &terr))
			assert.Equal(t, tc.status, terr.StatusCode)
			assert.Equal(t, tc.retryable, IsRetryable(err))
		})
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{BaseURL: "http://localhost"}, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{Token: "t"}, nil, nil)
	assert.Error(t, err)
}
