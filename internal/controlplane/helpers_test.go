package controlplane

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/recsync/internal/audit"
	"github.com/fentz26/recsync/internal/codec"
	"github.com/fentz26/recsync/internal/config"
	"github.com/fentz26/recsync/internal/connectors/local"
	"github.com/fentz26/recsync/internal/logger"
	"github.com/fentz26/recsync/internal/scheduler"
	"github.com/fentz26/recsync/internal/seed"
	"github.com/fentz26/recsync/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeClient answers from local data unless a hook replaces an operation.
type fakeClient struct {
	*local.Client

	mu           sync.Mutex
	pes          func(req codec.FetchExercisesRequest) codec.FetchExercisesResponse
	worstAreas   func(req codec.WorstAreasRequest) codec.WorstAreasResponse
	studentClues func(req codec.StudentClueRequest) codec.ClueResponse
	// dropLastClue makes FetchStudentClues answer one request short.
	dropLastClue bool
	calls        map[string]int
}

func (c *fakeClient) count(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[op]++
}

func (c *fakeClient) callCount(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *fakeClient) FetchAssignmentPEs(ctx context.Context, reqs []codec.FetchExercisesRequest) ([]codec.FetchExercisesResponse, error) {
	c.count(codec.OpFetchAssignmentPEs)
	if c.pes == nil {
		return c.Client.FetchAssignmentPEs(ctx, reqs)
	}
	out := make([]codec.FetchExercisesResponse, len(reqs))
	for i, r := range reqs {
		out[i] = c.pes(r)
	}
	return out, nil
}

func (c *fakeClient) FetchPracticeWorstAreasExercises(ctx context.Context, reqs []codec.WorstAreasRequest) ([]codec.WorstAreasResponse, error) {
	c.count(codec.OpFetchPracticeWorstAreasExercises)
	if c.worstAreas == nil {
		return c.Client.FetchPracticeWorstAreasExercises(ctx, reqs)
	}
	out := make([]codec.WorstAreasResponse, len(reqs))
	for i, r := range reqs {
		out[i] = c.worstAreas(r)
	}
	return out, nil
}

func (c *fakeClient) FetchStudentClues(ctx context.Context, reqs []codec.StudentClueRequest) ([]codec.ClueResponse, error) {
	c.count(codec.OpFetchStudentClues)
	var out []codec.ClueResponse
	if c.studentClues == nil {
		var err error
		if out, err = c.Client.FetchStudentClues(ctx, reqs); err != nil {
			return nil, err
		}
	} else {
		out = make([]codec.ClueResponse, len(reqs))
		for i, r := range reqs {
			out[i] = c.studentClues(r)
		}
	}
	if c.dropLastClue && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

type harness struct {
	store   *store.Store
	client  *fakeClient
	service *Service
	sched   *scheduler.Scheduler
	logs    *observer.ObservedLogs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = seed.LoadSample(ctx, s)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	log := logger.NewWithCore(core)

	pdr := audit.NewPDRWriter(s)
	client := &fakeClient{Client: local.New(s, nil, nil)}
	svc := NewService(s, pdr, client, Options{
		Fetch: config.FetchConfig{InlineMaxAttempts: 3},
	}, log, nil)
	sched := scheduler.New(s, pdr, client, &scheduler.Config{
		GlobalMax:      4,
		PollInterval:   10 * time.Millisecond,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	}, nil, nil)

	return &harness{store: s, client: client, service: svc, sched: sched, logs: logs}
}

func (h *harness) warnings(msg string) int {
	return h.logs.FilterLevelExact(zapcore.WarnLevel).FilterMessage(msg).Len()
}

func intPtr(n int) *int { return &n }
