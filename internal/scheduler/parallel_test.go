package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/fentz26/recsync/internal/codec"
	"github.com/fentz26/recsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Jobs on different courses are sent in parallel up to the operation limit.
func TestOperationLimitBoundsParallelism(t *testing.T) {
	s := newTestStore(t)
	var jobs []*models.Job
	for _, c := range createCourses(t, s, 6) {
		jobs = append(jobs, submitActiveDates(t, s, c))
	}

	client := newRecordingClient()
	client.delay = 50 * time.Millisecond
	cfg := testConfig()
	cfg.GlobalMax = 10
	cfg.ByOperation[codec.OpUpdateCourseActiveDates] = 2
	sch := New(s, nil, client, cfg, nil, nil)
	require.NoError(t, sch.RunOnce(context.Background()))

	assert.LessOrEqual(t, client.maxActive, 2)
	assert.Len(t, client.sent(), 6)
	for _, j := range jobs {
		assert.Equal(t, models.JobStatusCompleted, jobStatus(t, s, j.ID).Status)
	}
}

func TestGlobalMaxBoundsParallelism(t *testing.T) {
	s := newTestStore(t)
	for _, c := range createCourses(t, s, 8) {
		submitActiveDates(t, s, c)
	}

	client := newRecordingClient()
	client.delay = 50 * time.Millisecond
	cfg := testConfig()
	cfg.GlobalMax = 3
	cfg.ByOperation[codec.OpUpdateCourseActiveDates] = 10
	sch := New(s, nil, client, cfg, nil, nil)

	sch.Start()
	defer sch.Stop()

	require.Eventually(t, func() bool { return len(client.sent()) == 8 }, 10*time.Second, 20*time.Millisecond)
	assert.LessOrEqual(t, client.maxActive, 3)
	assert.Greater(t, client.maxActive, 1)

	stats := sch.GetStats()
	assert.Equal(t, 3, stats["global_max"])
	assert.Equal(t, "local", stats["client"])
}
