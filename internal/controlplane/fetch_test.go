package controlplane

import (
	"context"
	"errors"
	"testing"

	"github.com/fentz26/recsync/internal/codec"
	"github.com/fentz26/recsync/internal/connectors/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respond(status string, uuids ...string) func(codec.FetchExercisesRequest) codec.FetchExercisesResponse {
	return func(r codec.FetchExercisesRequest) codec.FetchExercisesResponse {
		return codec.FetchExercisesResponse{
			RequestUUID:      r.RequestUUID,
			AssignmentUUID:   r.AssignmentUUID,
			ExerciseUUIDs:    uuids,
			AssignmentStatus: status,
		}
	}
}

func TestFetchAssignmentPEsFromService(t *testing.T) {
	h := newHarness(t)

	res, err := h.service.FetchAssignmentPEs(context.Background(), ExercisesRequest{AssignmentUUID: "task-1"})
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.Equal(t, 1, res.Attempts)
	assert.ElementsMatch(t, []string{"eco1-e3", "eco1-e4"}, res.UUIDs())
	assert.Zero(t, h.warnings("using fallback exercises"))
}

func TestFetchAssignmentPEsFallsBackWhenUnready(t *testing.T) {
	h := newHarness(t)
	h.client.pes = respond(codec.AssignmentUnready)

	res, err := h.service.FetchAssignmentPEs(context.Background(), ExercisesRequest{AssignmentUUID: "task-1"})
	require.NoError(t, err)

	assert.False(t, res.Accepted)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, h.client.callCount(codec.OpFetchAssignmentPEs))
	// Two personalized slots; the assigned e1 and e2 are skipped.
	require.Len(t, res.Exercises, 2)
	assert.Equal(t, "eco1-e3", res.Exercises[0].UUID, "the homework pool is used before the full page")
	assert.ElementsMatch(t, []string{"eco1-e3", "eco1-e4"}, res.UUIDs())
	assert.Equal(t, 1, h.warnings("using fallback exercises"))
}

func TestFetchAssignmentPEsFallbackHonorsMax(t *testing.T) {
	h := newHarness(t)
	h.client.pes = respond(codec.AssignmentUnknown)

	res, err := h.service.FetchAssignmentPEs(context.Background(), ExercisesRequest{AssignmentUUID: "task-1", Max: intPtr(1)})
	require.NoError(t, err)

	assert.False(t, res.Accepted)
	assert.Equal(t, []string{"eco1-e3"}, res.UUIDs())
}

func TestFetchAssignmentPEsFallsBackWhenEmpty(t *testing.T) {
	h := newHarness(t)
	h.client.pes = respond(codec.AssignmentReady)

	res, err := h.service.FetchAssignmentPEs(context.Background(), ExercisesRequest{AssignmentUUID: "task-1"})
	require.NoError(t, err)

	assert.False(t, res.Accepted)
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, res.Exercises, 2)
	assert.Equal(t, 1, h.warnings("using fallback exercises"))
}

func TestFetchAssignmentPEsRejectsTooManyExercises(t *testing.T) {
	h := newHarness(t)
	h.client.pes = respond(codec.AssignmentReady, "eco1-e3", "eco1-e4", "eco1-e5")

	_, err := h.service.FetchAssignmentPEs(context.Background(), ExercisesRequest{AssignmentUUID: "task-1"})

	var exErr *ExercisesError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, codec.OpFetchAssignmentPEs, exErr.Operation)
	assert.Equal(t, "task-1", exErr.Target)
	assert.Zero(t, h.warnings("using fallback exercises"))
}

func TestFetchAssignmentPEsRejectsUnknownExercises(t *testing.T) {
	h := newHarness(t)
	h.client.pes = respond(codec.AssignmentReady, "eco1-e3", "not-an-exercise")

	_, err := h.service.FetchAssignmentPEs(context.Background(), ExercisesRequest{AssignmentUUID: "task-1"})

	var exErr *ExercisesError
	require.True(t, errors.As(err, &exErr))
	assert.Contains(t, exErr.Reason, "not-an-exercise")
}

func TestFetchAssignmentPEsWarnsOnceOnShortfall(t *testing.T) {
	h := newHarness(t)
	h.client.pes = respond(codec.AssignmentReady, "eco1-e4")

	res, err := h.service.FetchAssignmentPEs(context.Background(), ExercisesRequest{AssignmentUUID: "task-1"})
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.Equal(t, []string{"eco1-e4"}, res.UUIDs())
	assert.Equal(t, 1, h.warnings("service returned fewer exercises than requested"))
	assert.Zero(t, h.warnings("using fallback exercises"))
}

func TestFetchAssignmentPEsUnknownTask(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.FetchAssignmentPEs(context.Background(), ExercisesRequest{AssignmentUUID: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, h.client.callCount(codec.OpFetchAssignmentPEs))
}

func TestFetchAssignmentSPEs(t *testing.T) {
	h := newHarness(t)

	// task-1 is the student's first task, so spaced practice draws from its
	// own core page.
	res, err := h.service.FetchAssignmentSPEs(context.Background(), ExercisesRequest{AssignmentUUID: "task-1"})
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.Len(t, res.Exercises, 1)
	for _, u := range res.UUIDs() {
		assert.NotContains(t, []string{"eco1-e1", "eco1-e2"}, u)
	}
}

func TestFetchWorstAreasFallsBackWhenUnready(t *testing.T) {
	h := newHarness(t)
	h.client.worstAreas = func(r codec.WorstAreasRequest) codec.WorstAreasResponse {
		return codec.WorstAreasResponse{RequestUUID: r.RequestUUID, StudentUUID: r.StudentUUID, StudentStatus: codec.StudentUnready}
	}

	res, err := h.service.FetchPracticeWorstAreasExercises(context.Background(), ExercisesRequest{StudentUUID: "student-1"})
	require.NoError(t, err)

	assert.False(t, res.Accepted)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, res.Exercises, 4)
	assert.Equal(t, 1, h.warnings("using fallback exercises"))
}

func TestFetchWorstAreasFromService(t *testing.T) {
	h := newHarness(t)

	res, err := h.service.FetchPracticeWorstAreasExercises(context.Background(), ExercisesRequest{StudentUUID: "student-1", Max: intPtr(2)})
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.ElementsMatch(t, []string{"eco1-e2", "eco1-e4"}, res.UUIDs())
}

func TestFetchAssignmentPEsFallbackSkipsGlobalExclusions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.service.UpdateGloballyExcludedExercises(ctx, "3")
	require.NoError(t, err)
	h.client.pes = respond(codec.AssignmentUnready)

	res, err := h.service.FetchAssignmentPEs(ctx, ExercisesRequest{AssignmentUUID: "task-1"})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, []string{"eco1-e4"}, res.UUIDs())

	_, err = h.service.UpdateGloballyExcludedExercises(ctx, "3, 4@1")
	require.NoError(t, err)
	res, err = h.service.FetchAssignmentPEs(ctx, ExercisesRequest{AssignmentUUID: "task-1"})
	require.NoError(t, err)
	assert.Empty(t, res.Exercises)
}

func TestFetchSendsResolvedMax(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var sent []*int
	h.client.pes = func(r codec.FetchExercisesRequest) codec.FetchExercisesResponse {
		sent = append(sent, r.MaxNumExercises)
		return respond(codec.AssignmentReady, "eco1-e3", "eco1-e4")(r)
	}
	res, err := h.service.FetchAssignmentPEs(ctx, ExercisesRequest{AssignmentUUID: "task-1"})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0])
	assert.Equal(t, 2, *sent[0])

	var worstMax *int
	h.client.worstAreas = func(r codec.WorstAreasRequest) codec.WorstAreasResponse {
		worstMax = r.MaxNumExercises
		return codec.WorstAreasResponse{
			RequestUUID:   r.RequestUUID,
			StudentUUID:   r.StudentUUID,
			ExerciseUUIDs: []string{"eco1-e1", "eco1-e2", "eco1-e3", "eco1-e4", "eco1-e5"},
			StudentStatus: codec.StudentReady,
		}
	}
	res, err = h.service.FetchPracticeWorstAreasExercises(ctx, ExercisesRequest{StudentUUID: "student-1"})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Len(t, res.Exercises, 5)
	require.NotNil(t, worstMax)
	assert.Equal(t, local.DefaultWorstAreasCount, *worstMax)
}
