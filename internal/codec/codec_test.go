package codec

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fentz26/recsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.FixedZone("X", 3600))

func testEcosystem() *models.Ecosystem {
	p1 := &models.Page{ID: 11, UUID: "page-1", ContentUUID: "content-1", CnxID: "content-1@3",
		Pools: map[models.PoolType][]int64{
			models.PoolAllExercises:    {101, 102},
			models.PoolHomeworkDynamic: {102},
		}}
	p2 := &models.Page{ID: 12, UUID: "page-2", ContentUUID: "content-2", CnxID: "content-2@1",
		Pools: map[models.PoolType][]int64{models.PoolAllExercises: {103}}}
	return &models.Ecosystem{
		ID: 1, UUID: "eco-1", CreatedAt: t0,
		Book: &models.Book{ID: 1, UUID: "book-1", CnxID: "book@1", Chapters: []*models.Chapter{
			{ID: 1, UUID: "chapter-1", Pages: []*models.Page{p1, p2}, AllExercises: []int64{101, 102, 103}},
		}},
		Exercises: []*models.Exercise{
			{ID: 101, UUID: "ex-101", GroupUUID: "g-1", Number: 1, Version: 1, PageID: 11, LOs: []string{"lo-a", "cnxmod:content-1"}},
			{ID: 102, UUID: "ex-102", GroupUUID: "g-2", Number: 2, Version: 2, PageID: 11},
			{ID: 103, UUID: "ex-103", GroupUUID: "g-3", Number: 3, Version: 1, PageID: 12},
		},
	}
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "2024-01-02T02:04:05.123456Z", FormatTime(t0))
}

func TestCreateEcosystem(t *testing.T) {
	req, err := CreateEcosystem(testEcosystem(), 4)
	require.NoError(t, err)

	assert.Equal(t, int64(4), req.SequenceNumber)
	assert.Equal(t, "book@1", req.Book.CnxIdentity)
	require.Len(t, req.Book.Contents, 4)

	book := req.Book.Contents[0]
	assert.Equal(t, "eco-1", book.ContainerParentUUID)
	assert.Empty(t, book.Pools)

	chapter := req.Book.Contents[1]
	require.Len(t, chapter.Pools, 1)
	assert.True(t, chapter.Pools[0].UseForClue)
	assert.Equal(t, []string{"ex-101", "ex-102", "ex-103"}, chapter.Pools[0].ExerciseUUIDs)

	page := req.Book.Contents[2]
	assert.Equal(t, "chapter-1", page.ContainerParentUUID)
	assert.Equal(t, "content-1@3", page.ContainerCnxIdentity)
	require.Len(t, page.Pools, 5)
	assert.True(t, page.Pools[0].UseForClue)
	assert.Equal(t, []string{"homework"}, page.Pools[2].UseForPersonalizedForAssignmentTypes)
	assert.Equal(t, []string{"ex-102"}, page.Pools[2].ExerciseUUIDs)
	assert.Equal(t, []string{"concept-coach"}, page.Pools[4].UseForPersonalizedForAssignmentTypes)

	assert.Equal(t, []string{"cnxmod:content-1", "lo-a"}, req.Exercises[0].LOs)
	assert.Equal(t, []string{"cnxmod:content-1"}, req.Exercises[1].LOs)

	// Internal IDs never reach the wire.
	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"id"`)
	assert.Contains(t, string(data), `"imported_at":"2024-01-02T02:04:05.123456Z"`)
}

func TestCreateEcosystemRejectsUnknownExercise(t *testing.T) {
	eco := testEcosystem()
	eco.Book.Chapters[0].Pages[1].Pools[models.PoolPracticeWidget] = []int64{999}
	_, err := CreateEcosystem(eco, 1)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, OpCreateEcosystem, verr.Operation)
}

func TestRosterKeepsEndedMembers(t *testing.T) {
	archived := t0.Add(time.Hour)
	dropped := t0.Add(2 * time.Hour)
	r := &models.Roster{
		Course: &models.Course{ID: 1, UUID: "course-1"},
		Periods: []*models.Period{
			{ID: 1, UUID: "period-1", CreatedAt: t0},
			{ID: 2, UUID: "period-2", CreatedAt: t0, ArchivedAt: &archived},
		},
		Students: []*models.Student{
			{UUID: "s-1", PeriodID: 1, CreatedAt: t0, EnrolledAt: t0},
			{UUID: "s-2", PeriodID: 2, CreatedAt: t0, EnrolledAt: t0, DroppedAt: &dropped},
		},
	}
	req, err := Roster("req-1", r, 7)
	require.NoError(t, err)
	require.Len(t, req.CourseContainers, 2)
	require.Len(t, req.Students, 2)
	assert.Empty(t, req.CourseContainers[0].ArchivedAt)
	assert.Equal(t, FormatTime(archived), req.CourseContainers[1].ArchivedAt)
	assert.Equal(t, "period-2", req.Students[1].ContainerUUID)
	assert.Equal(t, FormatTime(dropped), req.Students[1].DroppedAt)

	data, err := json.Marshal(req.Students[0])
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped_at")
}

func TestAssignment(t *testing.T) {
	eco := testEcosystem()
	task := &models.Task{
		UUID: "task-1", Type: models.TaskHomework, CorePageIDs: []int64{11}, DueAt: &t0, CreatedAt: t0, UpdatedAt: t0,
		Steps: []*models.TaskStep{
			{Number: 1, Group: models.GroupCore, Kind: models.StepExercise, Exercise: &models.TaskedExercise{UUID: "trial-1", ExerciseID: 101}},
			{Number: 2, Group: models.GroupSpacedPractice, Kind: models.StepExercise, Exercise: &models.TaskedExercise{UUID: "trial-2", ExerciseID: 103}},
			{Number: 3, Group: models.GroupPersonalized, Kind: models.StepPlaceholder},
			{Number: 4, Group: models.GroupPersonalized, Kind: models.StepPlaceholder},
		},
	}
	in := AssignmentInput{
		RequestUUID: "req-1",
		Course:      &models.Course{UUID: "course-1"},
		Ecosystem:   eco,
		Task:        task,
		Student:     &models.Student{UUID: "student-1"},
	}

	req, err := Assignment(in, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"page-1"}, req.AssignedBookContainerUUIDs)
	assert.Equal(t, 1, req.GoalNumTutorAssignedSPEs)
	assert.Equal(t, 2, req.GoalNumTutorAssignedPEs)
	require.Len(t, req.AssignedExercises, 2)
	assert.True(t, req.AssignedExercises[1].IsSPE)
	assert.Equal(t, "ex-103", req.AssignedExercises[1].ExerciseUUID)
	assert.Equal(t, FormatTime(t0), req.ExclusionInfo.DueAt)
	assert.Empty(t, req.ExclusionInfo.OpensAt)

	five := 5
	in.CorePageIDs = []int64{12, 11}
	in.GoalPEs = &five
	req, err = Assignment(in, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"page-2", "page-1"}, req.AssignedBookContainerUUIDs)
	assert.Equal(t, 5, req.GoalNumTutorAssignedPEs)

	in.Student = nil
	_, err = Assignment(in, 5)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestResponseRequiresAnswer(t *testing.T) {
	correct := true
	in := ResponseInput{
		ResponseUUID:   "resp-1",
		Course:         &models.Course{UUID: "course-1", IsPreview: true},
		EcosystemUUID:  "eco-1",
		Student:        &models.Student{UUID: "student-1"},
		TaskedExercise: &models.TaskedExercise{UUID: "trial-1", UpdatedAt: t0},
		ExerciseUUID:   "ex-101",
	}
	_, err := Response(in, 1)
	assert.Error(t, err)

	in.TaskedExercise.IsCorrect = &correct
	req, err := Response(in, 2)
	require.NoError(t, err)
	assert.True(t, req.IsCorrect)
	assert.False(t, req.IsRealResponse)
	assert.Equal(t, FormatTime(t0), req.RespondedAt)
}

func TestFetchOmitsMaxWhenUnset(t *testing.T) {
	data, err := json.Marshal(FetchExercises("r", "a", "biglearn_sparfa", nil))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "max_num_exercises")

	n := 0
	data, err = json.Marshal(FetchExercises("r", "a", "biglearn_sparfa", &n))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"max_num_exercises":0`)
}

func TestParseExcludedIDs(t *testing.T) {
	numbers, versions, err := ParseExcludedIDs("456@2, 123,123 , 7@1")
	require.NoError(t, err)
	assert.Equal(t, []int64{123}, numbers)
	assert.Equal(t, []ExcludedVersion{{Number: 7, Version: 1}, {Number: 456, Version: 2}}, versions)

	numbers, versions, err = ParseExcludedIDs("")
	require.NoError(t, err)
	assert.Empty(t, numbers)
	assert.Empty(t, versions)

	_, _, err = ParseExcludedIDs("12@x")
	assert.Error(t, err)
}

func TestBulkOperationsHaveKeys(t *testing.T) {
	for op, keys := range Bulk {
		assert.NotEmpty(t, keys.Requests, op)
		assert.NotEmpty(t, keys.Responses, op)
	}
	assert.Equal(t, 100, MaxBatch[OpUpdateRosters])
}
