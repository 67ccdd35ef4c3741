package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/recsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEcosystem(uuid string) *models.Ecosystem {
	return &models.Ecosystem{
		UUID:  uuid,
		Title: "Physics",
		Book: &models.Book{
			UUID:  uuid + "-book",
			CnxID: "book@1",
			Chapters: []*models.Chapter{{
				UUID:   uuid + "-ch1",
				Number: 1,
				Pages: []*models.Page{
					{UUID: uuid + "-p1", ContentUUID: "content-p1", CnxID: "p1@1"},
					{UUID: uuid + "-p2", ContentUUID: "content-p2", CnxID: "p2@1"},
				},
			}},
		},
		Exercises: []*models.Exercise{
			{UUID: uuid + "-e1", GroupUUID: "g1", Number: 1, Version: 1, PageUUID: uuid + "-p1",
				Pools: []models.PoolType{models.PoolReadingDynamic}},
			{UUID: uuid + "-e2", GroupUUID: "g2", Number: 2, Version: 1, PageUUID: uuid + "-p1",
				Pools: []models.PoolType{models.PoolHomeworkDynamic}},
			{UUID: uuid + "-e3", GroupUUID: "g3", Number: 3, Version: 1, PageUUID: uuid + "-p2", LOs: []string{"lo:1"}},
		},
	}
}

func createTestCourse(t *testing.T, s *Store, ecoID int64) *models.Course {
	t.Helper()
	now := time.Now().UTC()
	c := &models.Course{UUID: "course-1", Name: "Physics 101", StartsAt: now, EndsAt: now.Add(24 * time.Hour)}
	require.NoError(t, s.CreateCourse(context.Background(), c, ecoID))
	return c
}

func TestNew(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	s, err := New(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist")
	assert.NoError(t, s.Ping(context.Background()))
}

func TestNewAppliesPragmas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var mode string
	require.NoError(t, s.db.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk, timeout int
	require.NoError(t, s.db.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
	require.NoError(t, s.db.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout))
	assert.Equal(t, 5000, timeout)

	err := s.CreatePeriod(ctx, &models.Period{UUID: "orphan", CourseID: 42})
	assert.Error(t, err, "periods must reference an existing course")
}

func TestEcosystemRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	eco := testEcosystem("eco-1")
	require.NoError(t, s.CreateEcosystem(ctx, eco))
	require.NotZero(t, eco.ID)

	got, err := s.GetEcosystemByUUID(ctx, "eco-1")
	require.NoError(t, err)
	require.Len(t, got.Book.Chapters, 1)
	pages := got.Pages()
	require.Len(t, pages, 2)
	assert.Equal(t, "content-p1", pages[0].ContentUUID)
	assert.Len(t, pages[0].Pool(models.PoolAllExercises), 2)
	assert.Len(t, pages[0].Pool(models.PoolReadingDynamic), 1)
	assert.Len(t, pages[1].Pool(models.PoolAllExercises), 1)
	assert.Len(t, got.Book.Chapters[0].AllExercises, 3)
	require.Len(t, got.Exercises, 3)
	assert.Equal(t, []string{"lo:1"}, got.Exercises[2].LOs)

	_, err = s.GetEcosystem(ctx, 999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCreateEcosystemRejectsUnknownPage(t *testing.T) {
	s := newTestStore(t)
	eco := testEcosystem("eco-1")
	eco.Exercises[0].PageUUID = "missing"

	require.Error(t, s.CreateEcosystem(context.Background(), eco))

	_, err := s.GetEcosystemByUUID(context.Background(), "eco-1")
	assert.True(t, errors.Is(err, ErrNotFound), "failed insert must roll back")
}

func TestFindExercisesByUUID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateEcosystem(ctx, testEcosystem("eco-1")))

	found, err := s.FindExercisesByUUID(ctx, []string{"eco-1-e1", "nope"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Contains(t, found, "eco-1-e1")

	groups, err := s.ExerciseGroupUUIDs(ctx, []int64{1, 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g3"}, groups)
}

func TestCourseAndRoster(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	eco := testEcosystem("eco-1")
	require.NoError(t, s.CreateEcosystem(ctx, eco))
	c := createTestCourse(t, s, eco.ID)
	assert.Zero(t, c.SequenceNumber)

	archived := time.Now().UTC()
	p1 := &models.Period{UUID: "period-1", CourseID: c.ID, Name: "1st"}
	p2 := &models.Period{UUID: "period-2", CourseID: c.ID, Name: "2nd", ArchivedAt: &archived}
	require.NoError(t, s.CreatePeriod(ctx, p1))
	require.NoError(t, s.CreatePeriod(ctx, p2))
	dropped := time.Now().UTC()
	require.NoError(t, s.CreateStudent(ctx, &models.Student{UUID: "s1", CourseID: c.ID, PeriodID: p1.ID}))
	require.NoError(t, s.CreateStudent(ctx, &models.Student{UUID: "s2", CourseID: c.ID, PeriodID: p2.ID, DroppedAt: &dropped}))

	roster, err := s.GetRoster(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, roster.Periods, 2)
	require.Len(t, roster.Students, 2)
	assert.True(t, roster.Periods[1].Archived())
	assert.True(t, roster.Students[1].Dropped())

	ids, err := s.StudentIDsInPeriod(ctx, p2.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	current, err := s.CurrentEcosystemID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, eco.ID, current)

	eco2 := testEcosystem("eco-2")
	require.NoError(t, s.CreateEcosystem(ctx, eco2))
	require.NoError(t, s.AddCourseEcosystem(ctx, c.ID, eco2.ID, time.Now().Add(time.Minute)))
	current, err = s.CurrentEcosystemID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, eco2.ID, current)
}

func TestTaskRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	eco := testEcosystem("eco-1")
	require.NoError(t, s.CreateEcosystem(ctx, eco))
	c := createTestCourse(t, s, eco.ID)
	p := &models.Period{UUID: "period-1", CourseID: c.ID}
	require.NoError(t, s.CreatePeriod(ctx, p))
	st := &models.Student{UUID: "s1", CourseID: c.ID, PeriodID: p.ID}
	require.NoError(t, s.CreateStudent(ctx, st))

	task := &models.Task{
		UUID: "task-1", CourseID: c.ID, EcosystemID: eco.ID, StudentID: st.ID,
		Type:        models.TaskHomework,
		CorePageIDs: []int64{eco.Book.Chapters[0].Pages[0].ID},
		Steps: []*models.TaskStep{
			{Group: models.GroupCore, Kind: models.StepExercise,
				Exercise: &models.TaskedExercise{UUID: "trial-1", ExerciseID: eco.Exercises[0].ID}},
			{Group: models.GroupSpacedPractice, Kind: models.StepPlaceholder},
			{Group: models.GroupPersonalized, Kind: models.StepPlaceholder},
		},
	}
	require.NoError(t, s.CreateTask(ctx, task))

	got, err := s.GetTaskByUUID(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, got.Steps, 3)
	assert.Equal(t, 1, got.StepsInGroup(models.GroupSpacedPractice))
	assert.Equal(t, task.CorePageIDs, got.CorePageIDs)
	require.NotNil(t, got.Steps[0].Exercise)
	assert.False(t, got.Steps[0].Exercise.Answered())

	te := got.Steps[0].Exercise
	require.NoError(t, s.RecordAnswer(ctx, te.ID, true, time.Now()))
	taskID, err := s.TaskIDForTaskedExercise(ctx, te.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ID, taskID)

	responses, err := s.ResponsesForStudents(ctx, []int64{st.ID})
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.True(t, responses[0].IsCorrect)
	assert.Equal(t, eco.Exercises[0].ID, responses[0].ExerciseID)
	assert.Equal(t, int64(1), responses[0].ExerciseNumber)
}

func TestContainerExerciseNumbers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	eco := testEcosystem("eco-1")
	require.NoError(t, s.CreateEcosystem(ctx, eco))

	numbers, err := s.ContainerExerciseNumbers(ctx, "eco-1-p1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, numbers)

	numbers, err = s.ContainerExerciseNumbers(ctx, "eco-1-ch1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, numbers)

	_, err = s.ContainerExerciseNumbers(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClaimSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	eco := testEcosystem("eco-1")
	require.NoError(t, s.CreateEcosystem(ctx, eco))
	c := createTestCourse(t, s, eco.ID)

	for want := int64(1); want <= 3; want++ {
		got, err := s.ClaimSequence(ctx, models.CourseRef(c.ID))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := s.ClaimSequence(ctx, models.CourseRef(12345))
	assert.True(t, errors.Is(err, ErrNoSequenceRow))

	ecoSeq, err := s.ClaimSequence(ctx, models.EcosystemRef(eco.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(1), ecoSeq, "ecosystem counters are independent of course counters")
}

func TestConcurrentClaimsAreGapFree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	eco := testEcosystem("eco-1")
	require.NoError(t, s.CreateEcosystem(ctx, eco))
	c := createTestCourse(t, s, eco.ID)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	var got []int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := s.ClaimSequence(ctx, models.CourseRef(c.ID))
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			mu.Lock()
			got = append(got, seq)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Len(t, got, workers)
	for i, seq := range got {
		assert.Equal(t, int64(i+1), seq)
	}
}

func TestSubmitJobRollsBackOnBuildError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	eco := testEcosystem("eco-1")
	require.NoError(t, s.CreateEcosystem(ctx, eco))
	c := createTestCourse(t, s, eco.ID)
	ref := models.CourseRef(c.ID)

	_, err := s.SubmitJob(ctx, "create_course", []models.EntityRef{ref}, func([]int64) ([]byte, error) {
		return nil, errors.New("incomplete task")
	})
	require.Error(t, err)

	seq, err := s.SequenceNumber(ctx, ref)
	require.NoError(t, err)
	assert.Zero(t, seq, "failed build must not consume a number")

	jobs, err := s.ListJobs(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	job, err := s.SubmitJob(ctx, "create_course", []models.EntityRef{ref}, func(seqs []int64) ([]byte, error) {
		return []byte(`{"sequence_number":1}`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.SequenceNumber(ref))
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	eco := testEcosystem("eco-1")
	require.NoError(t, s.CreateEcosystem(ctx, eco))
	c := createTestCourse(t, s, eco.ID)
	ref := models.CourseRef(c.ID)
	build := func(seqs []int64) ([]byte, error) { return []byte("{}"), nil }

	job, err := s.SubmitJob(ctx, "update_course_active_dates", []models.EntityRef{ref}, build)
	require.NoError(t, err)

	require.NoError(t, s.MarkJobPending(ctx, job.ID))
	assert.True(t, errors.Is(s.MarkJobPending(ctx, job.ID), ErrJobNotDispatchable))

	next := time.Now().Add(time.Hour)
	require.NoError(t, s.MarkJobPending(ctx, mustRetry(t, s, job.ID, next)))
	require.NoError(t, s.CompleteJob(ctx, job.ID, []byte(`{"ok":true}`)))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 1, got.Attempt)
	assert.NotNil(t, got.FinishedAt)
	assert.JSONEq(t, `{"ok":true}`, string(got.Response))
	require.Len(t, got.Claims, 1)
	assert.Equal(t, int64(1), got.Claims[0].SequenceNumber)

	assert.True(t, errors.Is(s.FailJob(ctx, job.ID, "late"), ErrJobTerminal))
	assert.True(t, errors.Is(s.CompleteJob(ctx, job.ID, nil), ErrJobTerminal))
}

func mustRetry(t *testing.T, s *Store, id string, next time.Time) string {
	t.Helper()
	require.NoError(t, s.RetryJob(context.Background(), id, "503", next))
	return id
}

func TestListDispatchableJobsOrdersPerEntity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	eco := testEcosystem("eco-1")
	require.NoError(t, s.CreateEcosystem(ctx, eco))
	c := createTestCourse(t, s, eco.ID)
	other := &models.Course{UUID: "course-2", StartsAt: time.Now(), EndsAt: time.Now()}
	require.NoError(t, s.CreateCourse(ctx, other, eco.ID))
	build := func(seqs []int64) ([]byte, error) { return []byte("{}"), nil }

	first, err := s.SubmitJob(ctx, "a", []models.EntityRef{models.CourseRef(c.ID)}, build)
	require.NoError(t, err)
	second, err := s.SubmitJob(ctx, "b", []models.EntityRef{models.CourseRef(c.ID)}, build)
	require.NoError(t, err)
	independent, err := s.SubmitJob(ctx, "c", []models.EntityRef{models.CourseRef(other.ID)}, build)
	require.NoError(t, err)
	multi, err := s.SubmitJob(ctx, "d", []models.EntityRef{models.CourseRef(other.ID), models.CourseRef(other.ID)}, build)
	require.NoError(t, err)

	ids := func() []string {
		jobs, err := s.ListDispatchableJobs(ctx, time.Now().Add(time.Second), 10)
		require.NoError(t, err)
		var out []string
		for _, j := range jobs {
			out = append(out, j.ID)
		}
		return out
	}

	assert.ElementsMatch(t, []string{first.ID, independent.ID}, ids())

	require.NoError(t, s.MarkJobPending(ctx, first.ID))
	require.NoError(t, s.MarkJobPending(ctx, independent.ID))
	assert.Empty(t, ids(), "in-flight jobs block later claims on the same entity")

	require.NoError(t, s.CompleteJob(ctx, first.ID, nil))
	require.NoError(t, s.FailJob(ctx, independent.ID, "boom"))
	assert.ElementsMatch(t, []string{second.ID, multi.ID}, ids())

	requeued, err := s.RequeueInFlightJobs(ctx)
	require.NoError(t, err)
	assert.Zero(t, requeued)
}

func TestContentMapIsStoredOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetContentMap(ctx, 1, 2)
	assert.True(t, errors.Is(err, ErrNotFound))

	first, err := s.SaveContentMap(ctx, &models.ContentMap{
		FromEcosystemID: 1, ToEcosystemID: 2,
		PageToPage:     map[int64]int64{10: 20},
		ExerciseToPage: map[int64]int64{100: 20},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20), first.PageToPage[10])

	second, err := s.SaveContentMap(ctx, &models.ContentMap{
		FromEcosystemID: 1, ToEcosystemID: 2,
		PageToPage: map[int64]int64{10: 99},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20), second.PageToPage[10])
}

func TestSettingsAndPDR(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	value, at, err := s.GetSetting(ctx, SettingExcludedExercises)
	require.NoError(t, err)
	assert.Empty(t, value)
	assert.True(t, at.IsZero())

	require.NoError(t, s.SetSetting(ctx, SettingExcludedExercises, "1, 2@3"))
	value, _, err = s.GetSetting(ctx, SettingExcludedExercises)
	require.NoError(t, err)
	assert.Equal(t, "1, 2@3", value)

	_, err = s.WritePDR(ctx, "dispatch", "hash", "completed", "job-1", "")
	require.NoError(t, err)
	entries, err := s.ListPDRs(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dispatch", entries[0].Action)
}
