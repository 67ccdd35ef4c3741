// Package local implements the recommendation service client offline. Writes
// are acknowledged without being sent anywhere; recommendations come from the
// local exercise pools and clues from the local estimator.
package local

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fentz26/recsync/internal/clue"
	"github.com/fentz26/recsync/internal/codec"
	"github.com/fentz26/recsync/internal/connectors"
	"github.com/fentz26/recsync/internal/logger"
	"github.com/fentz26/recsync/internal/models"
	"github.com/fentz26/recsync/internal/picker"
	"github.com/fentz26/recsync/internal/store"
)

// DefaultWorstAreasCount is the number of worst-areas exercises returned when
// the request sets no maximum.
const DefaultWorstAreasCount = 5

// Store is the read access the local client needs.
type Store interface {
	GetCourse(ctx context.Context, id int64) (*models.Course, error)
	GetEcosystem(ctx context.Context, id int64) (*models.Ecosystem, error)
	CurrentEcosystemID(ctx context.Context, courseID int64) (int64, error)
	GetTaskByUUID(ctx context.Context, uuid string) (*models.Task, error)
	ListTasksForStudent(ctx context.Context, studentID int64) ([]*models.Task, error)
	GetStudentByUUID(ctx context.Context, uuid string) (*models.Student, error)
	GetPeriodByUUID(ctx context.Context, uuid string) (*models.Period, error)
	StudentIDsInPeriod(ctx context.Context, periodID int64) ([]int64, error)
	ResponsesForStudents(ctx context.Context, studentIDs []int64) ([]models.Response, error)
	ContainerExerciseNumbers(ctx context.Context, containerUUID string) ([]int64, error)
	GetSetting(ctx context.Context, key string) (string, time.Time, error)
}

// Client answers every operation from local data.
type Client struct {
	store     Store
	estimator clue.Estimator
	log       *logger.Logger
}

var _ connectors.Client = (*Client)(nil)

// New creates a local client. A nil estimator uses the Wilson estimator.
func New(s Store, est clue.Estimator, log *logger.Logger) *Client {
	if est == nil {
		est = clue.NewWilson()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{store: s, estimator: est, log: log.With("component", "local_client")}
}

// Name returns the client identifier.
func (c *Client) Name() string { return "local" }

// --- writes ---

func (c *Client) CreateEcosystem(_ context.Context, req *codec.CreateEcosystemRequest) (*codec.CreateEcosystemResponse, error) {
	return &codec.CreateEcosystemResponse{CreatedEcosystemUUID: req.EcosystemUUID}, nil
}

func (c *Client) CreateCourse(_ context.Context, req *codec.CreateCourseRequest) (*codec.CreateCourseResponse, error) {
	return &codec.CreateCourseResponse{CreatedCourseUUID: req.CourseUUID}, nil
}

func (c *Client) PrepareCourseEcosystem(_ context.Context, _ *codec.PrepareCourseEcosystemRequest) (*codec.PrepareCourseEcosystemResponse, error) {
	return &codec.PrepareCourseEcosystemResponse{Status: codec.StatusAccepted}, nil
}

func (c *Client) UpdateCourseEcosystems(_ context.Context, reqs []codec.UpdateCourseEcosystemRequest) ([]codec.UpdateCourseEcosystemResponse, error) {
	out := make([]codec.UpdateCourseEcosystemResponse, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, codec.UpdateCourseEcosystemResponse{RequestUUID: r.RequestUUID, UpdateStatus: "updated_and_ready"})
	}
	return out, nil
}

func (c *Client) UpdateRosters(_ context.Context, reqs []codec.RosterRequest) ([]codec.RosterResponse, error) {
	out := make([]codec.RosterResponse, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, codec.RosterResponse{RequestUUID: r.RequestUUID, UpdatedCourseUUID: r.CourseUUID})
	}
	return out, nil
}

func (c *Client) UpdateGloballyExcludedExercises(_ context.Context, _ *codec.ExclusionsRequest) (*codec.ExclusionsResponse, error) {
	return &codec.ExclusionsResponse{Status: codec.StatusAccepted}, nil
}

func (c *Client) UpdateCourseExcludedExercises(_ context.Context, _ *codec.ExclusionsRequest) (*codec.ExclusionsResponse, error) {
	return &codec.ExclusionsResponse{Status: codec.StatusAccepted}, nil
}

func (c *Client) UpdateCourseActiveDates(_ context.Context, req *codec.ActiveDatesRequest) (*codec.ActiveDatesResponse, error) {
	return &codec.ActiveDatesResponse{UpdatedCourseUUID: req.CourseUUID}, nil
}

func (c *Client) CreateUpdateAssignments(_ context.Context, reqs []codec.AssignmentRequest) ([]codec.AssignmentResponse, error) {
	out := make([]codec.AssignmentResponse, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, codec.AssignmentResponse{RequestUUID: r.RequestUUID, UpdatedAssignmentUUID: r.AssignmentUUID})
	}
	return out, nil
}

func (c *Client) RecordResponses(_ context.Context, reqs []codec.ResponseRequest) ([]string, error) {
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.ResponseUUID)
	}
	return out, nil
}

// --- recommendations ---

func (c *Client) FetchAssignmentPEs(ctx context.Context, reqs []codec.FetchExercisesRequest) ([]codec.FetchExercisesResponse, error) {
	return c.fetchForTasks(ctx, codec.OpFetchAssignmentPEs, models.GroupPersonalized, reqs)
}

func (c *Client) FetchAssignmentSPEs(ctx context.Context, reqs []codec.FetchExercisesRequest) ([]codec.FetchExercisesResponse, error) {
	return c.fetchForTasks(ctx, codec.OpFetchAssignmentSPEs, models.GroupSpacedPractice, reqs)
}

func (c *Client) fetchForTasks(ctx context.Context, op string, group models.StepGroup, reqs []codec.FetchExercisesRequest) ([]codec.FetchExercisesResponse, error) {
	out := make([]codec.FetchExercisesResponse, 0, len(reqs))
	for _, r := range reqs {
		resp := codec.FetchExercisesResponse{RequestUUID: r.RequestUUID, AssignmentUUID: r.AssignmentUUID, ExerciseUUIDs: []string{}}
		task, err := c.store.GetTaskByUUID(ctx, r.AssignmentUUID)
		if errors.Is(err, store.ErrNotFound) {
			resp.AssignmentStatus = codec.AssignmentUnknown
			out = append(out, resp)
			continue
		}
		if err != nil {
			return nil, err
		}

		n := task.StepsInGroup(group)
		if r.MaxNumExercises != nil {
			n = *r.MaxNumExercises
		}
		pageIDs := task.CorePageIDs
		if group == models.GroupSpacedPractice {
			if pageIDs, err = c.spacedPracticePages(ctx, task); err != nil {
				return nil, err
			}
		}
		picked, err := c.pickForTask(ctx, op, task, pageIDs, n)
		if err != nil {
			return nil, err
		}
		for _, ex := range picked {
			resp.ExerciseUUIDs = append(resp.ExerciseUUIDs, ex.UUID)
		}
		resp.AssignmentStatus = codec.AssignmentReady
		out = append(out, resp)
	}
	return out, nil
}

// spacedPracticePages returns the core pages of the student's earlier tasks in
// the same ecosystem, or the task's own core pages when there are none.
func (c *Client) spacedPracticePages(ctx context.Context, task *models.Task) ([]int64, error) {
	if task.StudentID == 0 {
		return task.CorePageIDs, nil
	}
	tasks, err := c.store.ListTasksForStudent(ctx, task.StudentID)
	if err != nil {
		return nil, err
	}
	seen := map[int64]bool{}
	var pages []int64
	for _, t := range tasks {
		if t.ID == task.ID || t.EcosystemID != task.EcosystemID || !t.CreatedAt.Before(task.CreatedAt) {
			continue
		}
		for _, id := range t.CorePageIDs {
			if !seen[id] {
				seen[id] = true
				pages = append(pages, id)
			}
		}
	}
	if len(pages) == 0 {
		return task.CorePageIDs, nil
	}
	return pages, nil
}

func (c *Client) pickForTask(ctx context.Context, op string, task *models.Task, pageIDs []int64, n int) ([]*models.Exercise, error) {
	course, err := c.store.GetCourse(ctx, task.CourseID)
	if err != nil {
		return nil, err
	}
	eco, err := c.store.GetEcosystem(ctx, task.EcosystemID)
	if err != nil {
		return nil, err
	}
	filter, err := c.Exclusions(ctx, course, task.AssignedExerciseIDs())
	if err != nil {
		return nil, err
	}
	tiers := picker.Tiers(eco, pageIDs,
		[]models.PoolType{task.Type.DynamicPool(), models.PoolAllExercises}, filter)
	return picker.Pick(tiers, n, picker.Seed(task.UUID, op)), nil
}

// Exclusions builds the selection filter for a course: exercises already
// assigned, the course's excluded numbers and the global exclusion list.
func (c *Client) Exclusions(ctx context.Context, course *models.Course, assigned map[int64]bool) (picker.Filter, error) {
	f := picker.Filter{ExerciseIDs: assigned, Numbers: numberSet(course.ExcludedExerciseNumbers)}
	value, _, err := c.store.GetSetting(ctx, store.SettingExcludedExercises)
	if err != nil {
		return picker.Filter{}, err
	}
	numbers, versions, err := codec.ParseExcludedIDs(value)
	if err != nil {
		return picker.Filter{}, fmt.Errorf("global exclusions: %w", err)
	}
	for _, n := range numbers {
		f.Numbers[n] = true
	}
	if len(versions) > 0 {
		f.Versions = make(map[codec.ExcludedVersion]bool, len(versions))
		for _, v := range versions {
			f.Versions[v] = true
		}
	}
	return f, nil
}

func (c *Client) FetchPracticeWorstAreasExercises(ctx context.Context, reqs []codec.WorstAreasRequest) ([]codec.WorstAreasResponse, error) {
	out := make([]codec.WorstAreasResponse, 0, len(reqs))
	for _, r := range reqs {
		resp := codec.WorstAreasResponse{RequestUUID: r.RequestUUID, StudentUUID: r.StudentUUID, ExerciseUUIDs: []string{}}
		student, err := c.store.GetStudentByUUID(ctx, r.StudentUUID)
		if errors.Is(err, store.ErrNotFound) {
			resp.StudentStatus = codec.StudentUnknown
			out = append(out, resp)
			continue
		}
		if err != nil {
			return nil, err
		}
		n := DefaultWorstAreasCount
		if r.MaxNumExercises != nil {
			n = *r.MaxNumExercises
		}
		picked, err := c.worstAreas(ctx, student, n)
		if err != nil {
			return nil, err
		}
		for _, ex := range picked {
			resp.ExerciseUUIDs = append(resp.ExerciseUUIDs, ex.UUID)
		}
		resp.StudentStatus = codec.StudentReady
		out = append(out, resp)
	}
	return out, nil
}

// WorstAreas picks practice exercises from the pages of the student's current
// ecosystem with the lowest estimated mastery. Pages the student never
// answered are skipped.
func (c *Client) WorstAreas(ctx context.Context, studentUUID string, n int) ([]*models.Exercise, error) {
	student, err := c.store.GetStudentByUUID(ctx, studentUUID)
	if err != nil {
		return nil, err
	}
	return c.worstAreas(ctx, student, n)
}

func (c *Client) worstAreas(ctx context.Context, student *models.Student, n int) ([]*models.Exercise, error) {
	course, err := c.store.GetCourse(ctx, student.CourseID)
	if err != nil {
		return nil, err
	}
	ecoID, err := c.store.CurrentEcosystemID(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	eco, err := c.store.GetEcosystem(ctx, ecoID)
	if err != nil {
		return nil, err
	}
	responses, err := c.store.ResponsesForStudents(ctx, []int64{student.ID})
	if err != nil {
		return nil, err
	}

	byID := eco.ExerciseByID()
	type scored struct {
		page  *models.Page
		value float64
	}
	var pages []scored
	for _, p := range eco.Pages() {
		numbers := map[int64]bool{}
		for _, id := range p.Pool(models.PoolAllExercises) {
			if ex, ok := byID[id]; ok {
				numbers[ex.Number] = true
			}
		}
		outcomes := outcomesFor(responses, numbers)
		if len(outcomes) == 0 {
			continue
		}
		pages = append(pages, scored{page: p, value: c.estimator.Estimate(outcomes).Value})
	}
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].value < pages[j].value })

	filter, err := c.Exclusions(ctx, course, nil)
	if err != nil {
		return nil, err
	}
	var tiers [][]*models.Exercise
	for _, s := range pages {
		tiers = append(tiers, picker.Tiers(eco, []int64{s.page.ID},
			[]models.PoolType{models.PoolPracticeWidget, models.PoolAllExercises}, filter)...)
	}
	return picker.Pick(tiers, n, picker.Seed(student.UUID, codec.OpFetchPracticeWorstAreasExercises)), nil
}

// --- clues ---

func (c *Client) FetchStudentClues(ctx context.Context, reqs []codec.StudentClueRequest) ([]codec.ClueResponse, error) {
	out := make([]codec.ClueResponse, 0, len(reqs))
	for _, r := range reqs {
		student, err := c.store.GetStudentByUUID(ctx, r.StudentUUID)
		if errors.Is(err, store.ErrNotFound) {
			out = append(out, c.unknownClue(r.RequestUUID))
			continue
		}
		if err != nil {
			return nil, err
		}
		resp, err := c.clueFor(ctx, r.RequestUUID, student.CourseID, []int64{student.ID}, r.BookContainerUUID)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

func (c *Client) FetchTeacherClues(ctx context.Context, reqs []codec.TeacherClueRequest) ([]codec.ClueResponse, error) {
	out := make([]codec.ClueResponse, 0, len(reqs))
	for _, r := range reqs {
		period, err := c.store.GetPeriodByUUID(ctx, r.CourseContainerUUID)
		if errors.Is(err, store.ErrNotFound) {
			out = append(out, c.unknownClue(r.RequestUUID))
			continue
		}
		if err != nil {
			return nil, err
		}
		ids, err := c.store.StudentIDsInPeriod(ctx, period.ID)
		if err != nil {
			return nil, err
		}
		resp, err := c.clueFor(ctx, r.RequestUUID, period.CourseID, ids, r.BookContainerUUID)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

func (c *Client) clueFor(ctx context.Context, requestUUID string, courseID int64, studentIDs []int64, containerUUID string) (codec.ClueResponse, error) {
	numbers, err := c.store.ContainerExerciseNumbers(ctx, containerUUID)
	if errors.Is(err, store.ErrNotFound) {
		return c.unknownClue(requestUUID), nil
	}
	if err != nil {
		return codec.ClueResponse{}, err
	}
	course, err := c.store.GetCourse(ctx, courseID)
	if err != nil {
		return codec.ClueResponse{}, fmt.Errorf("load course: %w", err)
	}
	responses, err := c.store.ResponsesForStudents(ctx, studentIDs)
	if err != nil {
		return codec.ClueResponse{}, err
	}
	est := c.estimator.Estimate(outcomesFor(responses, numberSet(numbers)))
	c.log.Debug("local clue", "book_container", containerUUID, "students", len(studentIDs), "n", est.N)
	return codec.ClueResponse{
		RequestUUID: requestUUID,
		ClueData:    clue.Data(est, course.IsReal()),
		ClueStatus:  codec.ClueReady,
	}, nil
}

func (c *Client) unknownClue(requestUUID string) codec.ClueResponse {
	return codec.ClueResponse{
		RequestUUID: requestUUID,
		ClueData:    clue.Data(c.estimator.Estimate(nil), false),
		ClueStatus:  codec.ClueUnknown,
	}
}

func outcomesFor(responses []models.Response, numbers map[int64]bool) []bool {
	var out []bool
	for _, r := range responses {
		if numbers[r.ExerciseNumber] {
			out = append(out, r.IsCorrect)
		}
	}
	return out
}

func numberSet(numbers []int64) map[int64]bool {
	out := make(map[int64]bool, len(numbers))
	for _, n := range numbers {
		out[n] = true
	}
	return out
}
