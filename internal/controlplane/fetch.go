package controlplane

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/recsync/internal/codec"
	"github.com/fentz26/recsync/internal/connectors/local"
	"github.com/fentz26/recsync/internal/models"
	"github.com/fentz26/recsync/internal/picker"
	"github.com/google/uuid"
)

// Fallback reasons reported in metrics and logs.
const (
	reasonUnready = "unready"
	reasonEmpty   = "empty"
)

// ExercisesRequest asks for recommended exercises. Max defaults to the number
// of matching steps on the task, or the worst-areas default; the resolved
// value is always sent to the service.
type ExercisesRequest struct {
	// AssignmentUUID is the task UUID for assignment fetches.
	AssignmentUUID string
	// StudentUUID is used by worst-areas fetches.
	StudentUUID string
	Max         *int
}

// ExercisesResult is a recommendation outcome. Accepted is false when the
// exercises came from the local fallback instead of the service.
type ExercisesResult struct {
	Exercises []*models.Exercise
	Accepted  bool
	// Attempts is the number of service calls made.
	Attempts int
}

// UUIDs returns the exercise UUIDs in order.
func (r *ExercisesResult) UUIDs() []string {
	out := make([]string, len(r.Exercises))
	for i, ex := range r.Exercises {
		out[i] = ex.UUID
	}
	return out
}

func (s *Service) algorithm(course *models.Course, op string) string {
	if name := course.Algorithms[op]; name != "" {
		return name
	}
	return s.opts.Algorithms.Algorithm(op)
}

// sleep waits d or until ctx is done. No lock is held while waiting.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// poll calls fetch until it reports ready or the inline attempts run out. It
// returns the last response and the number of calls made.
func poll[T any](ctx context.Context, s *Service, fetch func() (T, bool, error)) (T, bool, int, error) {
	var (
		resp  T
		ready bool
		err   error
	)
	attempts := 0
	for attempts < s.opts.Fetch.InlineMaxAttempts {
		attempts++
		resp, ready, err = fetch()
		if err != nil || ready {
			return resp, ready, attempts, err
		}
		if attempts < s.opts.Fetch.InlineMaxAttempts {
			if err := sleep(ctx, s.opts.Fetch.InlineSleepInterval); err != nil {
				return resp, false, attempts, err
			}
		}
	}
	return resp, ready, attempts, nil
}

// FetchAssignmentPEs returns personalized exercises for a task.
func (s *Service) FetchAssignmentPEs(ctx context.Context, req ExercisesRequest) (*ExercisesResult, error) {
	return s.fetchAssignment(ctx, codec.OpFetchAssignmentPEs, models.GroupPersonalized, req)
}

// FetchAssignmentSPEs returns spaced-practice exercises for a task.
func (s *Service) FetchAssignmentSPEs(ctx context.Context, req ExercisesRequest) (*ExercisesResult, error) {
	return s.fetchAssignment(ctx, codec.OpFetchAssignmentSPEs, models.GroupSpacedPractice, req)
}

func (s *Service) fetchAssignment(ctx context.Context, op string, group models.StepGroup, req ExercisesRequest) (*ExercisesResult, error) {
	task, err := s.store.GetTaskByUUID(ctx, req.AssignmentUUID)
	if err != nil {
		return nil, notFound("task", req.AssignmentUUID, err)
	}
	course, err := s.store.GetCourse(ctx, task.CourseID)
	if err != nil {
		return nil, err
	}
	want := task.StepsInGroup(group)
	if req.Max != nil {
		want = *req.Max
	}
	log := s.log.With("operation", op, "assignment_uuid", task.UUID)

	call := func() (codec.FetchExercisesResponse, bool, error) {
		r := codec.FetchExercises(uuid.NewString(), task.UUID, s.algorithm(course, op), &want)
		var (
			resps []codec.FetchExercisesResponse
			err   error
		)
		if op == codec.OpFetchAssignmentPEs {
			resps, err = s.client.FetchAssignmentPEs(ctx, []codec.FetchExercisesRequest{r})
		} else {
			resps, err = s.client.FetchAssignmentSPEs(ctx, []codec.FetchExercisesRequest{r})
		}
		if err != nil {
			return codec.FetchExercisesResponse{}, false, err
		}
		if len(resps) != 1 {
			return codec.FetchExercisesResponse{}, false, &ExercisesError{Operation: op, Target: task.UUID, Reason: fmt.Sprintf("%d responses for 1 request", len(resps))}
		}
		return resps[0], resps[0].AssignmentStatus == codec.AssignmentReady, nil
	}
	resp, ready, attempts, err := poll(ctx, s, call)
	if err != nil {
		return nil, err
	}

	fallback := func(reason string) (*ExercisesResult, error) {
		eco, err := s.store.GetEcosystem(ctx, task.EcosystemID)
		if err != nil {
			return nil, err
		}
		filter, err := s.fallback.Exclusions(ctx, course, task.AssignedExerciseIDs())
		if err != nil {
			return nil, err
		}
		tiers := picker.Tiers(eco, task.CorePageIDs,
			[]models.PoolType{task.Type.DynamicPool(), models.PoolAllExercises}, filter)
		picked := picker.Pick(tiers, want, picker.Seed(task.UUID, op))
		s.metrics.RecordFallback(op, reason)
		log.Warn("using fallback exercises", "reason", reason, "status", resp.AssignmentStatus,
			"attempts", attempts, "requested", want, "picked", len(picked))
		return &ExercisesResult{Exercises: picked, Accepted: false, Attempts: attempts}, nil
	}

	if !ready {
		return fallback(reasonUnready)
	}
	exercises, err := s.checkExercises(ctx, op, task.UUID, resp.ExerciseUUIDs, want)
	if err != nil {
		return nil, err
	}
	if len(exercises) == 0 && want > 0 {
		return fallback(reasonEmpty)
	}
	if len(exercises) < want {
		s.metrics.RecordShortfall(op)
		log.Warn("service returned fewer exercises than requested", "requested", want, "returned", len(exercises))
	}
	return &ExercisesResult{Exercises: exercises, Accepted: true, Attempts: attempts}, nil
}

// checkExercises rejects over-delivery and resolves every UUID locally.
func (s *Service) checkExercises(ctx context.Context, op, target string, uuids []string, want int) ([]*models.Exercise, error) {
	if len(uuids) > want {
		return nil, &ExercisesError{Operation: op, Target: target,
			Reason: fmt.Sprintf("%d exercises returned, %d requested", len(uuids), want)}
	}
	found, err := s.store.FindExercisesByUUID(ctx, uuids)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Exercise, 0, len(uuids))
	for _, u := range uuids {
		ex, ok := found[u]
		if !ok {
			return nil, &ExercisesError{Operation: op, Target: target, Reason: "unknown exercise " + u}
		}
		out = append(out, ex)
	}
	return out, nil
}

// FetchPracticeWorstAreasExercises returns practice exercises from the
// student's weakest pages. The local worst-areas selection is the fallback.
func (s *Service) FetchPracticeWorstAreasExercises(ctx context.Context, req ExercisesRequest) (*ExercisesResult, error) {
	const op = codec.OpFetchPracticeWorstAreasExercises
	student, err := s.store.GetStudentByUUID(ctx, req.StudentUUID)
	if err != nil {
		return nil, notFound("student", req.StudentUUID, err)
	}
	course, err := s.store.GetCourse(ctx, student.CourseID)
	if err != nil {
		return nil, err
	}
	want := local.DefaultWorstAreasCount
	if req.Max != nil {
		want = *req.Max
	}
	log := s.log.With("operation", op, "student_uuid", student.UUID)

	call := func() (codec.WorstAreasResponse, bool, error) {
		r := codec.WorstAreas(uuid.NewString(), student.UUID, s.algorithm(course, op), &want)
		resps, err := s.client.FetchPracticeWorstAreasExercises(ctx, []codec.WorstAreasRequest{r})
		if err != nil {
			return codec.WorstAreasResponse{}, false, err
		}
		if len(resps) != 1 {
			return codec.WorstAreasResponse{}, false, &ExercisesError{Operation: op, Target: student.UUID, Reason: fmt.Sprintf("%d responses for 1 request", len(resps))}
		}
		return resps[0], resps[0].StudentStatus == codec.StudentReady, nil
	}
	resp, ready, attempts, err := poll(ctx, s, call)
	if err != nil {
		return nil, err
	}

	fallback := func(reason string) (*ExercisesResult, error) {
		picked, err := s.fallback.WorstAreas(ctx, student.UUID, want)
		if err != nil {
			return nil, err
		}
		s.metrics.RecordFallback(op, reason)
		log.Warn("using fallback exercises", "reason", reason, "status", resp.StudentStatus,
			"attempts", attempts, "requested", want, "picked", len(picked))
		return &ExercisesResult{Exercises: picked, Accepted: false, Attempts: attempts}, nil
	}

	if !ready {
		return fallback(reasonUnready)
	}
	exercises, err := s.checkExercises(ctx, op, student.UUID, resp.ExerciseUUIDs, want)
	if err != nil {
		return nil, err
	}
	if len(exercises) == 0 && want > 0 {
		return fallback(reasonEmpty)
	}
	if len(exercises) < want {
		s.metrics.RecordShortfall(op)
		log.Warn("service returned fewer exercises than requested", "requested", want, "returned", len(exercises))
	}
	return &ExercisesResult{Exercises: exercises, Accepted: true, Attempts: attempts}, nil
}
