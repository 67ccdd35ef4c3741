// Package controlplane provides the recsync façade over the recommendation
// service and the daemon's status API.
package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/recsync/internal/audit"
	"github.com/fentz26/recsync/internal/clue"
	"github.com/fentz26/recsync/internal/codec"
	"github.com/fentz26/recsync/internal/config"
	"github.com/fentz26/recsync/internal/connectors"
	"github.com/fentz26/recsync/internal/connectors/local"
	"github.com/fentz26/recsync/internal/contentmap"
	"github.com/fentz26/recsync/internal/logger"
	"github.com/fentz26/recsync/internal/metrics"
	"github.com/fentz26/recsync/internal/models"
	"github.com/fentz26/recsync/internal/sequence"
	"github.com/fentz26/recsync/internal/store"
	"github.com/google/uuid"
)

// Options tunes the service.
type Options struct {
	Fetch      config.FetchConfig
	Algorithms config.AlgorithmConfig
	// Estimator computes local clues. Nil uses the Wilson estimator.
	Estimator clue.Estimator
}

// Service provides the control plane business logic.
type Service struct {
	store    *store.Store
	pdr      *audit.PDRWriter
	client   connectors.Client
	tracker  *sequence.Tracker
	mapper   *contentmap.Mapper
	fallback *local.Client
	opts     Options
	log      *logger.Logger
	metrics  *metrics.Collector
	now      func() time.Time
}

// NewService creates a new control plane service. client is the
// implementation chosen at startup; local data answers fallbacks.
func NewService(s *store.Store, pdr *audit.PDRWriter, client connectors.Client, opts Options, log *logger.Logger, m *metrics.Collector) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Estimator == nil {
		opts.Estimator = clue.NewWilson()
	}
	if opts.Fetch.InlineMaxAttempts <= 0 {
		opts.Fetch.InlineMaxAttempts = 1
	}
	return &Service{
		store:    s,
		pdr:      pdr,
		client:   client,
		tracker:  sequence.NewTracker(s, log, m),
		mapper:   contentmap.New(s, log),
		fallback: local.New(s, opts.Estimator, log),
		opts:     opts,
		log:      log.With("component", "service", "client", client.Name()),
		metrics:  m,
		now:      time.Now,
	}
}

// Client returns the recommendation service client in use.
func (s *Service) Client() connectors.Client { return s.client }

// submit claims one sequence number per ref and records the job built from
// them. The build function must not use the store.
func (s *Service) submit(ctx context.Context, op string, refs []models.EntityRef, build func(seqs []int64) (any, error)) (*Job, error) {
	rec, err := s.tracker.Submit(ctx, op, refs, func(seqs []int64) ([]byte, error) {
		req, err := build(seqs)
		if err != nil {
			return nil, err
		}
		return json.Marshal(req)
	})
	if err != nil {
		return nil, err
	}
	s.pdr.Record(ctx, "job.submit", rec.Payload, "success", rec.ID, op)
	return newJob(s.store, rec), nil
}

// bulkItem is one entry of a bulk write, built once the item's sequence
// number is known.
type bulkItem struct {
	key   string
	ref   models.EntityRef
	build func(seq int64) (any, error)
}

// submitBulk validates every item by building it without a sequence number,
// reports the ones that fail and records one job for the rest.
func (s *Service) submitBulk(ctx context.Context, op string, items []bulkItem, report *BatchReport) error {
	var valid []bulkItem
	for _, it := range items {
		if _, err := it.build(0); err != nil {
			report.fail(it.key, err)
			continue
		}
		valid = append(valid, it)
	}
	if len(valid) == 0 {
		if len(items) == 0 {
			return nil
		}
		return ErrNothingToWrite
	}

	refs := make([]models.EntityRef, len(valid))
	for i, it := range valid {
		refs[i] = it.ref
	}
	job, err := s.submit(ctx, op, refs, func(seqs []int64) (any, error) {
		out := make([]any, len(valid))
		for i, it := range valid {
			req, err := it.build(seqs[i])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", it.key, err)
			}
			out[i] = req
		}
		return out, nil
	})
	if err != nil {
		return err
	}
	report.Jobs = append(report.Jobs, job)
	for _, it := range valid {
		report.Sent = append(report.Sent, it.key)
	}
	return nil
}

func notFound(kind, key string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
	}
	return err
}

func (s *Service) courseWithEcosystem(ctx context.Context, courseUUID string) (*models.Course, *models.Ecosystem, error) {
	course, err := s.store.GetCourseByUUID(ctx, courseUUID)
	if err != nil {
		return nil, nil, notFound("course", courseUUID, err)
	}
	ecoID, err := s.store.CurrentEcosystemID(ctx, course.ID)
	if err != nil {
		return nil, nil, err
	}
	eco, err := s.store.GetEcosystem(ctx, ecoID)
	if err != nil {
		return nil, nil, err
	}
	return course, eco, nil
}

// --- Ecosystems ---

// CreateEcosystem sends an ecosystem's book, pools and exercises.
func (s *Service) CreateEcosystem(ctx context.Context, ecosystemUUID string) (*Job, error) {
	eco, err := s.store.GetEcosystemByUUID(ctx, ecosystemUUID)
	if err != nil {
		return nil, notFound("ecosystem", ecosystemUUID, err)
	}
	return s.submit(ctx, codec.OpCreateEcosystem, []models.EntityRef{models.EcosystemRef(eco.ID)},
		func(seqs []int64) (any, error) { return codec.CreateEcosystem(eco, seqs[0]) })
}

// PrepareCourseEcosystem sends the content map from the course's current
// ecosystem to the target ecosystem. The returned preparation UUID is
// referenced by the following update.
func (s *Service) PrepareCourseEcosystem(ctx context.Context, courseUUID, toEcosystemUUID string) (*Job, string, error) {
	course, from, err := s.courseWithEcosystem(ctx, courseUUID)
	if err != nil {
		return nil, "", err
	}
	to, err := s.store.GetEcosystemByUUID(ctx, toEcosystemUUID)
	if err != nil {
		return nil, "", notFound("ecosystem", toEcosystemUUID, err)
	}
	cm, err := s.mapper.Map(ctx, from.ID, to.ID)
	if err != nil {
		return nil, "", fmt.Errorf("map %s to %s: %w", from.UUID, to.UUID, err)
	}

	in := codec.PrepareInput{
		PreparationUUID: uuid.NewString(),
		Course:          course,
		From:            from,
		To:              to,
		Map:             cm,
		PreparedAt:      s.now(),
	}
	job, err := s.submit(ctx, codec.OpPrepareCourseEcosystem, []models.EntityRef{models.CourseRef(course.ID)},
		func(seqs []int64) (any, error) { return codec.PrepareCourseEcosystem(in, seqs[0]) })
	if err != nil {
		return nil, "", err
	}
	return job, in.PreparationUUID, nil
}

// EcosystemUpdate finalizes one prepared course ecosystem switch. When
// NextEcosystemUUID is set the course's current ecosystem is recorded locally.
type EcosystemUpdate struct {
	CourseUUID        string
	PreparationUUID   string
	NextEcosystemUUID string
}

// UpdateCourseEcosystems sends the second migration phase for many courses in
// one bulk request.
func (s *Service) UpdateCourseEcosystems(ctx context.Context, updates []EcosystemUpdate) (*BatchReport, error) {
	report := &BatchReport{}
	var items []bulkItem
	type switchTo struct{ courseID, ecoID int64 }
	var switches []switchTo
	for _, u := range updates {
		course, err := s.store.GetCourseByUUID(ctx, u.CourseUUID)
		if err != nil {
			report.fail(u.CourseUUID, notFound("course", u.CourseUUID, err))
			continue
		}
		if u.NextEcosystemUUID != "" {
			next, err := s.store.GetEcosystemByUUID(ctx, u.NextEcosystemUUID)
			if err != nil {
				report.fail(u.CourseUUID, notFound("ecosystem", u.NextEcosystemUUID, err))
				continue
			}
			switches = append(switches, switchTo{course.ID, next.ID})
		}
		requestUUID, prep, at := uuid.NewString(), u.PreparationUUID, s.now()
		items = append(items, bulkItem{
			key: u.CourseUUID,
			ref: models.CourseRef(course.ID),
			build: func(seq int64) (any, error) {
				return codec.UpdateCourseEcosystem(requestUUID, course, prep, at, seq), nil
			},
		})
	}
	if err := s.submitBulk(ctx, codec.OpUpdateCourseEcosystems, items, report); err != nil {
		return report, err
	}
	for _, sw := range switches {
		if err := s.store.AddCourseEcosystem(ctx, sw.courseID, sw.ecoID, s.now()); err != nil {
			return report, fmt.Errorf("record course ecosystem: %w", err)
		}
	}
	return report, nil
}

// SequentiallyPrepareAndUpdateCourseEcosystem runs both migration phases for
// one course, claiming two consecutive sequence numbers, and makes the target
// the course's current ecosystem.
func (s *Service) SequentiallyPrepareAndUpdateCourseEcosystem(ctx context.Context, courseUUID, toEcosystemUUID string) (prepare, update *Job, err error) {
	prepare, prepUUID, err := s.PrepareCourseEcosystem(ctx, courseUUID, toEcosystemUUID)
	if err != nil {
		return nil, nil, err
	}
	report, err := s.UpdateCourseEcosystems(ctx, []EcosystemUpdate{{
		CourseUUID:        courseUUID,
		PreparationUUID:   prepUUID,
		NextEcosystemUUID: toEcosystemUUID,
	}})
	if err != nil {
		return prepare, nil, err
	}
	if err := report.Err(); err != nil {
		return prepare, nil, err
	}
	return prepare, report.Jobs[0], nil
}

// --- Courses ---

// CreateCourse sends a new course bound to its current ecosystem.
func (s *Service) CreateCourse(ctx context.Context, courseUUID string) (*Job, error) {
	course, eco, err := s.courseWithEcosystem(ctx, courseUUID)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, codec.OpCreateCourse, []models.EntityRef{models.CourseRef(course.ID)},
		func(seqs []int64) (any, error) { return codec.CreateCourse(course, eco, seqs[0]) })
}

// UpdateRosters sends the periods and students of each course. Courses that
// cannot be loaded or built are reported and skipped.
func (s *Service) UpdateRosters(ctx context.Context, courseUUIDs []string) (*BatchReport, error) {
	report := &BatchReport{}
	var items []bulkItem
	for _, cu := range courseUUIDs {
		course, err := s.store.GetCourseByUUID(ctx, cu)
		if err != nil {
			report.fail(cu, notFound("course", cu, err))
			continue
		}
		roster, err := s.store.GetRoster(ctx, course.ID)
		if err != nil {
			report.fail(cu, err)
			continue
		}
		requestUUID := uuid.NewString()
		items = append(items, bulkItem{
			key: cu,
			ref: models.CourseRef(course.ID),
			build: func(seq int64) (any, error) {
				return codec.Roster(requestUUID, roster, seq)
			},
		})
	}
	err := s.submitBulk(ctx, codec.OpUpdateRosters, items, report)
	return report, err
}

// UpdateGloballyExcludedExercises stores the global exclusion list and sends
// it to every course. Bare numbers exclude every version of an exercise;
// "number@version" excludes one version.
func (s *Service) UpdateGloballyExcludedExercises(ctx context.Context, excludedIDs string) (*BatchReport, error) {
	numbers, versions, err := codec.ParseExcludedIDs(excludedIDs)
	if err != nil {
		return nil, err
	}
	groups, err := s.store.ExerciseGroupUUIDs(ctx, numbers)
	if err != nil {
		return nil, err
	}
	var exerciseUUIDs []string
	for _, v := range versions {
		u, ok, err := s.store.ExerciseVersionUUID(ctx, v.Number, v.Version)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.log.Warn("excluded exercise version not found", "number", v.Number, "version", v.Version)
			continue
		}
		exerciseUUIDs = append(exerciseUUIDs, u)
	}
	exclusions := append(codec.GroupExclusions(groups), codec.VersionExclusions(exerciseUUIDs)...)

	if err := s.store.SetSetting(ctx, store.SettingExcludedExercises, excludedIDs); err != nil {
		return nil, err
	}
	_, updatedAt, err := s.store.GetSetting(ctx, store.SettingExcludedExercises)
	if err != nil {
		return nil, err
	}

	courses, err := s.store.ListCourses(ctx)
	if err != nil {
		return nil, err
	}
	report := &BatchReport{}
	for _, c := range courses {
		course := c
		job, err := s.submit(ctx, codec.OpUpdateGloballyExcludedExercises, []models.EntityRef{models.CourseRef(course.ID)},
			func(seqs []int64) (any, error) {
				return codec.GlobalExclusions(uuid.NewString(), course, exclusions, updatedAt, seqs[0]), nil
			})
		if err != nil {
			report.fail(course.UUID, err)
			continue
		}
		report.Jobs = append(report.Jobs, job)
		report.Sent = append(report.Sent, course.UUID)
	}
	return report, nil
}

// UpdateCourseExcludedExercises stores the course's excluded exercise numbers
// and sends them as group exclusions.
func (s *Service) UpdateCourseExcludedExercises(ctx context.Context, courseUUID string, numbers []int64) (*Job, error) {
	course, err := s.store.GetCourseByUUID(ctx, courseUUID)
	if err != nil {
		return nil, notFound("course", courseUUID, err)
	}
	if err := s.store.SetCourseExcludedExercises(ctx, course.ID, numbers); err != nil {
		return nil, err
	}
	if course, err = s.store.GetCourse(ctx, course.ID); err != nil {
		return nil, err
	}
	groups, err := s.store.ExerciseGroupUUIDs(ctx, course.ExcludedExerciseNumbers)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, codec.OpUpdateCourseExcludedExercises, []models.EntityRef{models.CourseRef(course.ID)},
		func(seqs []int64) (any, error) {
			return codec.CourseExclusions(uuid.NewString(), course, groups, seqs[0]), nil
		})
}

// UpdateCourseActiveDates stores and sends a course's new start and end.
func (s *Service) UpdateCourseActiveDates(ctx context.Context, courseUUID string, startsAt, endsAt time.Time) (*Job, error) {
	if !endsAt.After(startsAt) {
		return nil, fmt.Errorf("course %s ends before it starts", courseUUID)
	}
	course, err := s.store.GetCourseByUUID(ctx, courseUUID)
	if err != nil {
		return nil, notFound("course", courseUUID, err)
	}
	if err := s.store.UpdateCourseActiveDates(ctx, course.ID, startsAt, endsAt); err != nil {
		return nil, err
	}
	if course, err = s.store.GetCourse(ctx, course.ID); err != nil {
		return nil, err
	}
	return s.submit(ctx, codec.OpUpdateCourseActiveDates, []models.EntityRef{models.CourseRef(course.ID)},
		func(seqs []int64) (any, error) { return codec.ActiveDates(uuid.NewString(), course, seqs[0]), nil })
}

// --- Assignments and responses ---

// AssignmentUpdate selects a task to send. CorePageUUIDs and the goal counts
// override the task's own values when set.
type AssignmentUpdate struct {
	TaskUUID      string
	CorePageUUIDs []string
	GoalSPEs      *int
	GoalPEs       *int
}

// CreateUpdateAssignments sends tasks in one bulk request. Tasks that cannot
// be built, such as tasks with no student, are reported and skipped.
func (s *Service) CreateUpdateAssignments(ctx context.Context, updates []AssignmentUpdate) (*BatchReport, error) {
	report := &BatchReport{}
	var items []bulkItem
	for _, u := range updates {
		in, err := s.assignmentInput(ctx, u)
		if err != nil {
			report.fail(u.TaskUUID, err)
			continue
		}
		items = append(items, bulkItem{
			key:   u.TaskUUID,
			ref:   models.CourseRef(in.Course.ID),
			build: func(seq int64) (any, error) { return codec.Assignment(in, seq) },
		})
	}
	err := s.submitBulk(ctx, codec.OpCreateUpdateAssignments, items, report)
	return report, err
}

func (s *Service) assignmentInput(ctx context.Context, u AssignmentUpdate) (codec.AssignmentInput, error) {
	task, err := s.store.GetTaskByUUID(ctx, u.TaskUUID)
	if err != nil {
		return codec.AssignmentInput{}, notFound("task", u.TaskUUID, err)
	}
	course, err := s.store.GetCourse(ctx, task.CourseID)
	if err != nil {
		return codec.AssignmentInput{}, err
	}
	eco, err := s.store.GetEcosystem(ctx, task.EcosystemID)
	if err != nil {
		return codec.AssignmentInput{}, err
	}
	in := codec.AssignmentInput{
		RequestUUID: uuid.NewString(),
		Course:      course,
		Ecosystem:   eco,
		Task:        task,
		GoalSPEs:    u.GoalSPEs,
		GoalPEs:     u.GoalPEs,
	}
	if task.StudentID == 0 {
		return codec.AssignmentInput{}, fmt.Errorf("task %s: %w", task.UUID, ErrNoStudent)
	}
	if in.Student, err = s.store.GetStudent(ctx, task.StudentID); err != nil {
		return codec.AssignmentInput{}, err
	}
	if u.CorePageUUIDs != nil {
		pages := map[string]int64{}
		for _, p := range eco.Pages() {
			pages[p.UUID] = p.ID
		}
		in.CorePageIDs = make([]int64, 0, len(u.CorePageUUIDs))
		for _, pu := range u.CorePageUUIDs {
			id, ok := pages[pu]
			if !ok {
				return codec.AssignmentInput{}, fmt.Errorf("page %s: %w", pu, ErrNotFound)
			}
			in.CorePageIDs = append(in.CorePageIDs, id)
		}
	}
	return in, nil
}

// Answer identifies one graded trial.
type Answer struct {
	TaskUUID  string
	TrialUUID string
}

// RecordResponses sends answered trials in one bulk request.
func (s *Service) RecordResponses(ctx context.Context, answers []Answer) (*BatchReport, error) {
	report := &BatchReport{}
	var items []bulkItem
	for _, a := range answers {
		in, err := s.responseInput(ctx, a)
		if err != nil {
			report.fail(a.TrialUUID, err)
			continue
		}
		items = append(items, bulkItem{
			key:   a.TrialUUID,
			ref:   models.CourseRef(in.Course.ID),
			build: func(seq int64) (any, error) { return codec.Response(in, seq) },
		})
	}
	err := s.submitBulk(ctx, codec.OpRecordResponses, items, report)
	return report, err
}

// RecordAnswer stores a trial's correctness and sends it.
func (s *Service) RecordAnswer(ctx context.Context, a Answer, correct bool) (*Job, error) {
	_, te, err := s.trial(ctx, a)
	if err != nil {
		return nil, err
	}
	if err := s.store.RecordAnswer(ctx, te.ID, correct, s.now()); err != nil {
		return nil, err
	}
	report, err := s.RecordResponses(ctx, []Answer{a})
	if err != nil {
		return nil, err
	}
	if err := report.Err(); err != nil {
		return nil, err
	}
	return report.Jobs[0], nil
}

func (s *Service) trial(ctx context.Context, a Answer) (*models.Task, *models.TaskedExercise, error) {
	task, err := s.store.GetTaskByUUID(ctx, a.TaskUUID)
	if err != nil {
		return nil, nil, notFound("task", a.TaskUUID, err)
	}
	for _, te := range task.TaskedExercises() {
		if te.UUID == a.TrialUUID {
			return task, te, nil
		}
	}
	return nil, nil, fmt.Errorf("trial %s: %w", a.TrialUUID, ErrTrialNotFound)
}

func (s *Service) responseInput(ctx context.Context, a Answer) (codec.ResponseInput, error) {
	task, te, err := s.trial(ctx, a)
	if err != nil {
		return codec.ResponseInput{}, err
	}
	course, err := s.store.GetCourse(ctx, task.CourseID)
	if err != nil {
		return codec.ResponseInput{}, err
	}
	eco, err := s.store.GetEcosystem(ctx, task.EcosystemID)
	if err != nil {
		return codec.ResponseInput{}, err
	}
	ex, ok := eco.ExerciseByID()[te.ExerciseID]
	if !ok {
		return codec.ResponseInput{}, fmt.Errorf("trial %s exercise %d: %w", te.UUID, te.ExerciseID, ErrNotFound)
	}
	in := codec.ResponseInput{
		ResponseUUID:   uuid.NewString(),
		Course:         course,
		EcosystemUUID:  eco.UUID,
		TaskedExercise: te,
		ExerciseUUID:   ex.UUID,
	}
	if task.StudentID == 0 {
		return codec.ResponseInput{}, fmt.Errorf("task %s: %w", task.UUID, ErrNoStudent)
	}
	if in.Student, err = s.store.GetStudent(ctx, task.StudentID); err != nil {
		return codec.ResponseInput{}, err
	}
	return in, nil
}

// --- Jobs ---

// Ping checks the database.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GetJob returns a stored job.
func (s *Service) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, notFound("job", id, err)
	}
	return job, nil
}

// ListJobs returns jobs, newest first, optionally filtered by status.
func (s *Service) ListJobs(ctx context.Context, status string, limit int) ([]*models.Job, error) {
	return s.store.ListJobs(ctx, status, limit)
}

// JobHistory returns the decision records of a job.
func (s *Service) JobHistory(ctx context.Context, id string) ([]models.PDREntry, error) {
	return s.store.ListPDRs(ctx, id)
}
