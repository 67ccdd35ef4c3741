package codec

import (
	"github.com/fentz26/recsync/internal/models"
)

// AssignmentInput carries one task and the records it references. CorePageIDs
// and the goal counts override the task's own values when set.
type AssignmentInput struct {
	RequestUUID string
	Course      *models.Course
	Ecosystem   *models.Ecosystem
	Task        *models.Task
	Student     *models.Student
	CorePageIDs []int64
	GoalSPEs    *int
	GoalPEs     *int
}

// Assignment builds one create_update_assignments item.
func Assignment(in AssignmentInput, seq int64) (AssignmentRequest, error) {
	task := in.Task
	if task == nil || in.Course == nil || in.Ecosystem == nil {
		return AssignmentRequest{}, invalid(OpCreateUpdateAssignments, "task, course and ecosystem are required")
	}
	if in.Student == nil {
		return AssignmentRequest{}, invalid(OpCreateUpdateAssignments, "task %s has no tasking", task.UUID)
	}

	pages := map[int64]*models.Page{}
	for _, p := range in.Ecosystem.Pages() {
		pages[p.ID] = p
	}
	corePageIDs := in.CorePageIDs
	if corePageIDs == nil {
		corePageIDs = task.CorePageIDs
	}
	containers := make([]string, 0, len(corePageIDs))
	for _, id := range corePageIDs {
		p, ok := pages[id]
		if !ok {
			return AssignmentRequest{}, invalid(OpCreateUpdateAssignments, "task %s core page %d is not in ecosystem %s", task.UUID, id, in.Ecosystem.UUID)
		}
		containers = append(containers, p.UUID)
	}

	exercises := in.Ecosystem.ExerciseByID()
	assigned := []AssignedExercise{}
	for _, step := range task.Steps {
		if step.Kind != models.StepExercise || step.Exercise == nil {
			continue
		}
		ex, ok := exercises[step.Exercise.ExerciseID]
		if !ok {
			return AssignmentRequest{}, invalid(OpCreateUpdateAssignments, "task %s step %d has an exercise outside its ecosystem", task.UUID, step.Number)
		}
		assigned = append(assigned, AssignedExercise{
			TrialUUID:    step.Exercise.UUID,
			ExerciseUUID: ex.UUID,
			IsSPE:        step.Group == models.GroupSpacedPractice,
			IsPE:         step.Group == models.GroupPersonalized,
		})
	}

	goalSPEs := task.StepsInGroup(models.GroupSpacedPractice)
	if in.GoalSPEs != nil {
		goalSPEs = *in.GoalSPEs
	}
	goalPEs := task.StepsInGroup(models.GroupPersonalized)
	if in.GoalPEs != nil {
		goalPEs = *in.GoalPEs
	}

	return AssignmentRequest{
		RequestUUID:    in.RequestUUID,
		CourseUUID:     in.Course.UUID,
		SequenceNumber: seq,
		AssignmentUUID: task.UUID,
		IsDeleted:      task.Withdrawn,
		EcosystemUUID:  in.Ecosystem.UUID,
		StudentUUID:    in.Student.UUID,
		AssignmentType: string(task.Type),
		ExclusionInfo: ExclusionInfo{
			OpensAt:    formatTimePtr(task.OpensAt),
			DueAt:      formatTimePtr(task.DueAt),
			FeedbackAt: formatTimePtr(task.FeedbackAt),
		},
		AssignedBookContainerUUIDs: containers,
		GoalNumTutorAssignedSPEs:   goalSPEs,
		SPEsAreAssigned:            task.SpesAreAssigned,
		GoalNumTutorAssignedPEs:    goalPEs,
		PEsAreAssigned:             task.PesAreAssigned,
		AssignedExercises:          assigned,
		CreatedAt:                  FormatTime(task.CreatedAt),
		UpdatedAt:                  FormatTime(task.UpdatedAt),
	}, nil
}

// ResponseInput carries one graded answer.
type ResponseInput struct {
	ResponseUUID   string
	Course         *models.Course
	EcosystemUUID  string
	Student        *models.Student
	TaskedExercise *models.TaskedExercise
	ExerciseUUID   string
}

// Response builds one record_responses item. Unanswered exercises cannot be
// recorded.
func Response(in ResponseInput, seq int64) (ResponseRequest, error) {
	te := in.TaskedExercise
	if te == nil || in.Course == nil {
		return ResponseRequest{}, invalid(OpRecordResponses, "course and tasked exercise are required")
	}
	if in.Student == nil {
		return ResponseRequest{}, invalid(OpRecordResponses, "trial %s has no tasking", te.UUID)
	}
	if !te.Answered() {
		return ResponseRequest{}, invalid(OpRecordResponses, "trial %s has not been answered", te.UUID)
	}
	return ResponseRequest{
		ResponseUUID:   in.ResponseUUID,
		CourseUUID:     in.Course.UUID,
		SequenceNumber: seq,
		EcosystemUUID:  in.EcosystemUUID,
		TrialUUID:      te.UUID,
		StudentUUID:    in.Student.UUID,
		ExerciseUUID:   in.ExerciseUUID,
		IsCorrect:      *te.IsCorrect,
		IsRealResponse: in.Course.IsReal(),
		RespondedAt:    FormatTime(te.UpdatedAt),
	}, nil
}
