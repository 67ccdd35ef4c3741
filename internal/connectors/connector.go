// Package connectors defines the recommendation service capability and the
// dispatch of stored write payloads onto it.
package connectors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fentz26/recsync/internal/codec"
)

// Client is the full operation set of the recommendation service. A single
// implementation is chosen at startup from configuration.
type Client interface {
	// Name returns the client identifier.
	Name() string

	CreateEcosystem(ctx context.Context, req *codec.CreateEcosystemRequest) (*codec.CreateEcosystemResponse, error)
	CreateCourse(ctx context.Context, req *codec.CreateCourseRequest) (*codec.CreateCourseResponse, error)
	PrepareCourseEcosystem(ctx context.Context, req *codec.PrepareCourseEcosystemRequest) (*codec.PrepareCourseEcosystemResponse, error)
	UpdateCourseEcosystems(ctx context.Context, reqs []codec.UpdateCourseEcosystemRequest) ([]codec.UpdateCourseEcosystemResponse, error)
	UpdateRosters(ctx context.Context, reqs []codec.RosterRequest) ([]codec.RosterResponse, error)
	UpdateGloballyExcludedExercises(ctx context.Context, req *codec.ExclusionsRequest) (*codec.ExclusionsResponse, error)
	UpdateCourseExcludedExercises(ctx context.Context, req *codec.ExclusionsRequest) (*codec.ExclusionsResponse, error)
	UpdateCourseActiveDates(ctx context.Context, req *codec.ActiveDatesRequest) (*codec.ActiveDatesResponse, error)
	CreateUpdateAssignments(ctx context.Context, reqs []codec.AssignmentRequest) ([]codec.AssignmentResponse, error)
	// RecordResponses returns the accepted response UUIDs.
	RecordResponses(ctx context.Context, reqs []codec.ResponseRequest) ([]string, error)

	FetchAssignmentPEs(ctx context.Context, reqs []codec.FetchExercisesRequest) ([]codec.FetchExercisesResponse, error)
	FetchAssignmentSPEs(ctx context.Context, reqs []codec.FetchExercisesRequest) ([]codec.FetchExercisesResponse, error)
	FetchPracticeWorstAreasExercises(ctx context.Context, reqs []codec.WorstAreasRequest) ([]codec.WorstAreasResponse, error)
	FetchStudentClues(ctx context.Context, reqs []codec.StudentClueRequest) ([]codec.ClueResponse, error)
	FetchTeacherClues(ctx context.Context, reqs []codec.TeacherClueRequest) ([]codec.ClueResponse, error)
}

// Dispatch decodes a stored write payload for op, sends it through c and
// returns the encoded response. Bulk payloads are JSON arrays of items.
func Dispatch(ctx context.Context, c Client, op string, payload []byte) ([]byte, error) {
	switch op {
	case codec.OpCreateEcosystem:
		return call(ctx, payload, c.CreateEcosystem)
	case codec.OpCreateCourse:
		return call(ctx, payload, c.CreateCourse)
	case codec.OpPrepareCourseEcosystem:
		return call(ctx, payload, c.PrepareCourseEcosystem)
	case codec.OpUpdateCourseEcosystems:
		return callBulk(ctx, payload, c.UpdateCourseEcosystems)
	case codec.OpUpdateRosters:
		return callBulk(ctx, payload, c.UpdateRosters)
	case codec.OpUpdateGloballyExcludedExercises:
		return call(ctx, payload, c.UpdateGloballyExcludedExercises)
	case codec.OpUpdateCourseExcludedExercises:
		return call(ctx, payload, c.UpdateCourseExcludedExercises)
	case codec.OpUpdateCourseActiveDates:
		return call(ctx, payload, c.UpdateCourseActiveDates)
	case codec.OpCreateUpdateAssignments:
		return callBulk(ctx, payload, c.CreateUpdateAssignments)
	case codec.OpRecordResponses:
		return callBulk(ctx, payload, c.RecordResponses)
	default:
		return nil, fmt.Errorf("%s is not a write operation", op)
	}
}

func call[Req, Resp any](ctx context.Context, payload []byte, fn func(context.Context, *Req) (*Resp, error)) ([]byte, error) {
	var req Req
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	resp, err := fn(ctx, &req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

func callBulk[Req, Resp any](ctx context.Context, payload []byte, fn func(context.Context, []Req) ([]Resp, error)) ([]byte, error) {
	var reqs []Req
	if err := json.Unmarshal(payload, &reqs); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	resp, err := fn(ctx, reqs)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}
