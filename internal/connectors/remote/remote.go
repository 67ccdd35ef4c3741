// Package remote implements the recommendation service client over HTTP.
package remote

import (
	"context"

	"github.com/fentz26/recsync/internal/codec"
	"github.com/fentz26/recsync/internal/connectors"
	"github.com/fentz26/recsync/internal/transport"
)

// Client sends every operation to the recommendation service.
type Client struct {
	t *transport.Client
}

var _ connectors.Client = (*Client)(nil)

// New wraps a transport.
func New(t *transport.Client) *Client {
	return &Client{t: t}
}

// Name returns the client identifier.
func (c *Client) Name() string { return "real" }

func single[Resp any](ctx context.Context, c *Client, op string, req any) (*Resp, error) {
	var out Resp
	if err := c.t.Single(ctx, op, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateEcosystem(ctx context.Context, req *codec.CreateEcosystemRequest) (*codec.CreateEcosystemResponse, error) {
	return single[codec.CreateEcosystemResponse](ctx, c, codec.OpCreateEcosystem, req)
}

func (c *Client) CreateCourse(ctx context.Context, req *codec.CreateCourseRequest) (*codec.CreateCourseResponse, error) {
	return single[codec.CreateCourseResponse](ctx, c, codec.OpCreateCourse, req)
}

func (c *Client) PrepareCourseEcosystem(ctx context.Context, req *codec.PrepareCourseEcosystemRequest) (*codec.PrepareCourseEcosystemResponse, error) {
	return single[codec.PrepareCourseEcosystemResponse](ctx, c, codec.OpPrepareCourseEcosystem, req)
}

func (c *Client) UpdateCourseEcosystems(ctx context.Context, reqs []codec.UpdateCourseEcosystemRequest) ([]codec.UpdateCourseEcosystemResponse, error) {
	return transport.BulkOp[codec.UpdateCourseEcosystemRequest, codec.UpdateCourseEcosystemResponse](ctx, c.t, codec.OpUpdateCourseEcosystems, reqs)
}

func (c *Client) UpdateRosters(ctx context.Context, reqs []codec.RosterRequest) ([]codec.RosterResponse, error) {
	return transport.BulkOp[codec.RosterRequest, codec.RosterResponse](ctx, c.t, codec.OpUpdateRosters, reqs)
}

func (c *Client) UpdateGloballyExcludedExercises(ctx context.Context, req *codec.ExclusionsRequest) (*codec.ExclusionsResponse, error) {
	return single[codec.ExclusionsResponse](ctx, c, codec.OpUpdateGloballyExcludedExercises, req)
}

func (c *Client) UpdateCourseExcludedExercises(ctx context.Context, req *codec.ExclusionsRequest) (*codec.ExclusionsResponse, error) {
	return single[codec.ExclusionsResponse](ctx, c, codec.OpUpdateCourseExcludedExercises, req)
}

func (c *Client) UpdateCourseActiveDates(ctx context.Context, req *codec.ActiveDatesRequest) (*codec.ActiveDatesResponse, error) {
	return single[codec.ActiveDatesResponse](ctx, c, codec.OpUpdateCourseActiveDates, req)
}

func (c *Client) CreateUpdateAssignments(ctx context.Context, reqs []codec.AssignmentRequest) ([]codec.AssignmentResponse, error) {
	return transport.BulkOp[codec.AssignmentRequest, codec.AssignmentResponse](ctx, c.t, codec.OpCreateUpdateAssignments, reqs)
}

func (c *Client) RecordResponses(ctx context.Context, reqs []codec.ResponseRequest) ([]string, error) {
	return transport.BulkOp[codec.ResponseRequest, string](ctx, c.t, codec.OpRecordResponses, reqs)
}

func (c *Client) FetchAssignmentPEs(ctx context.Context, reqs []codec.FetchExercisesRequest) ([]codec.FetchExercisesResponse, error) {
	return transport.BulkOp[codec.FetchExercisesRequest, codec.FetchExercisesResponse](ctx, c.t, codec.OpFetchAssignmentPEs, reqs)
}

func (c *Client) FetchAssignmentSPEs(ctx context.Context, reqs []codec.FetchExercisesRequest) ([]codec.FetchExercisesResponse, error) {
	return transport.BulkOp[codec.FetchExercisesRequest, codec.FetchExercisesResponse](ctx, c.t, codec.OpFetchAssignmentSPEs, reqs)
}

func (c *Client) FetchPracticeWorstAreasExercises(ctx context.Context, reqs []codec.WorstAreasRequest) ([]codec.WorstAreasResponse, error) {
	return transport.BulkOp[codec.WorstAreasRequest, codec.WorstAreasResponse](ctx, c.t, codec.OpFetchPracticeWorstAreasExercises, reqs)
}

func (c *Client) FetchStudentClues(ctx context.Context, reqs []codec.StudentClueRequest) ([]codec.ClueResponse, error) {
	return transport.BulkOp[codec.StudentClueRequest, codec.ClueResponse](ctx, c.t, codec.OpFetchStudentClues, reqs)
}

func (c *Client) FetchTeacherClues(ctx context.Context, reqs []codec.TeacherClueRequest) ([]codec.ClueResponse, error) {
	return transport.BulkOp[codec.TeacherClueRequest, codec.ClueResponse](ctx, c.t, codec.OpFetchTeacherClues, reqs)
}
