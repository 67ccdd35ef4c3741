package controlplane

import (
	"context"
	"fmt"

	"github.com/fentz26/recsync/internal/codec"
	"github.com/fentz26/recsync/internal/transport"
	"github.com/google/uuid"
)

// ClueRequest asks for one clue. StudentUUID selects a student clue;
// otherwise PeriodUUID selects a teacher clue over the period's students.
type ClueRequest struct {
	StudentUUID       string
	PeriodUUID        string
	BookContainerUUID string
}

// ClueResult is one clue. Local is true when it was computed by the local
// estimator because the service had none ready.
type ClueResult struct {
	Request ClueRequest
	Data    codec.ClueData
	Status  string
	Local   bool
}

// FetchStudentClues returns one clue per request, in order.
func (s *Service) FetchStudentClues(ctx context.Context, reqs []ClueRequest) ([]ClueResult, error) {
	const op = codec.OpFetchStudentClues
	wire := make([]codec.StudentClueRequest, len(reqs))
	for i, r := range reqs {
		alg := s.opts.Algorithms.Algorithm(op)
		if st, err := s.store.GetStudentByUUID(ctx, r.StudentUUID); err == nil {
			if c, err := s.store.GetCourse(ctx, st.CourseID); err == nil {
				alg = s.algorithm(c, op)
			}
		}
		wire[i] = codec.StudentClue(uuid.NewString(), r.StudentUUID, r.BookContainerUUID, alg)
	}
	resps, err := s.client.FetchStudentClues(ctx, wire)
	if err != nil {
		return nil, err
	}
	return s.mergeClues(op, reqs, resps, func(i int) (codec.ClueResponse, error) {
		local, err := s.fallback.FetchStudentClues(ctx, wire[i:i+1])
		if err != nil {
			return codec.ClueResponse{}, err
		}
		return local[0], nil
	})
}

// FetchTeacherClues returns one clue per request, in order.
func (s *Service) FetchTeacherClues(ctx context.Context, reqs []ClueRequest) ([]ClueResult, error) {
	const op = codec.OpFetchTeacherClues
	wire := make([]codec.TeacherClueRequest, len(reqs))
	for i, r := range reqs {
		alg := s.opts.Algorithms.Algorithm(op)
		if p, err := s.store.GetPeriodByUUID(ctx, r.PeriodUUID); err == nil {
			if c, err := s.store.GetCourse(ctx, p.CourseID); err == nil {
				alg = s.algorithm(c, op)
			}
		}
		wire[i] = codec.TeacherClue(uuid.NewString(), r.PeriodUUID, r.BookContainerUUID, alg)
	}
	resps, err := s.client.FetchTeacherClues(ctx, wire)
	if err != nil {
		return nil, err
	}
	return s.mergeClues(op, reqs, resps, func(i int) (codec.ClueResponse, error) {
		local, err := s.fallback.FetchTeacherClues(ctx, wire[i:i+1])
		if err != nil {
			return codec.ClueResponse{}, err
		}
		return local[0], nil
	})
}

// mergeClues keeps ready remote clues and computes the rest locally.
func (s *Service) mergeClues(op string, reqs []ClueRequest, resps []codec.ClueResponse, local func(i int) (codec.ClueResponse, error)) ([]ClueResult, error) {
	if len(resps) != len(reqs) {
		return nil, &transport.ProtocolError{Operation: op, Reason: fmt.Sprintf("%d responses for %d requests", len(resps), len(reqs))}
	}
	out := make([]ClueResult, len(reqs))
	for i, r := range resps {
		out[i] = ClueResult{Request: reqs[i], Data: r.ClueData, Status: r.ClueStatus}
		if r.ClueStatus == codec.ClueReady {
			continue
		}
		lr, err := local(i)
		if err != nil {
			return nil, err
		}
		s.metrics.RecordFallback(op, r.ClueStatus)
		s.log.Debug("using local clue", "operation", op, "status", r.ClueStatus, "book_container", reqs[i].BookContainerUUID)
		out[i] = ClueResult{Request: reqs[i], Data: lr.ClueData, Status: lr.ClueStatus, Local: true}
	}
	return out, nil
}
