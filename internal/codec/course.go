package codec

import (
	"time"

	"github.com/fentz26/recsync/internal/models"
)

// CreateCourse registers a course with its initial ecosystem.
func CreateCourse(c *models.Course, eco *models.Ecosystem, seq int64) (*CreateCourseRequest, error) {
	if eco == nil {
		return nil, invalid(OpCreateCourse, "course %s has no ecosystem", c.UUID)
	}
	return &CreateCourseRequest{
		CourseUUID:     c.UUID,
		EcosystemUUID:  eco.UUID,
		SequenceNumber: seq,
		IsRealCourse:   c.IsReal(),
		StartsAt:       FormatTime(c.StartsAt),
		EndsAt:         FormatTime(c.EndsAt),
		CreatedAt:      FormatTime(c.CreatedAt),
	}, nil
}

// Roster flattens every period and enrollment of a course. Archived periods
// and dropped students are kept with their end timestamps.
func Roster(requestUUID string, r *models.Roster, seq int64) (RosterRequest, error) {
	if r == nil || r.Course == nil {
		return RosterRequest{}, invalid(OpUpdateRosters, "roster has no course")
	}
	periods := make(map[int64]*models.Period, len(r.Periods))
	containers := make([]CourseContainer, 0, len(r.Periods))
	for _, p := range r.Periods {
		periods[p.ID] = p
		containers = append(containers, CourseContainer{
			ContainerUUID:       p.UUID,
			ParentContainerUUID: r.Course.UUID,
			CreatedAt:           FormatTime(p.CreatedAt),
			ArchivedAt:          formatTimePtr(p.ArchivedAt),
		})
	}

	students := make([]RosterStudent, 0, len(r.Students))
	for _, s := range r.Students {
		p, ok := periods[s.PeriodID]
		if !ok {
			return RosterRequest{}, invalid(OpUpdateRosters, "student %s is not in a period of course %s", s.UUID, r.Course.UUID)
		}
		students = append(students, RosterStudent{
			StudentUUID:                 s.UUID,
			ContainerUUID:               p.UUID,
			EnrolledAt:                  FormatTime(s.CreatedAt),
			LastCourseContainerChangeAt: FormatTime(s.EnrolledAt),
			DroppedAt:                   formatTimePtr(s.DroppedAt),
		})
	}

	return RosterRequest{
		RequestUUID:      requestUUID,
		CourseUUID:       r.Course.UUID,
		SequenceNumber:   seq,
		CourseContainers: containers,
		Students:         students,
	}, nil
}

// GroupExclusions turns exercise group UUIDs into exclusions.
func GroupExclusions(groupUUIDs []string) []Exclusion {
	out := make([]Exclusion, 0, len(groupUUIDs))
	for _, g := range groupUUIDs {
		out = append(out, Exclusion{ExerciseGroupUUID: g})
	}
	return out
}

// VersionExclusions turns exercise UUIDs into single-version exclusions.
func VersionExclusions(exerciseUUIDs []string) []Exclusion {
	out := make([]Exclusion, 0, len(exerciseUUIDs))
	for _, u := range exerciseUUIDs {
		out = append(out, Exclusion{ExerciseUUID: u})
	}
	return out
}

// GlobalExclusions builds update_globally_excluded_exercises for one course.
// updatedAt is when the global exclusion list last changed.
func GlobalExclusions(requestUUID string, c *models.Course, exclusions []Exclusion, updatedAt time.Time, seq int64) *ExclusionsRequest {
	if exclusions == nil {
		exclusions = []Exclusion{}
	}
	return &ExclusionsRequest{
		RequestUUID:    requestUUID,
		CourseUUID:     c.UUID,
		SequenceNumber: seq,
		Exclusions:     exclusions,
		UpdatedAt:      FormatTime(updatedAt),
	}
}

// CourseExclusions builds update_course_excluded_exercises from the group
// UUIDs of the course's excluded exercise numbers.
func CourseExclusions(requestUUID string, c *models.Course, groupUUIDs []string, seq int64) *ExclusionsRequest {
	return &ExclusionsRequest{
		RequestUUID:    requestUUID,
		CourseUUID:     c.UUID,
		SequenceNumber: seq,
		Exclusions:     GroupExclusions(groupUUIDs),
		UpdatedAt:      FormatTime(c.UpdatedAt),
	}
}

// ActiveDates builds update_course_active_dates.
func ActiveDates(requestUUID string, c *models.Course, seq int64) *ActiveDatesRequest {
	return &ActiveDatesRequest{
		RequestUUID:    requestUUID,
		CourseUUID:     c.UUID,
		SequenceNumber: seq,
		StartsAt:       FormatTime(c.StartsAt),
		EndsAt:         FormatTime(c.EndsAt),
		UpdatedAt:      FormatTime(c.UpdatedAt),
	}
}
