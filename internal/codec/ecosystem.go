package codec

import (
	"time"

	"github.com/fentz26/recsync/internal/models"
)

var personalizedPoolTypes = map[models.PoolType]string{
	models.PoolReadingDynamic:  string(models.TaskReading),
	models.PoolHomeworkDynamic: string(models.TaskHomework),
	models.PoolPracticeWidget:  string(models.TaskPractice),
	models.PoolConceptCoach:    string(models.TaskConceptCoach),
}

// CreateEcosystem flattens the ecosystem's book into containers and resolves
// every pool entry to an exercise UUID.
func CreateEcosystem(eco *models.Ecosystem, seq int64) (*CreateEcosystemRequest, error) {
	if eco.Book == nil {
		return nil, invalid(OpCreateEcosystem, "ecosystem %s has no book", eco.UUID)
	}
	byID := eco.ExerciseByID()
	resolve := func(ids []int64) ([]string, error) {
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			ex, ok := byID[id]
			if !ok {
				return nil, invalid(OpCreateEcosystem, "pool references unknown exercise %d", id)
			}
			out = append(out, ex.UUID)
		}
		return out, nil
	}

	book := eco.Book
	contents := []Container{{
		ContainerUUID:        book.UUID,
		ContainerParentUUID:  eco.UUID,
		ContainerCnxIdentity: book.CnxID,
		Pools:                []Pool{},
	}}
	pageByID := map[int64]*models.Page{}
	for _, ch := range book.Chapters {
		uuids, err := resolve(ch.AllExercises)
		if err != nil {
			return nil, err
		}
		contents = append(contents, Container{
			ContainerUUID:        ch.UUID,
			ContainerParentUUID:  book.UUID,
			ContainerCnxIdentity: ch.UUID,
			Pools:                []Pool{{UseForClue: true, UseForPersonalizedForAssignmentTypes: []string{}, ExerciseUUIDs: uuids}},
		})

		for _, page := range ch.Pages {
			pageByID[page.ID] = page
			pools := make([]Pool, 0, len(models.PagePoolTypes))
			for _, pt := range models.PagePoolTypes {
				uuids, err := resolve(page.Pool(pt))
				if err != nil {
					return nil, err
				}
				pool := Pool{UseForPersonalizedForAssignmentTypes: []string{}, ExerciseUUIDs: uuids}
				if pt == models.PoolAllExercises {
					pool.UseForClue = true
				} else {
					pool.UseForPersonalizedForAssignmentTypes = []string{personalizedPoolTypes[pt]}
				}
				pools = append(pools, pool)
			}
			contents = append(contents, Container{
				ContainerUUID:        page.UUID,
				ContainerParentUUID:  ch.UUID,
				ContainerCnxIdentity: page.CnxID,
				Pools:                pools,
			})
		}
	}

	exercises := make([]Exercise, 0, len(eco.Exercises))
	for _, ex := range eco.Exercises {
		page, ok := pageByID[ex.PageID]
		if !ok {
			return nil, invalid(OpCreateEcosystem, "exercise %s has no page", ex.UUID)
		}
		los := append([]string{"cnxmod:" + page.ContentUUID}, ex.LOs...)
		exercises = append(exercises, Exercise{
			ExerciseUUID: ex.UUID,
			GroupUUID:    ex.GroupUUID,
			Version:      ex.Version,
			LOs:          dedupe(los),
		})
	}

	return &CreateEcosystemRequest{
		EcosystemUUID:  eco.UUID,
		SequenceNumber: seq,
		Book:           Book{CnxIdentity: book.CnxID, Contents: contents},
		Exercises:      exercises,
		ImportedAt:     FormatTime(eco.CreatedAt),
	}, nil
}

// PrepareInput carries what prepare_course_ecosystem needs.
type PrepareInput struct {
	PreparationUUID string
	Course          *models.Course
	From            *models.Ecosystem
	To              *models.Ecosystem
	Map             *models.ContentMap
	PreparedAt      time.Time
}

// PrepareCourseEcosystem builds phase one of an ecosystem migration from a
// content map between the course's current and next ecosystems.
func PrepareCourseEcosystem(in PrepareInput, seq int64) (*PrepareCourseEcosystemRequest, error) {
	if in.Course == nil || in.From == nil || in.To == nil || in.Map == nil {
		return nil, invalid(OpPrepareCourseEcosystem, "course, ecosystems and content map are required")
	}
	toPages := map[int64]*models.Page{}
	for _, p := range in.To.Pages() {
		toPages[p.ID] = p
	}

	bookMappings := []BookContainerMapping{}
	for _, from := range in.From.Pages() {
		to, ok := toPages[in.Map.PageToPage[from.ID]]
		if !ok {
			continue
		}
		bookMappings = append(bookMappings, BookContainerMapping{
			FromBookContainerUUID: from.UUID,
			ToBookContainerUUID:   to.UUID,
		})
	}
	exMappings := []ExerciseMapping{}
	for _, ex := range in.From.Exercises {
		to, ok := toPages[in.Map.ExerciseToPage[ex.ID]]
		if !ok {
			continue
		}
		exMappings = append(exMappings, ExerciseMapping{
			FromExerciseUUID:    ex.UUID,
			ToBookContainerUUID: to.UUID,
		})
	}

	return &PrepareCourseEcosystemRequest{
		PreparationUUID:   in.PreparationUUID,
		CourseUUID:        in.Course.UUID,
		SequenceNumber:    seq,
		NextEcosystemUUID: in.To.UUID,
		EcosystemMap: EcosystemMap{
			FromEcosystemUUID:     in.From.UUID,
			ToEcosystemUUID:       in.To.UUID,
			BookContainerMappings: bookMappings,
			ExerciseMappings:      exMappings,
		},
		PreparedAt: FormatTime(in.PreparedAt),
	}, nil
}

// UpdateCourseEcosystem builds one item of phase two.
func UpdateCourseEcosystem(requestUUID string, course *models.Course, preparationUUID string, updatedAt time.Time, seq int64) UpdateCourseEcosystemRequest {
	return UpdateCourseEcosystemRequest{
		RequestUUID:     requestUUID,
		CourseUUID:      course.UUID,
		SequenceNumber:  seq,
		PreparationUUID: preparationUUID,
		UpdatedAt:       FormatTime(updatedAt),
	}
}
