package codec

// FetchExercises builds a fetch_assignment_pes or fetch_assignment_spes item.
// max is omitted from the wire when nil.
func FetchExercises(requestUUID, assignmentUUID, algorithm string, max *int) FetchExercisesRequest {
	return FetchExercisesRequest{
		RequestUUID:     requestUUID,
		AssignmentUUID:  assignmentUUID,
		AlgorithmName:   algorithm,
		MaxNumExercises: max,
	}
}

// WorstAreas builds a fetch_practice_worst_areas_exercises item.
func WorstAreas(requestUUID, studentUUID, algorithm string, max *int) WorstAreasRequest {
	return WorstAreasRequest{
		RequestUUID:     requestUUID,
		StudentUUID:     studentUUID,
		AlgorithmName:   algorithm,
		MaxNumExercises: max,
	}
}

// StudentClue builds a fetch_student_clues item.
func StudentClue(requestUUID, studentUUID, bookContainerUUID, algorithm string) StudentClueRequest {
	return StudentClueRequest{
		RequestUUID:       requestUUID,
		StudentUUID:       studentUUID,
		BookContainerUUID: bookContainerUUID,
		AlgorithmName:     algorithm,
	}
}

// TeacherClue builds a fetch_teacher_clues item for one period.
func TeacherClue(requestUUID, periodUUID, bookContainerUUID, algorithm string) TeacherClueRequest {
	return TeacherClueRequest{
		RequestUUID:         requestUUID,
		CourseContainerUUID: periodUUID,
		BookContainerUUID:   bookContainerUUID,
		AlgorithmName:       algorithm,
	}
}
