// Package codec maps domain records to the recommendation service's wire
// format. Builders are pure: they take loaded records and claimed sequence
// numbers and never touch storage or the network.
package codec

// Operation names. Each is also the endpoint path.
const (
	OpCreateEcosystem                  = "create_ecosystem"
	OpCreateCourse                     = "create_course"
	OpPrepareCourseEcosystem           = "prepare_course_ecosystem"
	OpUpdateCourseEcosystems           = "update_course_ecosystems"
	OpUpdateRosters                    = "update_rosters"
	OpUpdateGloballyExcludedExercises  = "update_globally_excluded_exercises"
	OpUpdateCourseExcludedExercises    = "update_course_excluded_exercises"
	OpUpdateCourseActiveDates          = "update_course_active_dates"
	OpCreateUpdateAssignments          = "create_update_assignments"
	OpRecordResponses                  = "record_responses"
	OpFetchAssignmentPEs               = "fetch_assignment_pes"
	OpFetchAssignmentSPEs              = "fetch_assignment_spes"
	OpFetchPracticeWorstAreasExercises = "fetch_practice_worst_areas_exercises"
	OpFetchStudentClues                = "fetch_student_clues"
	OpFetchTeacherClues                = "fetch_teacher_clues"
)

// BulkKeys names the request and response arrays of a bulk operation.
type BulkKeys struct {
	Requests  string
	Responses string
}

// Bulk lists the bulk operations and their envelope keys.
var Bulk = map[string]BulkKeys{
	OpUpdateCourseEcosystems:           {"update_requests", "update_responses"},
	OpUpdateRosters:                    {"rosters", "updated_rosters"},
	OpCreateUpdateAssignments:          {"assignments", "updated_assignments"},
	OpRecordResponses:                  {"responses", "recorded_response_uuids"},
	OpFetchAssignmentPEs:               {"pe_requests", "pe_responses"},
	OpFetchAssignmentSPEs:              {"spe_requests", "spe_responses"},
	OpFetchPracticeWorstAreasExercises: {"worst_areas_requests", "worst_areas_responses"},
	OpFetchStudentClues:                {"student_clue_requests", "student_clue_responses"},
	OpFetchTeacherClues:                {"teacher_clue_requests", "teacher_clue_responses"},
}

// DefaultMaxBatch is the bulk chunk size unless overridden per operation.
const DefaultMaxBatch = 1000

// MaxBatch holds the built-in per-operation chunk sizes.
var MaxBatch = map[string]int{
	OpUpdateRosters: 100,
}

// Status values returned by the service.
const (
	AssignmentReady   = "assignment_ready"
	AssignmentUnready = "assignment_unready"
	AssignmentUnknown = "assignment_unknown"

	StudentReady   = "student_ready"
	StudentUnready = "student_unready"
	StudentUnknown = "student_unknown"

	ClueReady   = "clue_ready"
	ClueUnready = "clue_unready"
	ClueUnknown = "clue_unknown"

	StatusAccepted = "accepted"
)

// --- create_ecosystem ---

type CreateEcosystemRequest struct {
	EcosystemUUID  string     `json:"ecosystem_uuid"`
	SequenceNumber int64      `json:"sequence_number"`
	Book           Book       `json:"book"`
	Exercises      []Exercise `json:"exercises"`
	ImportedAt     string     `json:"imported_at"`
}

type Book struct {
	CnxIdentity string      `json:"cnx_identity"`
	Contents    []Container `json:"contents"`
}

// Container is a book, chapter or page.
type Container struct {
	ContainerUUID        string `json:"container_uuid"`
	ContainerParentUUID  string `json:"container_parent_uuid"`
	ContainerCnxIdentity string `json:"container_cnx_identity"`
	Pools                []Pool `json:"pools"`
}

type Pool struct {
	UseForClue                           bool     `json:"use_for_clue"`
	UseForPersonalizedForAssignmentTypes []string `json:"use_for_personalized_for_assignment_types"`
	ExerciseUUIDs                        []string `json:"exercise_uuids"`
}

type Exercise struct {
	ExerciseUUID string   `json:"exercise_uuid"`
	GroupUUID    string   `json:"group_uuid"`
	Version      int      `json:"version"`
	LOs          []string `json:"los"`
}

type CreateEcosystemResponse struct {
	CreatedEcosystemUUID string `json:"created_ecosystem_uuid"`
}

// --- create_course ---

type CreateCourseRequest struct {
	CourseUUID     string `json:"course_uuid"`
	EcosystemUUID  string `json:"ecosystem_uuid"`
	SequenceNumber int64  `json:"sequence_number"`
	IsRealCourse   bool   `json:"is_real_course"`
	StartsAt       string `json:"starts_at"`
	EndsAt         string `json:"ends_at"`
	CreatedAt      string `json:"created_at"`
}

type CreateCourseResponse struct {
	CreatedCourseUUID string `json:"created_course_uuid"`
}

// --- prepare_course_ecosystem / update_course_ecosystems ---

type PrepareCourseEcosystemRequest struct {
	PreparationUUID   string       `json:"preparation_uuid"`
	CourseUUID        string       `json:"course_uuid"`
	SequenceNumber    int64        `json:"sequence_number"`
	NextEcosystemUUID string       `json:"next_ecosystem_uuid"`
	EcosystemMap      EcosystemMap `json:"ecosystem_map"`
	PreparedAt        string       `json:"prepared_at"`
}

type EcosystemMap struct {
	FromEcosystemUUID     string                 `json:"from_ecosystem_uuid"`
	ToEcosystemUUID       string                 `json:"to_ecosystem_uuid"`
	BookContainerMappings []BookContainerMapping `json:"book_container_mappings"`
	ExerciseMappings      []ExerciseMapping      `json:"exercise_mappings"`
}

type BookContainerMapping struct {
	FromBookContainerUUID string `json:"from_book_container_uuid"`
	ToBookContainerUUID   string `json:"to_book_container_uuid"`
}

type ExerciseMapping struct {
	FromExerciseUUID    string `json:"from_exercise_uuid"`
	ToBookContainerUUID string `json:"to_book_container_uuid"`
}

type PrepareCourseEcosystemResponse struct {
	Status string `json:"status"`
}

type UpdateCourseEcosystemRequest struct {
	RequestUUID     string `json:"request_uuid"`
	CourseUUID      string `json:"course_uuid"`
	SequenceNumber  int64  `json:"sequence_number"`
	PreparationUUID string `json:"preparation_uuid"`
	UpdatedAt       string `json:"updated_at"`
}

type UpdateCourseEcosystemResponse struct {
	RequestUUID  string `json:"request_uuid"`
	UpdateStatus string `json:"update_status"`
}

// --- update_rosters ---

type RosterRequest struct {
	RequestUUID      string            `json:"request_uuid"`
	CourseUUID       string            `json:"course_uuid"`
	SequenceNumber   int64             `json:"sequence_number"`
	CourseContainers []CourseContainer `json:"course_containers"`
	Students         []RosterStudent   `json:"students"`
}

type CourseContainer struct {
	ContainerUUID       string `json:"container_uuid"`
	ParentContainerUUID string `json:"parent_container_uuid"`
	CreatedAt           string `json:"created_at"`
	ArchivedAt          string `json:"archived_at,omitempty"`
}

type RosterStudent struct {
	StudentUUID                 string `json:"student_uuid"`
	ContainerUUID               string `json:"container_uuid"`
	EnrolledAt                  string `json:"enrolled_at"`
	LastCourseContainerChangeAt string `json:"last_course_container_change_at"`
	DroppedAt                   string `json:"dropped_at,omitempty"`
}

type RosterResponse struct {
	RequestUUID       string `json:"request_uuid"`
	UpdatedCourseUUID string `json:"updated_course_uuid"`
}

// --- exclusions ---

type ExclusionsRequest struct {
	RequestUUID    string      `json:"request_uuid"`
	CourseUUID     string      `json:"course_uuid"`
	SequenceNumber int64       `json:"sequence_number"`
	Exclusions     []Exclusion `json:"exclusions"`
	UpdatedAt      string      `json:"updated_at"`
}

// Exclusion excludes either a whole exercise group or one exercise version.
type Exclusion struct {
	ExerciseGroupUUID string `json:"exercise_group_uuid,omitempty"`
	ExerciseUUID      string `json:"exercise_uuid,omitempty"`
}

type ExclusionsResponse struct {
	Status string `json:"status"`
}

// --- update_course_active_dates ---

type ActiveDatesRequest struct {
	RequestUUID    string `json:"request_uuid"`
	CourseUUID     string `json:"course_uuid"`
	SequenceNumber int64  `json:"sequence_number"`
	StartsAt       string `json:"starts_at"`
	EndsAt         string `json:"ends_at"`
	UpdatedAt      string `json:"updated_at"`
}

type ActiveDatesResponse struct {
	UpdatedCourseUUID string `json:"updated_course_uuid"`
}

// --- create_update_assignments ---

type AssignmentRequest struct {
	RequestUUID                string             `json:"request_uuid"`
	CourseUUID                 string             `json:"course_uuid"`
	SequenceNumber             int64              `json:"sequence_number"`
	AssignmentUUID             string             `json:"assignment_uuid"`
	IsDeleted                  bool               `json:"is_deleted"`
	EcosystemUUID              string             `json:"ecosystem_uuid"`
	StudentUUID                string             `json:"student_uuid"`
	AssignmentType             string             `json:"assignment_type"`
	ExclusionInfo              ExclusionInfo      `json:"exclusion_info"`
	AssignedBookContainerUUIDs []string           `json:"assigned_book_container_uuids"`
	GoalNumTutorAssignedSPEs   int                `json:"goal_num_tutor_assigned_spes"`
	SPEsAreAssigned            bool               `json:"spes_are_assigned"`
	GoalNumTutorAssignedPEs    int                `json:"goal_num_tutor_assigned_pes"`
	PEsAreAssigned             bool               `json:"pes_are_assigned"`
	AssignedExercises          []AssignedExercise `json:"assigned_exercises"`
	CreatedAt                  string             `json:"created_at"`
	UpdatedAt                  string             `json:"updated_at"`
}

type ExclusionInfo struct {
	OpensAt    string `json:"opens_at,omitempty"`
	DueAt      string `json:"due_at,omitempty"`
	FeedbackAt string `json:"feedback_at,omitempty"`
}

type AssignedExercise struct {
	TrialUUID    string `json:"trial_uuid"`
	ExerciseUUID string `json:"exercise_uuid"`
	IsSPE        bool   `json:"is_spe"`
	IsPE         bool   `json:"is_pe"`
}

type AssignmentResponse struct {
	RequestUUID           string `json:"request_uuid"`
	UpdatedAssignmentUUID string `json:"updated_assignment_uuid"`
}

// --- record_responses ---

type ResponseRequest struct {
	ResponseUUID   string `json:"response_uuid"`
	CourseUUID     string `json:"course_uuid"`
	SequenceNumber int64  `json:"sequence_number"`
	EcosystemUUID  string `json:"ecosystem_uuid"`
	TrialUUID      string `json:"trial_uuid"`
	StudentUUID    string `json:"student_uuid"`
	ExerciseUUID   string `json:"exercise_uuid"`
	IsCorrect      bool   `json:"is_correct"`
	IsRealResponse bool   `json:"is_real_response"`
	RespondedAt    string `json:"responded_at"`
}

// --- fetches ---

type FetchExercisesRequest struct {
	RequestUUID     string `json:"request_uuid"`
	AssignmentUUID  string `json:"assignment_uuid"`
	AlgorithmName   string `json:"algorithm_name"`
	MaxNumExercises *int   `json:"max_num_exercises,omitempty"`
}

type FetchExercisesResponse struct {
	RequestUUID      string   `json:"request_uuid"`
	AssignmentUUID   string   `json:"assignment_uuid,omitempty"`
	ExerciseUUIDs    []string `json:"exercise_uuids"`
	AssignmentStatus string   `json:"assignment_status"`
}

type WorstAreasRequest struct {
	RequestUUID     string `json:"request_uuid"`
	StudentUUID     string `json:"student_uuid"`
	AlgorithmName   string `json:"algorithm_name"`
	MaxNumExercises *int   `json:"max_num_exercises,omitempty"`
}

type WorstAreasResponse struct {
	RequestUUID   string   `json:"request_uuid"`
	StudentUUID   string   `json:"student_uuid"`
	ExerciseUUIDs []string `json:"exercise_uuids"`
	StudentStatus string   `json:"student_status"`
}

type StudentClueRequest struct {
	RequestUUID       string `json:"request_uuid"`
	StudentUUID       string `json:"student_uuid"`
	BookContainerUUID string `json:"book_container_uuid"`
	AlgorithmName     string `json:"algorithm_name"`
}

type TeacherClueRequest struct {
	RequestUUID         string `json:"request_uuid"`
	CourseContainerUUID string `json:"course_container_uuid"`
	BookContainerUUID   string `json:"book_container_uuid"`
	AlgorithmName       string `json:"algorithm_name"`
}

type ClueResponse struct {
	RequestUUID string   `json:"request_uuid"`
	ClueData    ClueData `json:"clue_data"`
	ClueStatus  string   `json:"clue_status"`
}

// ClueData is a mastery estimate. Interpretation is only filled in by local
// estimates.
type ClueData struct {
	Minimum        float64             `json:"minimum"`
	MostLikely     float64             `json:"most_likely"`
	Maximum        float64             `json:"maximum"`
	IsReal         bool                `json:"is_real"`
	Interpretation *ClueInterpretation `json:"interpretation,omitempty"`
}

type ClueInterpretation struct {
	Level      string `json:"level"`
	Confidence string `json:"confidence"`
	SampleSize string `json:"sample_size"`
}
