package models

import "time"

// PoolType names one of the typed exercise pools a page (or chapter) owns.
type PoolType string

const (
	PoolAllExercises    PoolType = "all_exercises"
	PoolReadingDynamic  PoolType = "reading_dynamic"
	PoolHomeworkDynamic PoolType = "homework_dynamic"
	PoolPracticeWidget  PoolType = "practice_widget"
	PoolConceptCoach    PoolType = "concept_coach"
)

// PagePoolTypes lists the pools every page carries, in wire order.
var PagePoolTypes = []PoolType{
	PoolAllExercises,
	PoolReadingDynamic,
	PoolHomeworkDynamic,
	PoolPracticeWidget,
	PoolConceptCoach,
}

// Ecosystem is an immutable, versioned content tree.
type Ecosystem struct {
	ID             int64       `json:"id" yaml:"-"`
	UUID           string      `json:"uuid" yaml:"uuid"`
	Title          string      `json:"title" yaml:"title"`
	SequenceNumber int64       `json:"sequence_number" yaml:"-"`
	Book           *Book       `json:"book" yaml:"book"`
	Exercises      []*Exercise `json:"exercises" yaml:"exercises"`
	CreatedAt      time.Time   `json:"created_at" yaml:"created_at"`
}

// Book is the root container of an ecosystem. Ecosystems hold one book.
type Book struct {
	ID       int64      `json:"id" yaml:"-"`
	UUID     string     `json:"uuid" yaml:"uuid"`
	CnxID    string     `json:"cnx_id" yaml:"cnx_id"`
	Title    string     `json:"title" yaml:"title"`
	Chapters []*Chapter `json:"chapters" yaml:"chapters"`
}

// Chapter groups pages and owns an all-exercises pool.
type Chapter struct {
	ID     int64   `json:"id" yaml:"-"`
	UUID   string  `json:"uuid" yaml:"uuid"`
	Number int     `json:"number" yaml:"number"`
	Title  string  `json:"title" yaml:"title"`
	Pages  []*Page `json:"pages" yaml:"pages"`
	// AllExercises holds exercise IDs; it is filled from the chapter's pages
	// when the ecosystem is stored.
	AllExercises []int64 `json:"all_exercises" yaml:"-"`
}

// Page is a leaf book container. UUID is unique per ecosystem version while
// ContentUUID is stable across versions of the same page.
type Page struct {
	ID          int64                `json:"id" yaml:"-"`
	ChapterID   int64                `json:"chapter_id" yaml:"-"`
	UUID        string               `json:"uuid" yaml:"uuid"`
	ContentUUID string               `json:"content_uuid" yaml:"content_uuid"`
	CnxID       string               `json:"cnx_id" yaml:"cnx_id"`
	Title       string               `json:"title" yaml:"title"`
	Pools       map[PoolType][]int64 `json:"pools" yaml:"-"`
}

// Pool returns the exercise IDs of the page's pool of the given type.
func (p *Page) Pool(t PoolType) []int64 {
	if p.Pools == nil {
		return nil
	}
	return p.Pools[t]
}

// Exercise is a versioned question bound to a page.
type Exercise struct {
	ID        int64    `json:"id" yaml:"-"`
	UUID      string   `json:"uuid" yaml:"uuid"`
	GroupUUID string   `json:"group_uuid" yaml:"group_uuid"`
	Number    int64    `json:"number" yaml:"number"`
	Version   int      `json:"version" yaml:"version"`
	PageID    int64    `json:"page_id" yaml:"-"`
	LOs       []string `json:"los" yaml:"los"`
	// PageUUID and Pools are only used when loading fixtures.
	PageUUID string     `json:"-" yaml:"page_uuid"`
	Pools    []PoolType `json:"-" yaml:"pools"`
}

// Pages returns the ecosystem's pages in book order.
func (e *Ecosystem) Pages() []*Page {
	if e.Book == nil {
		return nil
	}
	var pages []*Page
	for _, ch := range e.Book.Chapters {
		pages = append(pages, ch.Pages...)
	}
	return pages
}

// ExerciseByID indexes the ecosystem's exercises.
func (e *Ecosystem) ExerciseByID() map[int64]*Exercise {
	out := make(map[int64]*Exercise, len(e.Exercises))
	for _, ex := range e.Exercises {
		out[ex.ID] = ex
	}
	return out
}

// ContentMap records how the pages and exercises of one ecosystem correspond
// to pages of another. Keys and values are relational IDs.
type ContentMap struct {
	FromEcosystemID int64           `json:"from_ecosystem_id"`
	ToEcosystemID   int64           `json:"to_ecosystem_id"`
	PageToPage      map[int64]int64 `json:"page_to_page"`
	ExerciseToPage  map[int64]int64 `json:"exercise_to_page"`
	CreatedAt       time.Time       `json:"created_at"`
}
