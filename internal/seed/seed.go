// Package seed loads YAML fixtures of ecosystems, courses, rosters, tasks and
// settings into the store.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"

	"github.com/fentz26/recsync/internal/codec"
	"github.com/fentz26/recsync/internal/models"
	"github.com/fentz26/recsync/internal/store"
	"gopkg.in/yaml.v3"
)

// Sample is a small two-version book with one enrolled course.
//
//go:embed sample.yaml
var Sample []byte

// Store is the write access the loader needs.
type Store interface {
	CreateEcosystem(ctx context.Context, eco *models.Ecosystem) error
	CreateCourse(ctx context.Context, c *models.Course, ecosystemID int64) error
	CreatePeriod(ctx context.Context, p *models.Period) error
	CreateStudent(ctx context.Context, st *models.Student) error
	CreateTask(ctx context.Context, t *models.Task) error
	SetSetting(ctx context.Context, key, value string) error
}

// Fixture is the top-level document.
type Fixture struct {
	Ecosystems []*models.Ecosystem `yaml:"ecosystems"`
	Courses    []*Course           `yaml:"courses"`
	// Settings are stored as-is, e.g. excluded_ids: "12, 34@2".
	Settings map[string]string `yaml:"settings"`
}

// Course is a course with everything it owns.
type Course struct {
	models.Course `yaml:",inline"`
	EcosystemUUID string            `yaml:"ecosystem_uuid"`
	Periods       []*models.Period  `yaml:"periods"`
	Students      []*models.Student `yaml:"students"`
	Tasks         []*models.Task    `yaml:"tasks"`
}

// Result counts what was loaded.
type Result struct {
	Ecosystems int
	Courses    int
	Students   int
	Tasks      int
	Settings   int
}

// Parse decodes a fixture.
func Parse(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &f, nil
}

// Load stores every record of f, resolving UUID references to IDs. Records
// are created in dependency order; IDs are filled in on f.
func Load(ctx context.Context, s Store, f *Fixture) (*Result, error) {
	res := &Result{}
	ecosystems := map[string]*models.Ecosystem{}
	for _, eco := range f.Ecosystems {
		if err := s.CreateEcosystem(ctx, eco); err != nil {
			return res, fmt.Errorf("ecosystem %s: %w", eco.UUID, err)
		}
		ecosystems[eco.UUID] = eco
		res.Ecosystems++
	}

	for _, c := range f.Courses {
		eco, ok := ecosystems[c.EcosystemUUID]
		if !ok {
			return res, fmt.Errorf("course %s: unknown ecosystem %q", c.UUID, c.EcosystemUUID)
		}
		if err := s.CreateCourse(ctx, &c.Course, eco.ID); err != nil {
			return res, fmt.Errorf("course %s: %w", c.UUID, err)
		}
		res.Courses++

		periods := map[string]*models.Period{}
		for _, p := range c.Periods {
			p.CourseID = c.ID
			if err := s.CreatePeriod(ctx, p); err != nil {
				return res, fmt.Errorf("period %s: %w", p.UUID, err)
			}
			periods[p.UUID] = p
		}

		students := map[string]*models.Student{}
		for _, st := range c.Students {
			p, ok := periods[st.PeriodUUID]
			if !ok {
				return res, fmt.Errorf("student %s: unknown period %q", st.UUID, st.PeriodUUID)
			}
			st.CourseID = c.ID
			st.PeriodID = p.ID
			if err := s.CreateStudent(ctx, st); err != nil {
				return res, fmt.Errorf("student %s: %w", st.UUID, err)
			}
			students[st.UUID] = st
			res.Students++
		}

		for _, t := range c.Tasks {
			if err := resolveTask(t, c.ID, eco, students); err != nil {
				return res, err
			}
			if err := s.CreateTask(ctx, t); err != nil {
				return res, fmt.Errorf("task %s: %w", t.UUID, err)
			}
			res.Tasks++
		}
	}

	for key, value := range f.Settings {
		if key == store.SettingExcludedExercises {
			if _, _, err := codec.ParseExcludedIDs(value); err != nil {
				return res, fmt.Errorf("setting %s: %w", key, err)
			}
		}
		if err := s.SetSetting(ctx, key, value); err != nil {
			return res, fmt.Errorf("setting %s: %w", key, err)
		}
		res.Settings++
	}
	return res, nil
}

// LoadSample parses and loads Sample.
func LoadSample(ctx context.Context, s Store) (*Fixture, error) {
	f, err := Parse(bytes.NewReader(Sample))
	if err != nil {
		return nil, err
	}
	if _, err := Load(ctx, s, f); err != nil {
		return nil, err
	}
	return f, nil
}

func resolveTask(t *models.Task, courseID int64, eco *models.Ecosystem, students map[string]*models.Student) error {
	t.CourseID = courseID
	t.EcosystemID = eco.ID
	if t.StudentUUID != "" {
		st, ok := students[t.StudentUUID]
		if !ok {
			return fmt.Errorf("task %s: unknown student %q", t.UUID, t.StudentUUID)
		}
		t.StudentID = st.ID
	}

	pages := map[string]int64{}
	for _, p := range eco.Pages() {
		pages[p.UUID] = p.ID
	}
	t.CorePageIDs = t.CorePageIDs[:0]
	for _, u := range t.CorePageUUIDs {
		id, ok := pages[u]
		if !ok {
			return fmt.Errorf("task %s: unknown page %q", t.UUID, u)
		}
		t.CorePageIDs = append(t.CorePageIDs, id)
	}

	exercises := map[string]int64{}
	for _, ex := range eco.Exercises {
		exercises[ex.UUID] = ex.ID
	}
	for _, step := range t.Steps {
		if step.Exercise == nil {
			continue
		}
		id, ok := exercises[step.Exercise.ExerciseUUID]
		if !ok {
			return fmt.Errorf("task %s: unknown exercise %q", t.UUID, step.Exercise.ExerciseUUID)
		}
		step.Exercise.ExerciseID = id
	}
	return nil
}
