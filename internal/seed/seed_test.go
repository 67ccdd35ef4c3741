package seed

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fentz26/recsync/internal/models"
	"github.com/fentz26/recsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadSample(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	f, err := LoadSample(ctx, s)
	require.NoError(t, err)
	require.Len(t, f.Courses, 1)

	course, err := s.GetCourseByUUID(ctx, "course-1")
	require.NoError(t, err)
	ecoID, err := s.CurrentEcosystemID(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, f.Ecosystems[0].ID, ecoID)

	task, err := s.GetTaskByUUID(ctx, "task-1")
	require.NoError(t, err)
	eco, err := s.GetEcosystem(ctx, ecoID)
	require.NoError(t, err)
	assert.Equal(t, []int64{eco.Pages()[0].ID}, task.CorePageIDs)
	assert.Equal(t, 2, task.StepsInGroup(models.GroupPersonalized))
	assert.Equal(t, 1, task.StepsInGroup(models.GroupSpacedPractice))

	tes := task.TaskedExercises()
	require.Len(t, tes, 2)
	assert.Equal(t, f.Ecosystems[0].Exercises[0].ID, tes[0].ExerciseID)
	require.NotNil(t, tes[1].IsCorrect)
	assert.False(t, *tes[1].IsCorrect)

	roster, err := s.GetRoster(ctx, course.ID)
	require.NoError(t, err)
	assert.Len(t, roster.Students, 2)
}

func TestLoadRejectsDanglingReferences(t *testing.T) {
	cases := map[string]string{
		"ecosystem": `
courses:
  - uuid: c1
    ecosystem_uuid: missing
`,
		"period": `
ecosystems:
  - uuid: e1
    book: {uuid: e1, chapters: []}
courses:
  - uuid: c1
    ecosystem_uuid: e1
    students:
      - {uuid: s1, period_uuid: missing}
`,
		"page": `
ecosystems:
  - uuid: e1
    book: {uuid: e1, chapters: []}
courses:
  - uuid: c1
    ecosystem_uuid: e1
    tasks:
      - {uuid: t1, type: reading, core_page_uuids: [missing]}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			f, err := Parse(strings.NewReader(doc))
			require.NoError(t, err)
			_, err = Load(context.Background(), newTestStore(t), f)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "missing")
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader("ecosystems: []\nbogus: 1\n"))
	assert.Error(t, err)
}

func TestLoadStoresSettings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	f, err := Parse(strings.NewReader("settings:\n  excluded_ids: \"3, 4@1\"\n"))
	require.NoError(t, err)
	res, err := Load(ctx, s, f)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Settings)

	value, _, err := s.GetSetting(ctx, store.SettingExcludedExercises)
	require.NoError(t, err)
	assert.Equal(t, "3, 4@1", value)
}

func TestLoadRejectsBadExclusions(t *testing.T) {
	f, err := Parse(strings.NewReader("settings:\n  excluded_ids: \"3@x\"\n"))
	require.NoError(t, err)
	_, err = Load(context.Background(), newTestStore(t), f)
	assert.Error(t, err)
}
