package picker

import (
	"testing"

	"github.com/fentz26/recsync/internal/codec"
	"github.com/fentz26/recsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEcosystem() *models.Ecosystem {
	eco := &models.Ecosystem{Book: &models.Book{Chapters: []*models.Chapter{{
		Pages: []*models.Page{
			{ID: 1, Pools: map[models.PoolType][]int64{
				models.PoolHomeworkDynamic: {1, 2},
				models.PoolAllExercises:    {1, 2, 3, 4},
			}},
			{ID: 2, Pools: map[models.PoolType][]int64{
				models.PoolHomeworkDynamic: {5},
				models.PoolAllExercises:    {5, 6},
			}},
		},
	}}}}
	for i := int64(1); i <= 6; i++ {
		eco.Exercises = append(eco.Exercises, &models.Exercise{ID: i, Number: 100 + i})
	}
	return eco
}

func ids(exs []*models.Exercise) []int64 {
	out := make([]int64, 0, len(exs))
	for _, ex := range exs {
		out = append(out, ex.ID)
	}
	return out
}

func TestTiersDeduplicateAndFilter(t *testing.T) {
	tiers := Tiers(testEcosystem(), []int64{1, 2, 99},
		[]models.PoolType{models.PoolHomeworkDynamic, models.PoolAllExercises},
		Filter{ExerciseIDs: map[int64]bool{2: true}, Numbers: map[int64]bool{106: true}})

	require.Len(t, tiers, 2)
	assert.Equal(t, []int64{1, 5}, ids(tiers[0]))
	assert.Equal(t, []int64{3, 4}, ids(tiers[1]))
}

func TestTiersFilterExcludedVersions(t *testing.T) {
	eco := testEcosystem()
	eco.Exercises[2].Version = 2

	tiers := Tiers(eco, []int64{1}, []models.PoolType{models.PoolAllExercises},
		Filter{Versions: map[codec.ExcludedVersion]bool{{Number: 103, Version: 2}: true, {Number: 104, Version: 7}: true}})

	require.Len(t, tiers, 1)
	assert.Equal(t, []int64{1, 2, 4}, ids(tiers[0]))
}

func TestPickPrefersEarlierTiers(t *testing.T) {
	tiers := Tiers(testEcosystem(), []int64{1, 2},
		[]models.PoolType{models.PoolHomeworkDynamic, models.PoolAllExercises}, Filter{})

	got := Pick(tiers, 4, "task-1")
	require.Len(t, got, 4)
	assert.ElementsMatch(t, []int64{1, 2, 5}, ids(got[:3]))
	assert.Contains(t, []int64{3, 4, 6}, got[3].ID)

	assert.Equal(t, ids(got), ids(Pick(tiers, 4, "task-1")), "same seed picks the same exercises")
	assert.Len(t, Pick(tiers, 10, "task-1"), 6)
	assert.Empty(t, Pick(tiers, 0, "task-1"))
}

func TestPickIsRoughlyUniform(t *testing.T) {
	tier := [][]*models.Exercise{testEcosystem().Exercises}
	counts := map[int64]int{}
	for i := 0; i < 600; i++ {
		for _, ex := range Pick(tier, 1, Seed("task", string(rune('a'+i%26)), string(rune('a'+i/26)))) {
			counts[ex.ID]++
		}
	}
	require.Len(t, counts, 6)
	for id, n := range counts {
		assert.Greater(t, n, 40, "exercise %d picked %d times", id, n)
	}
}
