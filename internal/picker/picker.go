// Package picker selects exercises from page pools without a remote service.
// Selection is uniform and deterministic for a given seed, so a repeated
// request picks the same exercises.
package picker

import (
	"hash/fnv"
	"math/rand/v2"
	"strings"

	"github.com/fentz26/recsync/internal/codec"
	"github.com/fentz26/recsync/internal/models"
)

// Filter removes candidates.
type Filter struct {
	// ExerciseIDs already on the task.
	ExerciseIDs map[int64]bool
	// Numbers excluded by the course or globally.
	Numbers map[int64]bool
	// Versions excluded globally.
	Versions map[codec.ExcludedVersion]bool
}

func (f Filter) allows(ex *models.Exercise) bool {
	return !f.ExerciseIDs[ex.ID] && !f.Numbers[ex.Number] &&
		!f.Versions[codec.ExcludedVersion{Number: ex.Number, Version: ex.Version}]
}

// Tiers returns the candidates of the given pages, most preferred first: each
// pool in pools in turn, across all pages. An exercise appears once, in the
// first tier that holds it.
func Tiers(eco *models.Ecosystem, pageIDs []int64, pools []models.PoolType, f Filter) [][]*models.Exercise {
	pages := map[int64]*models.Page{}
	for _, p := range eco.Pages() {
		pages[p.ID] = p
	}
	byID := eco.ExerciseByID()
	seen := map[int64]bool{}

	tiers := make([][]*models.Exercise, 0, len(pools))
	for _, pt := range pools {
		var tier []*models.Exercise
		for _, pageID := range pageIDs {
			page, ok := pages[pageID]
			if !ok {
				continue
			}
			for _, id := range page.Pool(pt) {
				ex, ok := byID[id]
				if !ok || seen[id] || !f.allows(ex) {
					continue
				}
				seen[id] = true
				tier = append(tier, ex)
			}
		}
		tiers = append(tiers, tier)
	}
	return tiers
}

// Pick chooses up to n exercises, exhausting each tier before the next.
// Within a tier the choice is uniform, seeded by seed.
func Pick(tiers [][]*models.Exercise, n int, seed string) []*models.Exercise {
	if n <= 0 {
		return []*models.Exercise{}
	}
	rng := newRand(seed)
	out := make([]*models.Exercise, 0, n)
	for _, tier := range tiers {
		need := n - len(out)
		if need <= 0 {
			break
		}
		shuffled := append([]*models.Exercise(nil), tier...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if len(shuffled) > need {
			shuffled = shuffled[:need]
		}
		out = append(out, shuffled...)
	}
	return out
}

// Seed joins the parts of a selection key.
func Seed(parts ...string) string {
	return strings.Join(parts, "/")
}

func newRand(seed string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	sum := h.Sum64()
	return rand.New(rand.NewPCG(sum, sum^0x9e3779b97f4a7c15))
}
