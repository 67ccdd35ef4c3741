// Package contentmap maps the pages and exercises of one ecosystem version
// onto the pages of another.
package contentmap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fentz26/recsync/internal/logger"
	"github.com/fentz26/recsync/internal/models"
	"github.com/fentz26/recsync/internal/store"
	"golang.org/x/sync/singleflight"
)

// Store is the persistence the Mapper needs.
type Store interface {
	GetEcosystem(ctx context.Context, id int64) (*models.Ecosystem, error)
	GetContentMap(ctx context.Context, fromID, toID int64) (*models.ContentMap, error)
	SaveContentMap(ctx context.Context, cm *models.ContentMap) (*models.ContentMap, error)
}

type key struct{ from, to int64 }

// Mapper computes each (from, to) map once. Maps are cached in memory and
// persisted; a persisted map is never recomputed.
type Mapper struct {
	store Store
	log   *logger.Logger

	mu    sync.RWMutex
	cache map[key]*models.ContentMap
	group singleflight.Group
}

// New creates a Mapper.
func New(s Store, log *logger.Logger) *Mapper {
	if log == nil {
		log = logger.Nop()
	}
	return &Mapper{
		store: s,
		log:   log.With("component", "contentmap"),
		cache: make(map[key]*models.ContentMap),
	}
}

// Map returns the map from ecosystem fromID to ecosystem toID.
func (m *Mapper) Map(ctx context.Context, fromID, toID int64) (*models.ContentMap, error) {
	k := key{fromID, toID}
	m.mu.RLock()
	cm, ok := m.cache[k]
	m.mu.RUnlock()
	if ok {
		return cm, nil
	}

	v, err, _ := m.group.Do(fmt.Sprintf("%d:%d", fromID, toID), func() (any, error) {
		cm, err := m.store.GetContentMap(ctx, fromID, toID)
		if errors.Is(err, store.ErrNotFound) {
			cm, err = m.build(ctx, fromID, toID)
		}
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.cache[k] = cm
		m.mu.Unlock()
		return cm, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.ContentMap), nil
}

func (m *Mapper) build(ctx context.Context, fromID, toID int64) (*models.ContentMap, error) {
	from, err := m.store.GetEcosystem(ctx, fromID)
	if err != nil {
		return nil, fmt.Errorf("load source ecosystem: %w", err)
	}
	to := from
	if toID != fromID {
		if to, err = m.store.GetEcosystem(ctx, toID); err != nil {
			return nil, fmt.Errorf("load target ecosystem: %w", err)
		}
	}

	start := time.Now()
	cm := Compute(from, to)
	saved, err := m.store.SaveContentMap(ctx, cm)
	if err != nil {
		return nil, err
	}
	m.log.Info("content map built",
		"from", from.UUID, "to", to.UUID,
		"pages", len(saved.PageToPage), "exercises", len(saved.ExerciseToPage),
		"duration", time.Since(start))
	return saved, nil
}

// Compute maps from onto to. Pages match by content UUID; pages without a
// match are omitted. An exercise maps to the page of the same-numbered
// exercise in to, else to the match of its own page, else it is omitted.
func Compute(from, to *models.Ecosystem) *models.ContentMap {
	cm := &models.ContentMap{
		FromEcosystemID: from.ID,
		ToEcosystemID:   to.ID,
		PageToPage:      make(map[int64]int64),
		ExerciseToPage:  make(map[int64]int64),
		CreatedAt:       time.Now().UTC(),
	}

	if from.ID == to.ID {
		for _, p := range from.Pages() {
			cm.PageToPage[p.ID] = p.ID
		}
		for _, ex := range from.Exercises {
			cm.ExerciseToPage[ex.ID] = ex.PageID
		}
		return cm
	}

	toPages := make(map[string]int64)
	for _, p := range to.Pages() {
		toPages[p.ContentUUID] = p.ID
	}
	for _, p := range from.Pages() {
		if id, ok := toPages[p.ContentUUID]; ok {
			cm.PageToPage[p.ID] = id
		}
	}

	toByNumber := make(map[int64]int64)
	for _, ex := range to.Exercises {
		if _, ok := toByNumber[ex.Number]; !ok {
			toByNumber[ex.Number] = ex.PageID
		}
	}
	for _, ex := range from.Exercises {
		if pageID, ok := toByNumber[ex.Number]; ok {
			cm.ExerciseToPage[ex.ID] = pageID
		} else if pageID, ok := cm.PageToPage[ex.PageID]; ok {
			cm.ExerciseToPage[ex.ID] = pageID
		}
	}
	return cm
}
