package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/recsync/internal/models"
)

// --- Ecosystem Operations ---

// CreateEcosystem inserts an ecosystem with its book tree, exercises and
// pools. Exercises are bound to pages by PageUUID and listed in the pools they
// name; every exercise is also added to its page's and chapter's
// all-exercises pool. IDs are filled in on the passed structs.
func (s *Store) CreateEcosystem(ctx context.Context, eco *models.Ecosystem) error {
	if eco.Book == nil {
		return fmt.Errorf("ecosystem %s has no book", eco.UUID)
	}
	if eco.CreatedAt.IsZero() {
		eco.CreatedAt = time.Now().UTC()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO ecosystems (uuid, title, book_uuid, book_cnx_id, book_title, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			eco.UUID, eco.Title, eco.Book.UUID, eco.Book.CnxID, eco.Book.Title, eco.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert ecosystem: %w", err)
		}
		if eco.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		eco.Book.ID = eco.ID

		pagesByUUID := make(map[string]*models.Page)
		chapterOf := make(map[*models.Page]*models.Chapter)
		position := 0
		for _, ch := range eco.Book.Chapters {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO chapters (ecosystem_id, uuid, number, title) VALUES (?, ?, ?, ?)`,
				eco.ID, ch.UUID, ch.Number, ch.Title,
			)
			if err != nil {
				return fmt.Errorf("insert chapter: %w", err)
			}
			if ch.ID, err = res.LastInsertId(); err != nil {
				return err
			}
			ch.AllExercises = nil
			for _, p := range ch.Pages {
				res, err := tx.ExecContext(ctx,
					`INSERT INTO pages (ecosystem_id, chapter_id, position, uuid, content_uuid, cnx_id, title) VALUES (?, ?, ?, ?, ?, ?, ?)`,
					eco.ID, ch.ID, position, p.UUID, p.ContentUUID, p.CnxID, p.Title,
				)
				if err != nil {
					return fmt.Errorf("insert page: %w", err)
				}
				if p.ID, err = res.LastInsertId(); err != nil {
					return err
				}
				position++
				p.ChapterID = ch.ID
				p.Pools = make(map[models.PoolType][]int64)
				pagesByUUID[p.UUID] = p
				chapterOf[p] = ch
			}
		}

		for _, ex := range eco.Exercises {
			page, ok := pagesByUUID[ex.PageUUID]
			if !ok {
				return fmt.Errorf("exercise %s references unknown page %q", ex.UUID, ex.PageUUID)
			}
			los, err := encodeJSON(ex.LOs)
			if err != nil {
				return fmt.Errorf("encode los: %w", err)
			}
			res, err := tx.ExecContext(ctx,
				`INSERT INTO exercises (ecosystem_id, page_id, uuid, group_uuid, number, version, los) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				eco.ID, page.ID, ex.UUID, ex.GroupUUID, ex.Number, ex.Version, los,
			)
			if err != nil {
				return fmt.Errorf("insert exercise: %w", err)
			}
			if ex.ID, err = res.LastInsertId(); err != nil {
				return err
			}
			ex.PageID = page.ID

			page.Pools[models.PoolAllExercises] = append(page.Pools[models.PoolAllExercises], ex.ID)
			ch := chapterOf[page]
			ch.AllExercises = append(ch.AllExercises, ex.ID)
			for _, pt := range ex.Pools {
				if pt == models.PoolAllExercises {
					continue
				}
				page.Pools[pt] = append(page.Pools[pt], ex.ID)
			}
		}

		for _, page := range pagesByUUID {
			for pt, ids := range page.Pools {
				for i, id := range ids {
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO pool_exercises (page_id, pool_type, position, exercise_id) VALUES (?, ?, ?, ?)`,
						page.ID, pt, i, id,
					); err != nil {
						return fmt.Errorf("insert pool exercise: %w", err)
					}
				}
			}
		}
		return nil
	})
}

// GetEcosystem loads an ecosystem with its full book tree and exercises.
func (s *Store) GetEcosystem(ctx context.Context, id int64) (*models.Ecosystem, error) {
	eco := &models.Ecosystem{Book: &models.Book{}}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, uuid, title, sequence_number, book_uuid, book_cnx_id, book_title, created_at FROM ecosystems WHERE id = ?`,
		id,
	).Scan(&eco.ID, &eco.UUID, &eco.Title, &eco.SequenceNumber, &eco.Book.UUID, &eco.Book.CnxID, &eco.Book.Title, &eco.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ecosystem %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query ecosystem: %w", err)
	}
	eco.Book.ID = eco.ID

	if err := s.loadBook(ctx, eco); err != nil {
		return nil, err
	}
	if eco.Exercises, err = s.queryExercises(ctx, `WHERE ecosystem_id = ? ORDER BY id`, eco.ID); err != nil {
		return nil, err
	}
	return eco, nil
}

// GetEcosystemByUUID loads an ecosystem by its external UUID.
func (s *Store) GetEcosystemByUUID(ctx context.Context, uuid string) (*models.Ecosystem, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM ecosystems WHERE uuid = ?`, uuid).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ecosystem %s: %w", uuid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query ecosystem: %w", err)
	}
	return s.GetEcosystem(ctx, id)
}

func (s *Store) loadBook(ctx context.Context, eco *models.Ecosystem) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, uuid, number, title FROM chapters WHERE ecosystem_id = ? ORDER BY number, id`, eco.ID)
	if err != nil {
		return fmt.Errorf("query chapters: %w", err)
	}
	chapters := make(map[int64]*models.Chapter)
	for rows.Next() {
		ch := &models.Chapter{}
		if err := rows.Scan(&ch.ID, &ch.UUID, &ch.Number, &ch.Title); err != nil {
			rows.Close()
			return fmt.Errorf("scan chapter: %w", err)
		}
		chapters[ch.ID] = ch
		eco.Book.Chapters = append(eco.Book.Chapters, ch)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT id, chapter_id, uuid, content_uuid, cnx_id, title FROM pages WHERE ecosystem_id = ? ORDER BY position`, eco.ID)
	if err != nil {
		return fmt.Errorf("query pages: %w", err)
	}
	pages := make(map[int64]*models.Page)
	for rows.Next() {
		p := &models.Page{Pools: make(map[models.PoolType][]int64)}
		if err := rows.Scan(&p.ID, &p.ChapterID, &p.UUID, &p.ContentUUID, &p.CnxID, &p.Title); err != nil {
			rows.Close()
			return fmt.Errorf("scan page: %w", err)
		}
		pages[p.ID] = p
		if ch, ok := chapters[p.ChapterID]; ok {
			ch.Pages = append(ch.Pages, p)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT pe.page_id, pe.pool_type, pe.exercise_id
		 FROM pool_exercises pe JOIN pages p ON p.id = pe.page_id
		 WHERE p.ecosystem_id = ? ORDER BY pe.page_id, pe.pool_type, pe.position`, eco.ID)
	if err != nil {
		return fmt.Errorf("query pools: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pageID, exerciseID int64
		var pt models.PoolType
		if err := rows.Scan(&pageID, &pt, &exerciseID); err != nil {
			return fmt.Errorf("scan pool: %w", err)
		}
		if p, ok := pages[pageID]; ok {
			p.Pools[pt] = append(p.Pools[pt], exerciseID)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, ch := range eco.Book.Chapters {
		for _, p := range ch.Pages {
			ch.AllExercises = append(ch.AllExercises, p.Pool(models.PoolAllExercises)...)
		}
	}
	return nil
}

func (s *Store) queryExercises(ctx context.Context, where string, args ...any) ([]*models.Exercise, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, page_id, uuid, group_uuid, number, version, los FROM exercises `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query exercises: %w", err)
	}
	defer rows.Close()

	var exercises []*models.Exercise
	for rows.Next() {
		ex := &models.Exercise{}
		var los string
		if err := rows.Scan(&ex.ID, &ex.PageID, &ex.UUID, &ex.GroupUUID, &ex.Number, &ex.Version, &los); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		if err := decodeJSON(los, &ex.LOs); err != nil {
			return nil, fmt.Errorf("decode los: %w", err)
		}
		exercises = append(exercises, ex)
	}
	return exercises, rows.Err()
}

// GetExercise returns one exercise by ID.
func (s *Store) GetExercise(ctx context.Context, id int64) (*models.Exercise, error) {
	exercises, err := s.queryExercises(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(exercises) == 0 {
		return nil, fmt.Errorf("exercise %d: %w", id, ErrNotFound)
	}
	return exercises[0], nil
}

// FindExercisesByUUID resolves exercise UUIDs to exercises. UUIDs with no
// local exercise are absent from the result.
func (s *Store) FindExercisesByUUID(ctx context.Context, uuids []string) (map[string]*models.Exercise, error) {
	out := make(map[string]*models.Exercise, len(uuids))
	if len(uuids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(uuids)), ",")
	args := make([]any, len(uuids))
	for i, u := range uuids {
		args[i] = u
	}
	exercises, err := s.queryExercises(ctx, `WHERE uuid IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	for _, ex := range exercises {
		if _, ok := out[ex.UUID]; !ok {
			out[ex.UUID] = ex
		}
	}
	return out, nil
}

// ExerciseGroupUUIDs returns the distinct group UUIDs of exercises with the
// given numbers, across all ecosystems.
func (s *Store) ExerciseGroupUUIDs(ctx context.Context, numbers []int64) ([]string, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(numbers)), ",")
	args := make([]any, len(numbers))
	for i, n := range numbers {
		args[i] = n
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT group_uuid FROM exercises WHERE number IN (`+placeholders+`) ORDER BY group_uuid`, args...)
	if err != nil {
		return nil, fmt.Errorf("query group uuids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan group uuid: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ExerciseVersionUUID returns the UUID of the exercise with the given number
// and version, if one exists.
func (s *Store) ExerciseVersionUUID(ctx context.Context, number int64, version int) (string, bool, error) {
	var u string
	err := s.db.QueryRowContext(ctx,
		`SELECT uuid FROM exercises WHERE number = ? AND version = ? ORDER BY id LIMIT 1`, number, version,
	).Scan(&u)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query exercise version: %w", err)
	}
	return u, true, nil
}

// ContainerExerciseNumbers returns the distinct exercise numbers in the
// all-exercises pools under the page or chapter with the given UUID.
func (s *Store) ContainerExerciseNumbers(ctx context.Context, containerUUID string) ([]int64, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM pages WHERE uuid = ?) + (SELECT COUNT(*) FROM chapters WHERE uuid = ?)`,
		containerUUID, containerUUID,
	).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("query container: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("book container %s: %w", containerUUID, ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT e.number
		 FROM pool_exercises pe
		 JOIN pages p ON p.id = pe.page_id
		 JOIN chapters c ON c.id = p.chapter_id
		 JOIN exercises e ON e.id = pe.exercise_id
		 WHERE pe.pool_type = ? AND (p.uuid = ? OR c.uuid = ?)
		 ORDER BY e.number`,
		string(models.PoolAllExercises), containerUUID, containerUUID)
	if err != nil {
		return nil, fmt.Errorf("query container exercises: %w", err)
	}
	defer rows.Close()

	numbers := []int64{}
	for rows.Next() {
		var num int64
		if err := rows.Scan(&num); err != nil {
			return nil, fmt.Errorf("scan exercise number: %w", err)
		}
		numbers = append(numbers, num)
	}
	return numbers, rows.Err()
}

// --- Content Map Operations ---

// GetContentMap returns a stored content map, or ErrNotFound.
func (s *Store) GetContentMap(ctx context.Context, fromID, toID int64) (*models.ContentMap, error) {
	cm := &models.ContentMap{FromEcosystemID: fromID, ToEcosystemID: toID}
	var pages, exercises string
	err := s.db.QueryRowContext(ctx,
		`SELECT page_to_page, exercise_to_page, created_at FROM content_maps WHERE from_ecosystem_id = ? AND to_ecosystem_id = ?`,
		fromID, toID,
	).Scan(&pages, &exercises, &cm.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query content map: %w", err)
	}
	if err := decodeJSON(pages, &cm.PageToPage); err != nil {
		return nil, fmt.Errorf("decode page map: %w", err)
	}
	if err := decodeJSON(exercises, &cm.ExerciseToPage); err != nil {
		return nil, fmt.Errorf("decode exercise map: %w", err)
	}
	return cm, nil
}

// SaveContentMap stores a content map. A map already stored for the pair is
// kept and returned instead.
func (s *Store) SaveContentMap(ctx context.Context, cm *models.ContentMap) (*models.ContentMap, error) {
	pages, err := encodeJSON(cm.PageToPage)
	if err != nil {
		return nil, err
	}
	exercises, err := encodeJSON(cm.ExerciseToPage)
	if err != nil {
		return nil, err
	}
	if cm.CreatedAt.IsZero() {
		cm.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO content_maps (from_ecosystem_id, to_ecosystem_id, page_to_page, exercise_to_page, created_at)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT (from_ecosystem_id, to_ecosystem_id) DO NOTHING`,
		cm.FromEcosystemID, cm.ToEcosystemID, pages, exercises, cm.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert content map: %w", err)
	}
	return s.GetContentMap(ctx, cm.FromEcosystemID, cm.ToEcosystemID)
}
