package store

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"textcast/internal/errs"
	"textcast/internal/models"
)

// CreateTag inserts a tag if its name is new and returns the stored row
// either way.
func (s *Store) CreateTag(q sqlx.Ext, t *models.Tag) (models.Tag, error) {
	var existing models.Tag
	err := sqlx.Get(q, &existing, `SELECT * FROM tags WHERE name = ?`, t.Name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return existing, err
	}
	if _, err := q.Exec(`INSERT INTO tags (id, name) VALUES (?, ?)`, t.ID, t.Name); err != nil {
		return existing, err
	}
	return *t, nil
}

// GetTag fetches a tag by id.
func (s *Store) GetTag(q sqlx.Ext, id string) (models.Tag, error) {
	var t models.Tag
	err := sqlx.Get(q, &t, `SELECT * FROM tags WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return t, errs.NotFound("tag", id)
	}
	return t, err
}

// ListTags returns every tag ordered by name.
func (s *Store) ListTags(q sqlx.Ext) ([]models.Tag, error) {
	tags := []models.Tag{}
	err := sqlx.Select(q, &tags, `SELECT * FROM tags ORDER BY name COLLATE NOCASE`)
	return tags, err
}

// DeleteTag removes a tag and its associations.
func (s *Store) DeleteTag(q sqlx.Ext, id string) error {
	res, err := q.Exec(`DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "tag", id)
}

// TagSource attaches a tag to a source (idempotent).
func (s *Store) TagSource(q sqlx.Ext, sourceID, tagID string) error {
	_, err := q.Exec(`INSERT OR IGNORE INTO source_tags (source_id, tag_id) VALUES (?, ?)`,
		sourceID, tagID)
	return err
}

// UntagSource detaches a tag from a source.
func (s *Store) UntagSource(q sqlx.Ext, sourceID, tagID string) error {
	_, err := q.Exec(`DELETE FROM source_tags WHERE source_id = ? AND tag_id = ?`, sourceID, tagID)
	return err
}

// TagEpisode attaches a tag to an episode (idempotent).
func (s *Store) TagEpisode(q sqlx.Ext, episodeID, tagID string) error {
	_, err := q.Exec(`INSERT OR IGNORE INTO episode_tags (episode_id, tag_id) VALUES (?, ?)`,
		episodeID, tagID)
	return err
}

// UntagEpisode detaches a tag from an episode.
func (s *Store) UntagEpisode(q sqlx.Ext, episodeID, tagID string) error {
	_, err := q.Exec(`DELETE FROM episode_tags WHERE episode_id = ? AND tag_id = ?`, episodeID, tagID)
	return err
}

// ListSourceTags returns a source's tags ordered by name.
func (s *Store) ListSourceTags(q sqlx.Ext, sourceID string) ([]models.Tag, error) {
	tags := []models.Tag{}
	err := sqlx.Select(q, &tags, `
		SELECT t.* FROM tags t JOIN source_tags st ON t.id = st.tag_id
		WHERE st.source_id = ? ORDER BY t.name COLLATE NOCASE`, sourceID)
	return tags, err
}

// ListEpisodeTags returns an episode's tags ordered by name.
func (s *Store) ListEpisodeTags(q sqlx.Ext, episodeID string) ([]models.Tag, error) {
	tags := []models.Tag{}
	err := sqlx.Select(q, &tags, `
		SELECT t.* FROM tags t JOIN episode_tags et ON t.id = et.tag_id
		WHERE et.episode_id = ? ORDER BY t.name COLLATE NOCASE`, episodeID)
	return tags, err
}
