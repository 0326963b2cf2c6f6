package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"textcast/internal/errs"
	"textcast/internal/models"
)

// CreateSource inserts a new source row.
func (s *Store) CreateSource(q sqlx.Ext, src *models.Source) error {
	now := time.Now().UTC()
	src.CreatedAt = now
	src.UpdatedAt = now
	_, err := q.Exec(`
		INSERT INTO sources (id, title, source_type, original_filename, original_url,
			raw_text, cleaned_text, cleaning_settings, cover_art, folder_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.Title, src.SourceType, src.OriginalFilename, src.OriginalURL,
		src.RawText, src.CleanedText, src.CleaningSettings, src.CoverArt, src.FolderID,
		src.CreatedAt, src.UpdatedAt)
	return err
}

// GetSource fetches a source by id.
func (s *Store) GetSource(q sqlx.Ext, id string) (models.Source, error) {
	var src models.Source
	err := sqlx.Get(q, &src, `SELECT * FROM sources WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return src, errs.NotFound("source", id)
	}
	return src, err
}

// SourceExists reports whether a source row exists.
func (s *Store) SourceExists(q sqlx.Ext, id string) (bool, error) {
	var n int
	err := sqlx.Get(q, &n, `SELECT COUNT(*) FROM sources WHERE id = ?`, id)
	return n > 0, err
}

// ListSources returns source summaries, optionally filtered by folder or tag.
func (s *Store) ListSources(q sqlx.Ext, folderID *string, tag string) ([]models.Source, error) {
	query := `SELECT s.* FROM sources s`
	var args []any
	switch {
	case tag != "":
		query += ` JOIN source_tags st ON s.id = st.source_id
			JOIN tags t ON st.tag_id = t.id WHERE t.name = ?`
		args = append(args, tag)
	case folderID != nil:
		query += ` WHERE s.folder_id = ?`
		args = append(args, *folderID)
	}
	query += ` ORDER BY s.created_at DESC`

	sources := []models.Source{}
	err := sqlx.Select(q, &sources, query, args...)
	return sources, err
}

// UpdateSourceCleanedText replaces the cleaned text and its settings snapshot
// in place. The source id never changes across re-cleaning.
func (s *Store) UpdateSourceCleanedText(q sqlx.Ext, id, cleaned string, opts models.CleaningOptions) error {
	res, err := q.Exec(`
		UPDATE sources SET cleaned_text = ?, cleaning_settings = ?, updated_at = ?
		WHERE id = ?`, cleaned, opts, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, "source", id)
}

// UpdateSourceFolder moves a source into a folder (nil = root).
func (s *Store) UpdateSourceFolder(q sqlx.Ext, id string, folderID *string) error {
	res, err := q.Exec(`UPDATE sources SET folder_id = ?, updated_at = ? WHERE id = ?`,
		folderID, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, "source", id)
}

// UpdateSourceCover records the cover art blob reference.
func (s *Store) UpdateSourceCover(q sqlx.Ext, id, coverPath string) error {
	res, err := q.Exec(`UPDATE sources SET cover_art = ?, updated_at = ? WHERE id = ?`,
		coverPath, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, "source", id)
}

// UpdateSourceTitle renames a source.
func (s *Store) UpdateSourceTitle(q sqlx.Ext, id, title string) error {
	res, err := q.Exec(`UPDATE sources SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, "source", id)
}

// DeleteSource removes a source; episodes and chunks cascade.
func (s *Store) DeleteSource(q sqlx.Ext, id string) error {
	res, err := q.Exec(`DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "source", id)
}

func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.NotFound(entity, id)
	}
	return nil
}
