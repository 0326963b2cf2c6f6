package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"textcast/internal/errs"
	"textcast/internal/models"
)

// CreateEpisode inserts the episode row. Chunks are inserted separately in
// the same transaction.
func (s *Store) CreateEpisode(q sqlx.Ext, e *models.Episode) error {
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	_, err := q.Exec(`
		INSERT INTO episodes (id, source_id, title, voice_id, output_format,
			chunk_strategy, chunk_max_length, breathing_intensity, status,
			total_duration_secs, folder_id, created_at, updated_at, last_played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceID, e.Title, e.VoiceID, e.OutputFormat,
		e.ChunkStrategy, e.ChunkMaxLength, e.BreathingIntensity, e.Status,
		e.TotalDurationSecs, e.FolderID, e.CreatedAt, e.UpdatedAt, e.LastPlayedAt)
	return err
}

// GetEpisode fetches an episode by id.
func (s *Store) GetEpisode(q sqlx.Ext, id string) (models.Episode, error) {
	var e models.Episode
	err := sqlx.Get(q, &e, `SELECT * FROM episodes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return e, errs.NotFound("episode", id)
	}
	return e, err
}

// EpisodeExists reports whether an episode row exists.
func (s *Store) EpisodeExists(q sqlx.Ext, id string) (bool, error) {
	var n int
	err := sqlx.Get(q, &n, `SELECT COUNT(*) FROM episodes WHERE id = ?`, id)
	return n > 0, err
}

// ListEpisodes returns episodes, optionally filtered by source or folder.
func (s *Store) ListEpisodes(q sqlx.Ext, sourceID, folderID *string) ([]models.Episode, error) {
	query := `SELECT * FROM episodes`
	var args []any
	switch {
	case sourceID != nil:
		query += ` WHERE source_id = ?`
		args = append(args, *sourceID)
	case folderID != nil:
		query += ` WHERE folder_id = ?`
		args = append(args, *folderID)
	}
	query += ` ORDER BY created_at DESC`

	episodes := []models.Episode{}
	err := sqlx.Select(q, &episodes, query, args...)
	return episodes, err
}

// ListReadyEpisodesByFolder returns ready episodes in a folder, oldest first.
func (s *Store) ListReadyEpisodesByFolder(q sqlx.Ext, folderID string) ([]models.Episode, error) {
	episodes := []models.Episode{}
	err := sqlx.Select(q, &episodes, `
		SELECT * FROM episodes WHERE folder_id = ? AND status = ?
		ORDER BY created_at ASC`, folderID, models.StatusReady)
	return episodes, err
}

// UpdateEpisodeStatus sets the episode status.
func (s *Store) UpdateEpisodeStatus(q sqlx.Ext, id, status string) error {
	res, err := q.Exec(`UPDATE episodes SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, "episode", id)
}

// FinalizeEpisode records a terminal status together with the summed
// duration of its ready chunks.
func (s *Store) FinalizeEpisode(q sqlx.Ext, id, status string, totalDuration float64) error {
	res, err := q.Exec(`
		UPDATE episodes SET status = ?, total_duration_secs = ?, updated_at = ?
		WHERE id = ?`, status, totalDuration, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, "episode", id)
}

// UpdateEpisodeSettings rewrites the generation settings during a
// regenerate-with-settings operation.
func (s *Store) UpdateEpisodeSettings(q sqlx.Ext, e *models.Episode) error {
	e.UpdatedAt = time.Now().UTC()
	res, err := q.Exec(`
		UPDATE episodes SET voice_id = ?, output_format = ?, chunk_strategy = ?,
			chunk_max_length = ?, breathing_intensity = ?, status = ?,
			total_duration_secs = ?, updated_at = ?
		WHERE id = ?`,
		e.VoiceID, e.OutputFormat, e.ChunkStrategy, e.ChunkMaxLength,
		e.BreathingIntensity, e.Status, e.TotalDurationSecs, e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	return requireRow(res, "episode", e.ID)
}

// ResetEpisode puts an episode back to pending with no recorded duration,
// ahead of a full regeneration pass.
func (s *Store) ResetEpisode(q sqlx.Ext, id string) error {
	res, err := q.Exec(`
		UPDATE episodes SET status = ?, total_duration_secs = NULL, updated_at = ?
		WHERE id = ?`, models.StatusPending, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, "episode", id)
}

// UpdateEpisodeFolder moves an episode into a folder (nil = root).
func (s *Store) UpdateEpisodeFolder(q sqlx.Ext, id string, folderID *string) error {
	res, err := q.Exec(`UPDATE episodes SET folder_id = ?, updated_at = ? WHERE id = ?`,
		folderID, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, "episode", id)
}

// TouchEpisodePlayed stamps last_played_at.
func (s *Store) TouchEpisodePlayed(q sqlx.Ext, id string) error {
	now := time.Now().UTC()
	_, err := q.Exec(`UPDATE episodes SET last_played_at = ? WHERE id = ?`, now, id)
	return err
}

// DeleteEpisode removes an episode; chunks and playback state cascade.
func (s *Store) DeleteEpisode(q sqlx.Ext, id string) error {
	res, err := q.Exec(`DELETE FROM episodes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "episode", id)
}
