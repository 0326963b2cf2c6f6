package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"textcast/internal/errs"
	"textcast/internal/models"
)

// InsertChunks writes a full chunk plan. Indexes must already be dense and
// 0-based; the unique constraint enforces it.
func (s *Store) InsertChunks(q sqlx.Ext, chunks []models.Chunk) error {
	now := time.Now().UTC()
	for i := range chunks {
		c := &chunks[i]
		c.CreatedAt = now
		_, err := q.Exec(`
			INSERT INTO chunks (id, episode_id, chunk_index, text, label, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.EpisodeID, c.ChunkIndex, c.Text, c.Label, c.Status, c.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetChunk fetches one chunk by episode and index.
func (s *Store) GetChunk(q sqlx.Ext, episodeID string, index int) (models.Chunk, error) {
	var c models.Chunk
	err := sqlx.Get(q, &c, `SELECT * FROM chunks WHERE episode_id = ? AND chunk_index = ?`,
		episodeID, index)
	if errors.Is(err, sql.ErrNoRows) {
		return c, errs.E(errs.KindNotFound, "episode %q has no chunk %d", episodeID, index)
	}
	return c, err
}

// ListChunks returns an episode's chunks in index order.
func (s *Store) ListChunks(q sqlx.Ext, episodeID string) ([]models.Chunk, error) {
	chunks := []models.Chunk{}
	err := sqlx.Select(q, &chunks,
		`SELECT * FROM chunks WHERE episode_id = ? ORDER BY chunk_index`, episodeID)
	return chunks, err
}

// CountChunks returns the number of chunks in an episode.
func (s *Store) CountChunks(q sqlx.Ext, episodeID string) (int, error) {
	var n int
	err := sqlx.Get(q, &n, `SELECT COUNT(*) FROM chunks WHERE episode_id = ?`, episodeID)
	return n, err
}

// NextPendingChunk selects the lowest-index pending chunk of an episode.
// sql.ErrNoRows is translated to ok=false.
func (s *Store) NextPendingChunk(q sqlx.Ext, episodeID string) (models.Chunk, bool, error) {
	var c models.Chunk
	err := sqlx.Get(q, &c, `
		SELECT * FROM chunks WHERE episode_id = ? AND status = ?
		ORDER BY chunk_index LIMIT 1`, episodeID, models.StatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return c, false, nil
	}
	if err != nil {
		return c, false, err
	}
	return c, true, nil
}

// MarkChunkGenerating transitions pending → generating. The status guard in
// the WHERE clause keeps the transition atomic under cancellation.
func (s *Store) MarkChunkGenerating(q sqlx.Ext, chunkID string) (bool, error) {
	res, err := q.Exec(`UPDATE chunks SET status = ? WHERE id = ? AND status = ?`,
		models.StatusGenerating, chunkID, models.StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkChunkReady records a successful synthesis.
func (s *Store) MarkChunkReady(q sqlx.Ext, chunkID, audioPath string, durationSecs float64) error {
	_, err := q.Exec(`
		UPDATE chunks SET status = ?, audio_path = ?, duration_secs = ?, error_message = NULL
		WHERE id = ?`, models.StatusReady, audioPath, durationSecs, chunkID)
	return err
}

// MarkChunkError records a failed synthesis. The message is truncated; the
// full error belongs in the log.
func (s *Store) MarkChunkError(q sqlx.Ext, chunkID, message string) error {
	const maxMessage = 500
	if len(message) > maxMessage {
		message = message[:maxMessage]
	}
	_, err := q.Exec(`UPDATE chunks SET status = ?, error_message = ? WHERE id = ?`,
		models.StatusError, message, chunkID)
	return err
}

// ResetChunk rolls one chunk back to pending, clearing its artifacts.
func (s *Store) ResetChunk(q sqlx.Ext, chunkID string) error {
	_, err := q.Exec(`
		UPDATE chunks SET status = ?, audio_path = NULL, duration_secs = NULL, error_message = NULL
		WHERE id = ?`, models.StatusPending, chunkID)
	return err
}

// ResetChunksByStatus rolls every chunk of an episode in the given statuses
// back to pending. Returns the number of chunks reset.
func (s *Store) ResetChunksByStatus(q sqlx.Ext, episodeID string, statuses ...string) (int, error) {
	query, args, err := sqlx.In(`
		UPDATE chunks SET status = ?, audio_path = NULL, duration_secs = NULL, error_message = NULL
		WHERE episode_id = ? AND status IN (?)`,
		models.StatusPending, episodeID, statuses)
	if err != nil {
		return 0, err
	}
	res, err := q.Exec(q.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ResetAllChunks rolls every chunk of an episode back to pending.
func (s *Store) ResetAllChunks(q sqlx.Ext, episodeID string) error {
	_, err := q.Exec(`
		UPDATE chunks SET status = ?, audio_path = NULL, duration_secs = NULL, error_message = NULL
		WHERE episode_id = ?`, models.StatusPending, episodeID)
	return err
}

// DeleteChunks removes an episode's chunk plan.
func (s *Store) DeleteChunks(q sqlx.Ext, episodeID string) error {
	_, err := q.Exec(`DELETE FROM chunks WHERE episode_id = ?`, episodeID)
	return err
}

// ReplaceChunks swaps in a new chunk plan atomically within the caller's
// transaction.
func (s *Store) ReplaceChunks(q sqlx.Ext, episodeID string, chunks []models.Chunk) error {
	if err := s.DeleteChunks(q, episodeID); err != nil {
		return err
	}
	return s.InsertChunks(q, chunks)
}

// RestoreChunks rewrites previously captured chunk rows, statuses and
// artifacts included. Used by undo.
func (s *Store) RestoreChunks(q sqlx.Ext, episodeID string, chunks []models.Chunk) error {
	if err := s.DeleteChunks(q, episodeID); err != nil {
		return err
	}
	for i := range chunks {
		c := &chunks[i]
		_, err := q.Exec(`
			INSERT INTO chunks (id, episode_id, chunk_index, text, label, status,
				duration_secs, audio_path, error_message, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.EpisodeID, c.ChunkIndex, c.Text, c.Label, c.Status,
			c.DurationSecs, c.AudioPath, c.ErrorMessage, c.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}
