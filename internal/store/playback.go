package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"textcast/internal/models"
)

// SavePlayback upserts the per-episode resume point. Chunk-index validity is
// the caller's check.
func (s *Store) SavePlayback(q sqlx.Ext, p *models.PlaybackState) error {
	p.UpdatedAt = time.Now().UTC()
	_, err := q.Exec(`
		INSERT INTO playback_state (episode_id, current_chunk_index, position_secs, percent_listened, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (episode_id) DO UPDATE SET
			current_chunk_index = excluded.current_chunk_index,
			position_secs = excluded.position_secs,
			percent_listened = excluded.percent_listened,
			updated_at = excluded.updated_at`,
		p.EpisodeID, p.CurrentChunkIndex, p.PositionSecs, p.PercentListened, p.UpdatedAt)
	return err
}

// GetPlayback returns the resume point, ok=false when none is recorded yet.
func (s *Store) GetPlayback(q sqlx.Ext, episodeID string) (models.PlaybackState, bool, error) {
	var p models.PlaybackState
	err := sqlx.Get(q, &p, `SELECT * FROM playback_state WHERE episode_id = ?`, episodeID)
	if errors.Is(err, sql.ErrNoRows) {
		return p, false, nil
	}
	if err != nil {
		return p, false, err
	}
	return p, true, nil
}

// DeletePlayback drops the resume point (used when a chunk plan shrinks and
// the stored index would dangle).
func (s *Store) DeletePlayback(q sqlx.Ext, episodeID string) error {
	_, err := q.Exec(`DELETE FROM playback_state WHERE episode_id = ?`, episodeID)
	return err
}
