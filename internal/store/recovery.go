package store

import (
	"github.com/jmoiron/sqlx"

	"textcast/internal/models"
)

// Recover runs the startup recovery pass: chunks left in generating by a
// crash are reset to pending, and episodes whose persisted status disagrees
// with their chunks' aggregate state are recomputed. It returns the ids of
// episodes that still have pending chunks so the worker can re-admit them.
//
// Called once at startup, before the worker thread begins.
func (s *Store) Recover() ([]string, error) {
	var resume []string

	err := s.InTx(func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`
			UPDATE chunks SET status = ?, audio_path = NULL, duration_secs = NULL
			WHERE status = ?`, models.StatusPending, models.StatusGenerating)
		if err != nil {
			return err
		}

		var episodeIDs []string
		if err := tx.Select(&episodeIDs, `SELECT id FROM episodes WHERE status IN (?, ?)`,
			models.StatusPending, models.StatusGenerating); err != nil {
			return err
		}

		for _, id := range episodeIDs {
			chunks, err := s.ListChunks(tx, id)
			if err != nil {
				return err
			}

			status := models.EpisodeStatusFromChunks(chunks)
			if status == "" {
				status = models.StatusPending
			}
			// A crashed run cannot leave a chunk generating; after the reset
			// above the aggregate is pending, generating, ready or error.
			if status == models.StatusReady || status == models.StatusError {
				total := 0.0
				for _, c := range chunks {
					if c.DurationSecs != nil {
						total += *c.DurationSecs
					}
				}
				if err := s.FinalizeEpisode(tx, id, status, total); err != nil {
					return err
				}
				continue
			}

			if err := s.UpdateEpisodeStatus(tx, id, status); err != nil {
				return err
			}
			resume = append(resume, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resume, nil
}
