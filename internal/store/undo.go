package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"textcast/internal/errs"
	"textcast/internal/models"
)

// CreateUndoTicket records a reversible destructive operation.
func (s *Store) CreateUndoTicket(q sqlx.Ext, t *models.UndoTicket) error {
	t.CreatedAt = time.Now().UTC()
	_, err := q.Exec(`
		INSERT INTO undo_tickets (id, episode_id, operation_kind, inverse_payload,
			backup_audio_dir, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.EpisodeID, t.OperationKind, t.InversePayload,
		t.BackupAudioDir, t.CreatedAt, t.ExpiresAt)
	return err
}

// TakeUndoTicket fetches a live ticket and deletes it in one step, so a
// ticket can be redeemed at most once. An expired or missing ticket yields
// UndoExpired / NotFound respectively.
func (s *Store) TakeUndoTicket(q sqlx.Ext, id string, now time.Time) (models.UndoTicket, error) {
	var t models.UndoTicket
	err := sqlx.Get(q, &t, `SELECT * FROM undo_tickets WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return t, errs.NotFound("undo ticket", id)
	}
	if err != nil {
		return t, err
	}
	if now.After(t.ExpiresAt) {
		return t, errs.E(errs.KindUndoExpired, "undo window for ticket %q has expired", id)
	}
	if _, err := q.Exec(`DELETE FROM undo_tickets WHERE id = ?`, id); err != nil {
		return t, err
	}
	return t, nil
}

// ExpiredUndoTickets lists tickets past their window for the janitor.
func (s *Store) ExpiredUndoTickets(q sqlx.Ext, now time.Time) ([]models.UndoTicket, error) {
	tickets := []models.UndoTicket{}
	err := sqlx.Select(q, &tickets, `SELECT * FROM undo_tickets WHERE expires_at < ?`, now)
	return tickets, err
}

// DeleteUndoTicket removes a ticket row.
func (s *Store) DeleteUndoTicket(q sqlx.Ext, id string) error {
	_, err := q.Exec(`DELETE FROM undo_tickets WHERE id = ?`, id)
	return err
}

// DeleteUndoTicketsForEpisode purges tickets referencing an episode being
// deleted and returns them so their backup directories can be cleaned up.
func (s *Store) DeleteUndoTicketsForEpisode(q sqlx.Ext, episodeID string) ([]models.UndoTicket, error) {
	tickets := []models.UndoTicket{}
	if err := sqlx.Select(q, &tickets, `SELECT * FROM undo_tickets WHERE episode_id = ?`, episodeID); err != nil {
		return nil, err
	}
	if _, err := q.Exec(`DELETE FROM undo_tickets WHERE episode_id = ?`, episodeID); err != nil {
		return nil, err
	}
	return tickets, nil
}
