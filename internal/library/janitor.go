package library

import (
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// RunUndoJanitor purges expired undo tickets and their backup directories
// on a fixed cadence until stop closes. Expiry is the moment the displaced
// audio of a regeneration becomes unrecoverable.
func (s *Service) RunUndoJanitor(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.PurgeExpiredUndoTickets()
		}
	}
}

// PurgeExpiredUndoTickets deletes every ticket past its window. Backup
// directories are removed after the rows commit.
func (s *Service) PurgeExpiredUndoTickets() {
	var backups []string

	err := s.store.InTx(func(tx *sqlx.Tx) error {
		tickets, err := s.store.ExpiredUndoTickets(tx, time.Now().UTC())
		if err != nil {
			return err
		}
		for _, t := range tickets {
			if err := s.store.DeleteUndoTicket(tx, t.ID); err != nil {
				return err
			}
			if t.BackupAudioDir != nil {
				backups = append(backups, *t.BackupAudioDir)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("undo janitor pass failed", zap.Error(err))
		return
	}

	for _, dir := range backups {
		s.removeDir(dir)
	}
	if len(backups) > 0 {
		s.log.Info("purged expired undo tickets", zap.Int("count", len(backups)))
	}
}
