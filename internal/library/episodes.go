package library

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"textcast/internal/chunker"
	"textcast/internal/errs"
	"textcast/internal/models"
)

// CreateEpisodeRequest carries the generation settings for a new episode.
// Empty fields fall back to the persisted defaults.
type CreateEpisodeRequest struct {
	SourceID           string
	Title              string
	VoiceID            string
	OutputFormat       string
	ChunkStrategy      string
	ChunkMaxLength     int
	BreathingIntensity string
	FolderID           *string
}

// EpisodeDetail is an episode with its chunk plan and resume point.
type EpisodeDetail struct {
	Episode  models.Episode        `json:"episode"`
	Chunks   []models.Chunk        `json:"chunks"`
	Playback *models.PlaybackState `json:"playback,omitempty"`
	Tags     []models.Tag          `json:"tags,omitempty"`
}

// CreateEpisode snapshots the source's cleaned text into a chunk plan,
// inserts the episode and its chunks in one transaction, and enqueues it.
func (s *Service) CreateEpisode(req CreateEpisodeRequest) (models.Episode, int, error) {
	var episode models.Episode

	settings, err := s.store.GetSettings(s.store.DB)
	if err != nil {
		return episode, 0, err
	}
	applyEpisodeDefaults(&req, settings)

	if !models.OutputFormats[req.OutputFormat] {
		return episode, 0, errs.E(errs.KindUnsupportedType, "unsupported output format %q", req.OutputFormat)
	}

	chunkCount := 0
	err = s.store.InTx(func(tx *sqlx.Tx) error {
		src, err := s.store.GetSource(tx, req.SourceID)
		if err != nil {
			return err
		}
		if req.FolderID != nil {
			if err := s.requireFolder(tx, *req.FolderID); err != nil {
				return err
			}
		}

		plan, err := chunker.Plan(src.CleanedText, req.ChunkStrategy, req.ChunkMaxLength, req.BreathingIntensity)
		if err != nil {
			return err
		}

		title := req.Title
		if title == "" {
			title = src.Title
		}

		episode = models.Episode{
			ID:                 uuid.NewString(),
			SourceID:           src.ID,
			Title:              title,
			VoiceID:            req.VoiceID,
			OutputFormat:       req.OutputFormat,
			ChunkStrategy:      req.ChunkStrategy,
			ChunkMaxLength:     req.ChunkMaxLength,
			BreathingIntensity: req.BreathingIntensity,
			Status:             models.StatusPending,
			FolderID:           req.FolderID,
		}
		if err := s.store.CreateEpisode(tx, &episode); err != nil {
			return err
		}

		chunkCount = len(plan)
		return s.store.InsertChunks(tx, planToChunks(episode.ID, plan))
	})
	if err != nil {
		return episode, 0, err
	}

	s.queue.Enqueue(episode.ID)
	s.log.Info("episode created",
		zap.String("episode_id", episode.ID),
		zap.String("source_id", episode.SourceID),
		zap.Int("chunks", chunkCount))
	return episode, chunkCount, nil
}

func applyEpisodeDefaults(req *CreateEpisodeRequest, settings map[string]string) {
	if req.VoiceID == "" {
		req.VoiceID = settings["default_voice"]
	}
	if req.OutputFormat == "" {
		req.OutputFormat = settings["default_output_format"]
	}
	if req.ChunkStrategy == "" {
		req.ChunkStrategy = settings["default_chunk_strategy"]
	}
	if req.ChunkMaxLength <= 0 {
		req.ChunkMaxLength = chunker.DefaultMaxChars
		if n, err := strconv.Atoi(settings["default_chunk_max_length"]); err == nil && n > 0 {
			req.ChunkMaxLength = n
		}
	}
	if req.BreathingIntensity == "" {
		req.BreathingIntensity = settings["default_breathing"]
	}
}

func planToChunks(episodeID string, plan []chunker.Chunk) []models.Chunk {
	chunks := make([]models.Chunk, len(plan))
	for i, p := range plan {
		chunks[i] = models.Chunk{
			ID:         uuid.NewString(),
			EpisodeID:  episodeID,
			ChunkIndex: p.Index,
			Text:       p.Text,
			Label:      p.Label,
			Status:     models.StatusPending,
		}
	}
	return chunks
}

// GetEpisode returns the episode, its chunks, resume point and tags.
func (s *Service) GetEpisode(id string) (EpisodeDetail, error) {
	var detail EpisodeDetail
	episode, err := s.store.GetEpisode(s.store.DB, id)
	if err != nil {
		return detail, err
	}
	chunks, err := s.store.ListChunks(s.store.DB, id)
	if err != nil {
		return detail, err
	}
	playback, ok, err := s.store.GetPlayback(s.store.DB, id)
	if err != nil {
		return detail, err
	}
	tags, err := s.store.ListEpisodeTags(s.store.DB, id)
	if err != nil {
		return detail, err
	}

	detail = EpisodeDetail{Episode: episode, Chunks: chunks, Tags: tags}
	if ok {
		detail.Playback = &playback
	}
	return detail, nil
}

// ListEpisodes lists episodes filtered by source or folder.
func (s *Service) ListEpisodes(sourceID, folderID *string) ([]models.Episode, error) {
	return s.store.ListEpisodes(s.store.DB, sourceID, folderID)
}

// RegenerateAll resets every chunk to pending, clears the episode's audio
// and re-enqueues it. Disallowed while a pass is pending or running.
func (s *Service) RegenerateAll(episodeID string) error {
	err := s.store.InTx(func(tx *sqlx.Tx) error {
		ep, err := s.store.GetEpisode(tx, episodeID)
		if err != nil {
			return err
		}
		if ep.Status == models.StatusPending || ep.Status == models.StatusGenerating {
			return errs.E(errs.KindInvalidState, "episode %q is already %s", episodeID, ep.Status)
		}
		if err := s.store.ResetAllChunks(tx, episodeID); err != nil {
			return err
		}
		return s.store.ResetEpisode(tx, episodeID)
	})
	if err != nil {
		return err
	}

	s.removeDir(s.cfg.AudioDir(episodeID))
	s.queue.Enqueue(episodeID)
	return nil
}

// RegenerateChunk resets one chunk and re-enqueues the episode; sibling
// chunks and their audio stay untouched.
func (s *Service) RegenerateChunk(episodeID string, chunkIndex int) error {
	err := s.store.InTx(func(tx *sqlx.Tx) error {
		ep, err := s.store.GetEpisode(tx, episodeID)
		if err != nil {
			return err
		}
		chunk, err := s.store.GetChunk(tx, episodeID, chunkIndex)
		if err != nil {
			return err
		}
		if chunk.Status == models.StatusGenerating {
			return errs.E(errs.KindInvalidState, "chunk %d is generating", chunkIndex)
		}
		if err := s.store.ResetChunk(tx, chunk.ID); err != nil {
			return err
		}
		if ep.Status == models.StatusReady || ep.Status == models.StatusError || ep.Status == models.StatusCancelled {
			return s.store.ResetEpisode(tx, episodeID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// The full-episode artifact no longer matches the chunk set.
	s.asm.Invalidate(s.cfg.AudioDir(episodeID))
	if err := os.Remove(s.cfg.ChunkPath(episodeID, chunkIndex)); err != nil && !os.IsNotExist(err) {
		s.log.Warn("could not remove chunk artifact",
			zap.String("episode_id", episodeID), zap.Int("chunk_index", chunkIndex), zap.Error(err))
	}

	s.queue.Enqueue(episodeID)
	return nil
}

// Cancel stops further synthesis for an episode. Chunks already ready keep
// their audio; pending and generating chunks roll back to pending. The
// worker never marks ready a result whose episode is cancelled.
func (s *Service) Cancel(episodeID string) error {
	return s.store.InTx(func(tx *sqlx.Tx) error {
		ep, err := s.store.GetEpisode(tx, episodeID)
		if err != nil {
			return err
		}
		if ep.Status != models.StatusPending && ep.Status != models.StatusGenerating {
			return errs.E(errs.KindInvalidState, "cannot cancel a %s episode", ep.Status)
		}
		if _, err := s.store.ResetChunksByStatus(tx, episodeID, models.StatusGenerating); err != nil {
			return err
		}
		return s.store.UpdateEpisodeStatus(tx, episodeID, models.StatusCancelled)
	})
}

// RetryErrors rolls every failed chunk back to pending and re-enqueues.
func (s *Service) RetryErrors(episodeID string) error {
	retried := 0
	err := s.store.InTx(func(tx *sqlx.Tx) error {
		if _, err := s.store.GetEpisode(tx, episodeID); err != nil {
			return err
		}
		n, err := s.store.ResetChunksByStatus(tx, episodeID, models.StatusError)
		if err != nil {
			return err
		}
		retried = n
		if n == 0 {
			return nil
		}
		return s.store.UpdateEpisodeStatus(tx, episodeID, models.StatusGenerating)
	})
	if err != nil {
		return err
	}

	if retried > 0 {
		s.queue.Enqueue(episodeID)
	}
	return nil
}

// DeleteEpisode removes the episode and everything beneath its audio
// directory. Chunks and playback state cascade in the schema.
func (s *Service) DeleteEpisode(episodeID string) error {
	return s.BulkDelete([]string{episodeID})
}

// BulkMove moves episodes into a folder (nil = root) in one transaction.
// Any missing episode aborts the whole batch.
func (s *Service) BulkMove(episodeIDs []string, folderID *string) error {
	if len(episodeIDs) == 0 {
		return errs.E(errs.KindInvalidState, "no episodes specified")
	}
	return s.store.InTx(func(tx *sqlx.Tx) error {
		if folderID != nil {
			if err := s.requireFolder(tx, *folderID); err != nil {
				return err
			}
		}
		for _, id := range episodeIDs {
			if _, err := s.store.GetEpisode(tx, id); err != nil {
				return err
			}
		}
		for _, id := range episodeIDs {
			if err := s.store.UpdateEpisodeFolder(tx, id, folderID); err != nil {
				return err
			}
		}
		return nil
	})
}

// BulkDelete removes episodes in one transaction; audio directories are
// cleaned up after commit.
func (s *Service) BulkDelete(episodeIDs []string) error {
	if len(episodeIDs) == 0 {
		return errs.E(errs.KindInvalidState, "no episodes specified")
	}

	var backups []string
	err := s.store.InTx(func(tx *sqlx.Tx) error {
		for _, id := range episodeIDs {
			if _, err := s.store.GetEpisode(tx, id); err != nil {
				return err
			}
		}
		for _, id := range episodeIDs {
			tickets, err := s.store.DeleteUndoTicketsForEpisode(tx, id)
			if err != nil {
				return err
			}
			for _, t := range tickets {
				if t.BackupAudioDir != nil {
					backups = append(backups, *t.BackupAudioDir)
				}
			}
			if err := s.store.DeleteEpisode(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range episodeIDs {
		s.removeDir(s.cfg.AudioDir(id))
	}
	for _, dir := range backups {
		s.removeDir(dir)
	}
	return nil
}

// SavePlayback records the per-episode resume point. The chunk index must
// reference a real chunk of the episode.
func (s *Service) SavePlayback(episodeID string, chunkIndex int, positionSecs, percent float64) error {
	return s.store.InTx(func(tx *sqlx.Tx) error {
		if _, err := s.store.GetEpisode(tx, episodeID); err != nil {
			return err
		}
		count, err := s.store.CountChunks(tx, episodeID)
		if err != nil {
			return err
		}
		if chunkIndex < 0 || chunkIndex >= count {
			return errs.E(errs.KindInvalidState,
				"chunk index %d out of range [0, %d)", chunkIndex, count)
		}

		p := models.PlaybackState{
			EpisodeID:         episodeID,
			CurrentChunkIndex: chunkIndex,
			PositionSecs:      positionSecs,
			PercentListened:   clampPercent(percent),
		}
		if err := s.store.SavePlayback(tx, &p); err != nil {
			return err
		}
		return s.store.TouchEpisodePlayed(tx, episodeID)
	})
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// episodeSnapshot is the undo ticket's inverse payload: enough to restore
// the episode's settings and full chunk plan, artifacts included.
type episodeSnapshot struct {
	Episode models.Episode `json:"episode"`
	Chunks  []models.Chunk `json:"chunks"`
}

// RegenerateSettings is a partial settings override; nil fields keep the
// episode's current value.
type RegenerateSettings struct {
	VoiceID            *string `json:"voice_id"`
	OutputFormat       *string `json:"output_format"`
	ChunkStrategy      *string `json:"chunk_strategy"`
	ChunkMaxLength     *int    `json:"chunk_max_length"`
	BreathingIntensity *string `json:"breathing_intensity"`
}

// RegenerateWithSettings applies new generation settings to an episode,
// re-chunking when the plan parameters change, and records an undo ticket
// valid for the configured window. Returns the ticket id.
func (s *Service) RegenerateWithSettings(episodeID string, settings RegenerateSettings) (string, error) {
	ticketID := uuid.NewString()
	backupDir := s.cfg.AudioDir(".backup_" + ticketID)
	audioDir := s.cfg.AudioDir(episodeID)

	// Copy the audio aside before touching the database; a failed snapshot
	// must not leave a ticket pointing at nothing.
	backedUp := false
	if _, err := os.Stat(audioDir); err == nil {
		if err := os.CopyFS(backupDir, os.DirFS(audioDir)); err != nil {
			return "", errs.Wrap(errs.KindInternal, err, "could not back up episode audio")
		}
		backedUp = true
	}

	err := s.store.InTx(func(tx *sqlx.Tx) error {
		ep, err := s.store.GetEpisode(tx, episodeID)
		if err != nil {
			return err
		}
		if ep.Status == models.StatusPending || ep.Status == models.StatusGenerating {
			return errs.E(errs.KindInvalidState, "episode %q is already %s", episodeID, ep.Status)
		}
		chunks, err := s.store.ListChunks(tx, episodeID)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(episodeSnapshot{Episode: ep, Chunks: chunks})
		if err != nil {
			return errs.Wrap(errs.KindInternal, err, "could not encode undo payload")
		}

		ticket := models.UndoTicket{
			ID:             ticketID,
			EpisodeID:      episodeID,
			OperationKind:  "regenerate_with_settings",
			InversePayload: payload,
			ExpiresAt:      time.Now().UTC().Add(s.cfg.UndoWindow),
		}
		if backedUp {
			ticket.BackupAudioDir = &backupDir
		}
		if err := s.store.CreateUndoTicket(tx, &ticket); err != nil {
			return err
		}

		updated := ep
		if settings.VoiceID != nil {
			updated.VoiceID = *settings.VoiceID
		}
		if settings.OutputFormat != nil {
			if !models.OutputFormats[*settings.OutputFormat] {
				return errs.E(errs.KindUnsupportedType, "unsupported output format %q", *settings.OutputFormat)
			}
			updated.OutputFormat = *settings.OutputFormat
		}
		if settings.ChunkStrategy != nil {
			updated.ChunkStrategy = *settings.ChunkStrategy
		}
		if settings.ChunkMaxLength != nil {
			updated.ChunkMaxLength = *settings.ChunkMaxLength
		}
		if settings.BreathingIntensity != nil {
			updated.BreathingIntensity = *settings.BreathingIntensity
		}

		src, err := s.store.GetSource(tx, ep.SourceID)
		if err != nil {
			return err
		}
		plan, err := chunker.Plan(src.CleanedText, updated.ChunkStrategy,
			updated.ChunkMaxLength, updated.BreathingIntensity)
		if err != nil {
			return err
		}

		updated.Status = models.StatusPending
		updated.TotalDurationSecs = nil
		if err := s.store.UpdateEpisodeSettings(tx, &updated); err != nil {
			return err
		}
		if err := s.store.ReplaceChunks(tx, episodeID, planToChunks(episodeID, plan)); err != nil {
			return err
		}
		// The old plan's resume point would dangle against the new one.
		return s.store.DeletePlayback(tx, episodeID)
	})
	if err != nil {
		if backedUp {
			s.removeDir(backupDir)
		}
		return "", err
	}

	s.removeDir(audioDir)
	s.queue.Enqueue(episodeID)
	s.log.Info("episode regenerating with new settings",
		zap.String("episode_id", episodeID), zap.String("undo_id", ticketID))
	return ticketID, nil
}

// Undo restores the pre-regeneration snapshot recorded under the ticket:
// settings, chunk rows and audio files. Valid only inside the undo window.
func (s *Service) Undo(ticketID string) error {
	var backup *string
	var episodeID string

	err := s.store.InTx(func(tx *sqlx.Tx) error {
		ticket, err := s.store.TakeUndoTicket(tx, ticketID, time.Now().UTC())
		if err != nil {
			return err
		}

		var snap episodeSnapshot
		if err := json.Unmarshal(ticket.InversePayload, &snap); err != nil {
			return errs.Wrap(errs.KindInternal, err, "could not decode undo payload")
		}

		episodeID = ticket.EpisodeID
		backup = ticket.BackupAudioDir

		if _, err := s.store.GetEpisode(tx, episodeID); err != nil {
			return err
		}
		if err := s.store.UpdateEpisodeSettings(tx, &snap.Episode); err != nil {
			return err
		}
		return s.store.RestoreChunks(tx, episodeID, snap.Chunks)
	})
	if err != nil {
		return err
	}

	audioDir := s.cfg.AudioDir(episodeID)
	s.removeDir(audioDir)
	if backup != nil {
		if err := os.Rename(*backup, audioDir); err != nil {
			s.log.Error("could not restore audio backup",
				zap.String("episode_id", episodeID), zap.Error(err))
		}
	}

	s.log.Info("regeneration undone", zap.String("episode_id", episodeID), zap.String("undo_id", ticketID))
	return nil
}
