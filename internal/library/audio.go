package library

import (
	"path/filepath"

	"textcast/internal/audio"
	"textcast/internal/errs"
	"textcast/internal/models"
)

// ChunkAudio resolves the on-disk artifact of one ready chunk. The path is
// served with range support by the HTTP layer.
func (s *Service) ChunkAudio(episodeID string, chunkIndex int) (path, mimeType string, err error) {
	chunk, err := s.store.GetChunk(s.store.DB, episodeID, chunkIndex)
	if err != nil {
		return "", "", err
	}
	if chunk.Status != models.StatusReady || chunk.AudioPath == nil {
		return "", "", errs.E(errs.KindInvalidState,
			"chunk %d of episode %q is %s, not ready", chunkIndex, episodeID, chunk.Status)
	}

	abs := filepath.Join(s.cfg.DataDir, "audio", filepath.FromSlash(*chunk.AudioPath))
	return abs, audio.MimeType("wav"), nil
}

// FullAudio returns the lazily assembled full-episode artifact in the
// requested format (empty = the episode's own output format). The episode
// must be ready.
func (s *Service) FullAudio(episodeID, format string) (path, mimeType string, err error) {
	ep, err := s.store.GetEpisode(s.store.DB, episodeID)
	if err != nil {
		return "", "", err
	}
	if ep.Status != models.StatusReady {
		return "", "", errs.E(errs.KindInvalidState, "episode %q is %s, not ready", episodeID, ep.Status)
	}

	if format == "" {
		format = ep.OutputFormat
	}
	if !models.OutputFormats[format] {
		return "", "", errs.E(errs.KindUnsupportedType, "unsupported output format %q", format)
	}

	chunks, err := s.store.ListChunks(s.store.DB, episodeID)
	if err != nil {
		return "", "", err
	}
	paths := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.Status != models.StatusReady {
			return "", "", errs.E(errs.KindInvalidState,
				"chunk %d of episode %q is %s, not ready", c.ChunkIndex, episodeID, c.Status)
		}
		paths = append(paths, s.cfg.ChunkPath(episodeID, c.ChunkIndex))
	}

	out, err := s.asm.FullEpisode(episodeID, format, s.cfg.FullEpisodePath(episodeID, format), paths)
	if err != nil {
		return "", "", err
	}
	return out, audio.MimeType(format), nil
}
