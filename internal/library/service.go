// Package library coordinates the multi-entity operations behind the HTTP
// surface: ingestion, episode lifecycle, regeneration with undo, folders,
// tags, playback and settings. Every mutating operation is a single
// transaction; on-disk cleanup happens best-effort after commit.
package library

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"textcast/internal/audio"
	"textcast/internal/chunker"
	"textcast/internal/config"
	"textcast/internal/errs"
	"textcast/internal/ingest"
	"textcast/internal/models"
	"textcast/internal/normalize"
	"textcast/internal/store"
	"textcast/internal/tts"
	"textcast/internal/worker"
)

// Service is the library facade. Construct with New; all dependencies are
// explicit handles, initialized once at startup.
type Service struct {
	store *store.Store
	cfg   *config.Config
	norm  *normalize.Normalizer
	ing   *ingest.Ingestor
	queue worker.Enqueuer
	asm   *audio.Assembler
	synth tts.Synthesizer
	log   *zap.Logger
}

// New wires the service.
func New(st *store.Store, cfg *config.Config, norm *normalize.Normalizer, ing *ingest.Ingestor,
	queue worker.Enqueuer, asm *audio.Assembler, synth tts.Synthesizer, log *zap.Logger) *Service {
	return &Service{
		store: st,
		cfg:   cfg,
		norm:  norm,
		ing:   ing,
		queue: queue,
		asm:   asm,
		synth: synth,
		log:   log,
	}
}

// IngestRequest selects an input variant and its payload. Exactly one of
// Text, Filename+Data, URL (with optional Subpath for git) is used.
type IngestRequest struct {
	Variant  string
	Title    string
	Text     string
	Filename string
	Data     []byte
	URL      string
	Subpath  string
	FolderID *string
	Cleaning *models.CleaningOptions
}

// Ingest turns raw input into a persisted Source with cleaned text. Nothing
// is persisted when ingestion fails.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (models.Source, error) {
	var (
		res models.Source
		r   ingest.Result
		err error
	)

	switch req.Variant {
	case models.SourceTypeText:
		r, err = s.ing.Text(req.Title, req.Text)
	case models.SourceTypeFile:
		r, err = s.ing.File(req.Filename, req.Data)
	case models.SourceTypeURL:
		r, err = s.ing.URL(ctx, req.URL)
	case models.SourceTypeGit:
		r, err = s.ing.Git(ctx, req.URL, req.Subpath)
	default:
		return res, errs.E(errs.KindUnsupportedType, "unknown source variant %q", req.Variant)
	}
	if err != nil {
		return res, err
	}

	opts := req.Cleaning
	if opts == nil {
		o, err := s.cleaningDefaults()
		if err != nil {
			return res, err
		}
		opts = &o
	}

	src := models.Source{
		ID:               uuid.NewString(),
		Title:            r.Title,
		SourceType:       r.SourceType,
		OriginalFilename: r.OriginalFilename,
		OriginalURL:      r.OriginalURL,
		RawText:          r.RawText,
		CleanedText:      s.norm.Normalize(r.RawText, *opts),
		CleaningSettings: *opts,
		FolderID:         req.FolderID,
	}
	if req.Title != "" {
		src.Title = req.Title
	}

	err = s.store.InTx(func(tx *sqlx.Tx) error {
		if src.FolderID != nil {
			if err := s.requireFolder(tx, *src.FolderID); err != nil {
				return err
			}
		}
		return s.store.CreateSource(tx, &src)
	})
	if err != nil {
		return res, err
	}

	s.persistRawBlob(&src)
	s.log.Info("source ingested",
		zap.String("source_id", src.ID),
		zap.String("type", src.SourceType),
		zap.Int("chars", len(src.RawText)))
	return src, nil
}

// persistRawBlob writes the source's raw text under sources/<id>/ so re-import
// and backups do not depend on the database alone. Best-effort.
func (s *Service) persistRawBlob(src *models.Source) {
	dir := s.cfg.SourceDir(src.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Warn("could not create source directory", zap.String("source_id", src.ID), zap.Error(err))
		return
	}
	name := "raw.txt"
	if src.OriginalFilename != nil {
		name = *src.OriginalFilename
	}
	if err := os.WriteFile(dir+"/"+name, []byte(src.RawText), 0o644); err != nil {
		s.log.Warn("could not persist raw blob", zap.String("source_id", src.ID), zap.Error(err))
	}
}

// GetSource returns one source with its tags.
func (s *Service) GetSource(id string) (models.Source, []models.Tag, error) {
	src, err := s.store.GetSource(s.store.DB, id)
	if err != nil {
		return src, nil, err
	}
	tags, err := s.store.ListSourceTags(s.store.DB, id)
	return src, tags, err
}

// ListSources lists source summaries filtered by folder or tag.
func (s *Service) ListSources(folderID *string, tag string) ([]models.Source, error) {
	return s.store.ListSources(s.store.DB, folderID, tag)
}

// ReClean re-runs the cleaning pipeline over a source's raw text with new
// options. The cleaned text is replaced in place; the source id and raw
// text never change.
func (s *Service) ReClean(sourceID string, opts models.CleaningOptions) (models.Source, error) {
	var src models.Source
	err := s.store.InTx(func(tx *sqlx.Tx) error {
		var err error
		src, err = s.store.GetSource(tx, sourceID)
		if err != nil {
			return err
		}
		src.CleanedText = s.norm.Normalize(src.RawText, opts)
		src.CleaningSettings = opts
		return s.store.UpdateSourceCleanedText(tx, sourceID, src.CleanedText, opts)
	})
	return src, err
}

// PreviewClean runs the cleaning pipeline without persisting anything.
func (s *Service) PreviewClean(raw string, opts models.CleaningOptions) string {
	return s.norm.Normalize(raw, opts)
}

// PreviewChunks shows the chunk plan a text would produce. Breathing is not
// applied in previews.
func (s *Service) PreviewChunks(text, strategy string, maxChars int) ([]chunker.Chunk, error) {
	return chunker.Plan(text, strategy, maxChars, models.BreathingNone)
}

// DeleteSource removes a source, its episodes, their chunks and every
// artifact under the data directory.
func (s *Service) DeleteSource(id string) error {
	var episodeIDs []string
	var backups []string

	err := s.store.InTx(func(tx *sqlx.Tx) error {
		episodes, err := s.store.ListEpisodes(tx, &id, nil)
		if err != nil {
			return err
		}
		for _, e := range episodes {
			episodeIDs = append(episodeIDs, e.ID)
			tickets, err := s.store.DeleteUndoTicketsForEpisode(tx, e.ID)
			if err != nil {
				return err
			}
			for _, t := range tickets {
				if t.BackupAudioDir != nil {
					backups = append(backups, *t.BackupAudioDir)
				}
			}
		}
		return s.store.DeleteSource(tx, id)
	})
	if err != nil {
		return err
	}

	for _, epID := range episodeIDs {
		s.removeDir(s.cfg.AudioDir(epID))
	}
	for _, dir := range backups {
		s.removeDir(dir)
	}
	s.removeDir(s.cfg.SourceDir(id))
	return nil
}

// SetSourceCover stores uploaded cover art beside the source blob.
func (s *Service) SetSourceCover(sourceID string, data []byte, ext string) (string, error) {
	if _, err := s.store.GetSource(s.store.DB, sourceID); err != nil {
		return "", err
	}
	ext = strings.ToLower(ext)
	if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
		return "", errs.E(errs.KindUnsupportedType, "unsupported cover art type %q", ext)
	}

	dir := s.cfg.SourceDir(sourceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errs.Wrap(errs.KindInternal, err, "could not create source directory")
	}
	path := dir + "/cover" + ext
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errs.Wrap(errs.KindInternal, err, "could not write cover art")
	}

	rel := "cover" + ext
	err := s.store.InTx(func(tx *sqlx.Tx) error {
		return s.store.UpdateSourceCover(tx, sourceID, rel)
	})
	return path, err
}

// CoverPath resolves the on-disk path of a source's cover art.
func (s *Service) CoverPath(sourceID string) (string, error) {
	src, err := s.store.GetSource(s.store.DB, sourceID)
	if err != nil {
		return "", err
	}
	if src.CoverArt == nil {
		return "", errs.E(errs.KindNotFound, "source %q has no cover art", sourceID)
	}
	return s.cfg.SourceDir(sourceID) + "/" + *src.CoverArt, nil
}

// Voices lists the synthesizer's available voices.
func (s *Service) Voices(ctx context.Context) ([]tts.Voice, error) {
	return s.synth.Voices(ctx)
}

// Settings returns the persisted preference map.
func (s *Service) Settings() (map[string]string, error) {
	return s.store.GetSettings(s.store.DB)
}

// UpdateSettings upserts preference keys atomically.
func (s *Service) UpdateSettings(values map[string]string) error {
	return s.store.InTx(func(tx *sqlx.Tx) error {
		for k, v := range values {
			if err := s.store.PutSetting(tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// cleaningDefaults assembles CleaningOptions from the settings table.
func (s *Service) cleaningDefaults() (models.CleaningOptions, error) {
	settings, err := s.store.GetSettings(s.store.DB)
	if err != nil {
		return models.CleaningOptions{}, err
	}
	opts := models.DefaultCleaningOptions()
	if v, ok := settings["clean_code_block_rule"]; ok && v != "" {
		opts.CodeBlockRule = v
	}
	opts.RemoveNonText = settingBool(settings, "clean_remove_non_text", opts.RemoveNonText)
	opts.HandleTables = settingBool(settings, "clean_handle_tables", opts.HandleTables)
	opts.SpeakURLs = settingBool(settings, "clean_speak_urls", opts.SpeakURLs)
	opts.ExpandAbbreviations = settingBool(settings, "clean_expand_abbreviations", opts.ExpandAbbreviations)
	opts.PreserveParentheses = settingBool(settings, "clean_preserve_parentheses", opts.PreserveParentheses)
	return opts, nil
}

func settingBool(settings map[string]string, key string, fallback bool) bool {
	v, ok := settings[key]
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func (s *Service) requireFolder(q sqlx.Ext, id string) error {
	ok, err := s.store.FolderExists(q, id)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFound("folder", id)
	}
	return nil
}

// removeDir is the best-effort post-commit cleanup; a failed unlink is
// logged, never surfaced.
func (s *Service) removeDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		s.log.Warn("could not remove directory", zap.String("dir", dir), zap.Error(err))
	}
}
