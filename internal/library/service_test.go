package library_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textcast/internal/audio"
	"textcast/internal/config"
	"textcast/internal/errs"
	"textcast/internal/ingest"
	"textcast/internal/library"
	"textcast/internal/models"
	"textcast/internal/normalize"
	"textcast/internal/store"
	"textcast/internal/test"
	"textcast/internal/tts"
)

type stubSynth struct{}

func (stubSynth) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	return make([]byte, audio.BytesPerFrame*240), nil
}

func (stubSynth) Voices(ctx context.Context) ([]tts.Voice, error) {
	return []tts.Voice{{ID: "alba", Name: "alba", Type: "builtin"}}, nil
}

type env struct {
	svc   *library.Service
	st    *store.Store
	cfg   *config.Config
	queue *test.MockEnqueuer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := test.NewTestStore(t)
	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		return st.SeedSettings(tx)
	}))

	cfg := &config.Config{DataDir: t.TempDir(), UndoWindow: 2 * time.Minute}
	log := test.Logger()
	norm := normalize.New()
	queue := &test.MockEnqueuer{}
	asm := audio.NewAssembler(audio.NewFFmpegEncoder(""), log)
	svc := library.New(st, cfg, norm, ingest.New(norm, log), queue, asm, stubSynth{}, log)
	return &env{svc: svc, st: st, cfg: cfg, queue: queue}
}

func (e *env) ingestText(t *testing.T, text string) models.Source {
	t.Helper()
	src, err := e.svc.Ingest(context.Background(), library.IngestRequest{
		Variant: models.SourceTypeText,
		Text:    text,
	})
	require.NoError(t, err)
	return src
}

func (e *env) createEpisode(t *testing.T, sourceID string) models.Episode {
	t.Helper()
	ep, _, err := e.svc.CreateEpisode(library.CreateEpisodeRequest{
		SourceID:           sourceID,
		VoiceID:            "alba",
		OutputFormat:       "wav",
		ChunkStrategy:      models.StrategyParagraph,
		ChunkMaxLength:     2000,
		BreathingIntensity: models.BreathingNone,
	})
	require.NoError(t, err)
	return ep
}

// markAllReady simulates a finished worker pass, writing real artifacts.
func (e *env) markAllReady(t *testing.T, episodeID string) {
	t.Helper()
	chunks, err := e.st.ListChunks(e.st.DB, episodeID)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(e.cfg.AudioDir(episodeID), 0o755))

	total := 0.0
	require.NoError(t, e.st.InTx(func(tx *sqlx.Tx) error {
		for _, c := range chunks {
			pcm := make([]byte, audio.BytesPerFrame*240)
			path := e.cfg.ChunkPath(episodeID, c.ChunkIndex)
			if err := audio.WriteWAVFile(path, pcm); err != nil {
				return err
			}
			d := audio.DurationSecs(len(pcm))
			total += d
			rel := filepath.ToSlash(filepath.Join(episodeID, filepath.Base(path)))
			if _, err := e.st.MarkChunkGenerating(tx, c.ID); err != nil {
				return err
			}
			if err := e.st.MarkChunkReady(tx, c.ID, rel, d); err != nil {
				return err
			}
		}
		return e.st.FinalizeEpisode(tx, episodeID, models.StatusReady, total)
	}))
}

func TestCreateEpisodeEnqueues(t *testing.T) {
	e := newEnv(t)
	src := e.ingestText(t, "Paragraph one.\n\nParagraph two.\n\nParagraph three.")

	ep, count, err := e.svc.CreateEpisode(library.CreateEpisodeRequest{SourceID: src.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, models.StatusPending, ep.Status)
	assert.Equal(t, []string{ep.ID}, e.queue.Enqueued)

	// Defaults came from settings.
	assert.Equal(t, "alba", ep.VoiceID)
	assert.Equal(t, models.StrategyParagraph, ep.ChunkStrategy)
}

func TestCreateEpisodeRejectsEmptySource(t *testing.T) {
	e := newEnv(t)
	src := e.ingestText(t, "some text")
	// Force an empty cleaned text.
	require.NoError(t, e.st.InTx(func(tx *sqlx.Tx) error {
		return e.st.UpdateSourceCleanedText(tx, src.ID, "   ", models.DefaultCleaningOptions())
	}))

	_, _, err := e.svc.CreateEpisode(library.CreateEpisodeRequest{SourceID: src.ID})
	assert.Equal(t, errs.KindEmptyContent, errs.KindOf(err))
	assert.Zero(t, e.queue.Count())
}

func TestCreateEpisodeUnknownSource(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.svc.CreateEpisode(library.CreateEpisodeRequest{SourceID: "nope"})
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestRegenerateChunkPreservesSiblings(t *testing.T) {
	e := newEnv(t)
	src := e.ingestText(t, "P0.\n\nP1.\n\nP2.\n\nP3.\n\nP4.")
	ep := e.createEpisode(t, src.ID)
	e.markAllReady(t, ep.ID)

	// Stamp sibling artifacts to detect rewrites.
	for i := 0; i < 5; i++ {
		require.FileExists(t, e.cfg.ChunkPath(ep.ID, i))
	}
	before := map[int]os.FileInfo{}
	for i := 0; i < 5; i++ {
		info, err := os.Stat(e.cfg.ChunkPath(ep.ID, i))
		require.NoError(t, err)
		before[i] = info
	}

	require.NoError(t, e.svc.RegenerateChunk(ep.ID, 3))

	chunks, err := e.st.ListChunks(e.st.DB, ep.ID)
	require.NoError(t, err)
	for i, c := range chunks {
		if i == 3 {
			assert.Equal(t, models.StatusPending, c.Status)
			continue
		}
		assert.Equal(t, models.StatusReady, c.Status, "sibling %d stays ready", i)
		info, err := os.Stat(e.cfg.ChunkPath(ep.ID, i))
		require.NoError(t, err)
		assert.Equal(t, before[i].ModTime(), info.ModTime(), "sibling %d audio untouched", i)
	}

	_, err = os.Stat(e.cfg.ChunkPath(ep.ID, 3))
	assert.True(t, os.IsNotExist(err), "chunk 3 artifact removed")
	assert.Contains(t, e.queue.Enqueued, ep.ID)
}

func TestRegenerateAllResetsEverything(t *testing.T) {
	e := newEnv(t)
	src := e.ingestText(t, "One.\n\nTwo.")
	ep := e.createEpisode(t, src.ID)
	e.markAllReady(t, ep.ID)

	require.NoError(t, e.svc.RegenerateAll(ep.ID))

	got, err := e.st.GetEpisode(e.st.DB, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.TotalDurationSecs)

	chunks, err := e.st.ListChunks(e.st.DB, ep.ID)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.Equal(t, models.StatusPending, c.Status)
		assert.Nil(t, c.AudioPath)
	}

	_, err = os.Stat(e.cfg.AudioDir(ep.ID))
	assert.True(t, os.IsNotExist(err), "audio directory removed")
}

func TestRegenerateAllRejectedWhilePending(t *testing.T) {
	e := newEnv(t)
	src := e.ingestText(t, "One.")
	ep := e.createEpisode(t, src.ID)

	err := e.svc.RegenerateAll(ep.ID)
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))
}

func TestRegenerateWithSettingsUndoRoundTrip(t *testing.T) {
	e := newEnv(t)
	src := e.ingestText(t, "P0.\n\nP1.\n\nP2.\n\nP3.")
	ep := e.createEpisode(t, src.ID)
	e.markAllReady(t, ep.ID)

	before, err := e.svc.GetEpisode(ep.ID)
	require.NoError(t, err)
	require.Equal(t, "alba", before.Episode.VoiceID)
	require.Len(t, before.Chunks, 4)

	v2 := "marius"
	undoID, err := e.svc.RegenerateWithSettings(ep.ID, library.RegenerateSettings{VoiceID: &v2})
	require.NoError(t, err)
	require.NotEmpty(t, undoID)

	mid, err := e.svc.GetEpisode(ep.ID)
	require.NoError(t, err)
	assert.Equal(t, "marius", mid.Episode.VoiceID)
	assert.Equal(t, models.StatusPending, mid.Episode.Status)

	require.NoError(t, e.svc.Undo(undoID))

	after, err := e.svc.GetEpisode(ep.ID)
	require.NoError(t, err)
	assert.Equal(t, "alba", after.Episode.VoiceID)
	assert.Equal(t, models.StatusReady, after.Episode.Status)
	require.Len(t, after.Chunks, 4)
	for i, c := range after.Chunks {
		assert.Equal(t, models.StatusReady, c.Status)
		assert.Equal(t, before.Chunks[i].Text, c.Text)
		assert.Equal(t, before.Chunks[i].AudioPath, c.AudioPath)
		require.FileExists(t, e.cfg.ChunkPath(ep.ID, i), "original audio restored")
	}
}

func TestUndoExpires(t *testing.T) {
	e := newEnv(t)
	e.cfg.UndoWindow = -1 // every ticket is born expired

	src := e.ingestText(t, "P0.\n\nP1.")
	ep := e.createEpisode(t, src.ID)
	e.markAllReady(t, ep.ID)

	v2 := "marius"
	undoID, err := e.svc.RegenerateWithSettings(ep.ID, library.RegenerateSettings{VoiceID: &v2})
	require.NoError(t, err)

	err = e.svc.Undo(undoID)
	assert.Equal(t, errs.KindUndoExpired, errs.KindOf(err))
}

func TestUndoUnknownTicket(t *testing.T) {
	e := newEnv(t)
	err := e.svc.Undo("no-such-ticket")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestCancelPendingEpisode(t *testing.T) {
	e := newEnv(t)
	src := e.ingestText(t, "One.\n\nTwo.")
	ep := e.createEpisode(t, src.ID)

	require.NoError(t, e.svc.Cancel(ep.ID))
	assert.Equal(t, models.StatusCancelled, statusOf(t, e, ep.ID))

	err := e.svc.Cancel(ep.ID)
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err), "cancelling twice is invalid")
}

func TestRetryErrors(t *testing.T) {
	e := newEnv(t)
	src := e.ingestText(t, "One.\n\nTwo.")
	ep := e.createEpisode(t, src.ID)

	chunks, err := e.st.ListChunks(e.st.DB, ep.ID)
	require.NoError(t, err)
	require.NoError(t, e.st.InTx(func(tx *sqlx.Tx) error {
		if _, err := e.st.MarkChunkGenerating(tx, chunks[0].ID); err != nil {
			return err
		}
		if err := e.st.MarkChunkError(tx, chunks[0].ID, "boom"); err != nil {
			return err
		}
		if _, err := e.st.MarkChunkGenerating(tx, chunks[1].ID); err != nil {
			return err
		}
		if err := e.st.MarkChunkReady(tx, chunks[1].ID, "p", 1.0); err != nil {
			return err
		}
		return e.st.UpdateEpisodeStatus(tx, ep.ID, models.StatusError)
	}))

	e.queue.Enqueued = nil
	require.NoError(t, e.svc.RetryErrors(ep.ID))

	after, err := e.st.ListChunks(e.st.DB, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, after[0].Status)
	assert.Equal(t, models.StatusReady, after[1].Status)
	assert.Equal(t, models.StatusGenerating, statusOf(t, e, ep.ID))
	assert.Contains(t, e.queue.Enqueued, ep.ID)
}

func TestDeleteEpisodeLeavesNoOrphans(t *testing.T) {
	e := newEnv(t)
	src := e.ingestText(t, "One.\n\nTwo.")
	ep := e.createEpisode(t, src.ID)
	e.markAllReady(t, ep.ID)
	require.NoError(t, e.svc.SavePlayback(ep.ID, 1, 0.5, 50))

	require.NoError(t, e.svc.DeleteEpisode(ep.ID))

	n, err := e.st.CountChunks(e.st.DB, ep.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "no orphan chunk rows")

	_, ok, err := e.st.GetPlayback(e.st.DB, ep.ID)
	require.NoError(t, err)
	assert.False(t, ok, "no orphan playback row")

	_, err = os.Stat(e.cfg.AudioDir(ep.ID))
	assert.True(t, os.IsNotExist(err), "no orphan files under audio/<id>/")
}

func TestBulkMoveAbortsOnMissingEpisode(t *testing.T) {
	e := newEnv(t)
	src := e.ingestText(t, "One.")
	ep := e.createEpisode(t, src.ID)

	folder, err := e.svc.CreateFolder("tech", nil)
	require.NoError(t, err)

	err = e.svc.BulkMove([]string{ep.ID, "missing"}, &folder.ID)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	got, err := e.st.GetEpisode(e.st.DB, ep.ID)
	require.NoError(t, err)
	assert.Nil(t, got.FolderID, "partial failure rolls back the whole batch")

	require.NoError(t, e.svc.BulkMove([]string{ep.ID}, &folder.ID))
	got, err = e.st.GetEpisode(e.st.DB, ep.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FolderID)
	assert.Equal(t, folder.ID, *got.FolderID)
}

func TestSavePlaybackValidatesIndex(t *testing.T) {
	e := newEnv(t)
	src := e.ingestText(t, "One.\n\nTwo.")
	ep := e.createEpisode(t, src.ID)

	require.NoError(t, e.svc.SavePlayback(ep.ID, 1, 2.5, 60))

	err := e.svc.SavePlayback(ep.ID, 2, 0, 0)
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))
	err = e.svc.SavePlayback(ep.ID, -1, 0, 0)
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))
	err = e.svc.SavePlayback("missing", 0, 0, 0)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	p, ok, err := e.st.GetPlayback(e.st.DB, ep.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, p.CurrentChunkIndex)
	assert.InDelta(t, 60, p.PercentListened, 1e-9)
}

func TestFolderPlaylistIsDepthFirstByName(t *testing.T) {
	e := newEnv(t)
	root, err := e.svc.CreateFolder("root", nil)
	require.NoError(t, err)
	beta, err := e.svc.CreateFolder("beta", &root.ID)
	require.NoError(t, err)
	alpha, err := e.svc.CreateFolder("alpha", &root.ID)
	require.NoError(t, err)

	mkEpisode := func(folderID string, title string) models.Episode {
		src := e.ingestText(t, title+" body.")
		ep, _, err := e.svc.CreateEpisode(library.CreateEpisodeRequest{
			SourceID: src.ID, Title: title, FolderID: &folderID,
		})
		require.NoError(t, err)
		e.markAllReady(t, ep.ID)
		return ep
	}

	epRoot := mkEpisode(root.ID, "in root")
	epBeta := mkEpisode(beta.ID, "in beta")
	epAlpha := mkEpisode(alpha.ID, "in alpha")

	// One non-ready episode must not appear.
	srcPending := e.ingestText(t, "pending body.")
	_, _, err = e.svc.CreateEpisode(library.CreateEpisodeRequest{
		SourceID: srcPending.ID, FolderID: &root.ID,
	})
	require.NoError(t, err)

	playlist, err := e.svc.FolderPlaylist(root.ID)
	require.NoError(t, err)
	require.Len(t, playlist, 3)
	assert.Equal(t, epRoot.ID, playlist[0].ID)
	assert.Equal(t, epAlpha.ID, playlist[1].ID, "alpha before beta, depth-first by name")
	assert.Equal(t, epBeta.ID, playlist[2].ID)
}

func TestFolderCycleRefused(t *testing.T) {
	e := newEnv(t)
	a, err := e.svc.CreateFolder("a", nil)
	require.NoError(t, err)
	b, err := e.svc.CreateFolder("b", &a.ID)
	require.NoError(t, err)

	err = e.svc.MoveFolder(a.ID, &b.ID)
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))

	err = e.svc.MoveFolder(a.ID, &a.ID)
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))
}

func TestReCleanIsDeterministicAndKeepsID(t *testing.T) {
	e := newEnv(t)
	src := e.ingestText(t, "# Title\n\nBody with [link](https://x.dev/a).")

	opts := models.DefaultCleaningOptions()
	opts.SpeakURLs = false
	first, err := e.svc.ReClean(src.ID, opts)
	require.NoError(t, err)
	second, err := e.svc.ReClean(src.ID, opts)
	require.NoError(t, err)

	assert.Equal(t, src.ID, first.ID)
	assert.Equal(t, first.CleanedText, second.CleanedText,
		"cleaned text is a pure function of raw text and options")
}

func TestPreviewChunksEmptyContent(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.PreviewChunks("   ", models.StrategyParagraph, 100)
	assert.Equal(t, errs.KindEmptyContent, errs.KindOf(err))
}

func TestFullAudioRequiresReadyEpisode(t *testing.T) {
	e := newEnv(t)
	src := e.ingestText(t, "One.")
	ep := e.createEpisode(t, src.ID)

	_, _, err := e.svc.FullAudio(ep.ID, "")
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))

	e.markAllReady(t, ep.ID)
	path, mime, err := e.svc.FullAudio(ep.ID, "wav")
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", mime)
	require.FileExists(t, path)

	// Lossless full artifact equals the concatenation of its chunk audio.
	full, err := audio.ReadWAVFile(path)
	require.NoError(t, err)
	chunk, err := audio.ReadWAVFile(e.cfg.ChunkPath(ep.ID, 0))
	require.NoError(t, err)
	assert.Equal(t, chunk, full)
}

func TestPurgeExpiredUndoTicketsRemovesBackups(t *testing.T) {
	e := newEnv(t)
	e.cfg.UndoWindow = -1

	src := e.ingestText(t, "P0.\n\nP1.")
	ep := e.createEpisode(t, src.ID)
	e.markAllReady(t, ep.ID)

	v2 := "marius"
	_, err := e.svc.RegenerateWithSettings(ep.ID, library.RegenerateSettings{VoiceID: &v2})
	require.NoError(t, err)

	e.svc.PurgeExpiredUndoTickets()

	matches, err := filepath.Glob(filepath.Join(e.cfg.DataDir, "audio", ".backup_*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "expired backups removed from disk")
}

func statusOf(t *testing.T, e *env, episodeID string) string {
	t.Helper()
	ep, err := e.st.GetEpisode(e.st.DB, episodeID)
	require.NoError(t, err)
	return ep.Status
}
