package store_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textcast/internal/errs"
	"textcast/internal/models"
	"textcast/internal/store"
	"textcast/internal/test"
)

func seedSource(t *testing.T, st *store.Store) models.Source {
	t.Helper()
	src := models.Source{
		ID:               uuid.NewString(),
		Title:            "A Source",
		SourceType:       models.SourceTypeText,
		RawText:          "raw",
		CleanedText:      "cleaned",
		CleaningSettings: models.DefaultCleaningOptions(),
	}
	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		return st.CreateSource(tx, &src)
	}))
	return src
}

func seedEpisode(t *testing.T, st *store.Store, sourceID string, chunkTexts []string) models.Episode {
	t.Helper()
	ep := models.Episode{
		ID:                 uuid.NewString(),
		SourceID:           sourceID,
		Title:              "An Episode",
		VoiceID:            "alba",
		OutputFormat:       "wav",
		ChunkStrategy:      models.StrategyParagraph,
		ChunkMaxLength:     2000,
		BreathingIntensity: models.BreathingNone,
		Status:             models.StatusPending,
	}
	chunks := make([]models.Chunk, len(chunkTexts))
	for i, text := range chunkTexts {
		chunks[i] = models.Chunk{
			ID:         uuid.NewString(),
			EpisodeID:  ep.ID,
			ChunkIndex: i,
			Text:       text,
			Label:      "Part",
			Status:     models.StatusPending,
		}
	}
	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		if err := st.CreateEpisode(tx, &ep); err != nil {
			return err
		}
		return st.InsertChunks(tx, chunks)
	}))
	return ep
}

func TestSourceRoundTrip(t *testing.T) {
	st := test.NewTestStore(t)
	src := seedSource(t, st)

	got, err := st.GetSource(st.DB, src.ID)
	require.NoError(t, err)
	assert.Equal(t, src.Title, got.Title)
	assert.Equal(t, src.CleaningSettings, got.CleaningSettings)
	assert.WithinDuration(t, time.Now().UTC(), got.CreatedAt, time.Minute)

	_, err = st.GetSource(st.DB, "missing")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestReCleaningKeepsSourceID(t *testing.T) {
	st := test.NewTestStore(t)
	src := seedSource(t, st)

	opts := models.DefaultCleaningOptions()
	opts.SpeakURLs = false
	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		return st.UpdateSourceCleanedText(tx, src.ID, "recleaned", opts)
	}))

	got, err := st.GetSource(st.DB, src.ID)
	require.NoError(t, err)
	assert.Equal(t, src.ID, got.ID)
	assert.Equal(t, "recleaned", got.CleanedText)
	assert.False(t, got.CleaningSettings.SpeakURLs)
}

func TestChunkIndexesAreUniquePerEpisode(t *testing.T) {
	st := test.NewTestStore(t)
	src := seedSource(t, st)
	ep := seedEpisode(t, st, src.ID, []string{"a", "b"})

	dup := []models.Chunk{{
		ID: uuid.NewString(), EpisodeID: ep.ID, ChunkIndex: 1,
		Text: "dup", Status: models.StatusPending,
	}}
	err := st.InTx(func(tx *sqlx.Tx) error {
		return st.InsertChunks(tx, dup)
	})
	require.Error(t, err)
}

func TestNextPendingChunkOrdering(t *testing.T) {
	st := test.NewTestStore(t)
	src := seedSource(t, st)
	ep := seedEpisode(t, st, src.ID, []string{"zero", "one", "two"})

	c, ok, err := st.NextPendingChunk(st.DB, ep.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, c.ChunkIndex)

	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		claimed, err := st.MarkChunkGenerating(tx, c.ID)
		require.True(t, claimed)
		if err != nil {
			return err
		}
		return st.MarkChunkReady(tx, c.ID, ep.ID+"/0.wav", 1.5)
	}))

	c, ok, err = st.NextPendingChunk(st.DB, ep.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, c.ChunkIndex)
}

func TestMarkChunkGeneratingIsGuarded(t *testing.T) {
	st := test.NewTestStore(t)
	src := seedSource(t, st)
	ep := seedEpisode(t, st, src.ID, []string{"only"})

	chunks, err := st.ListChunks(st.DB, ep.ID)
	require.NoError(t, err)

	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		claimed, err := st.MarkChunkGenerating(tx, chunks[0].ID)
		assert.True(t, claimed)
		return err
	}))

	// A second claim must fail: the chunk is no longer pending.
	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		claimed, err := st.MarkChunkGenerating(tx, chunks[0].ID)
		assert.False(t, claimed)
		return err
	}))
}

func TestDeleteEpisodeCascades(t *testing.T) {
	st := test.NewTestStore(t)
	src := seedSource(t, st)
	ep := seedEpisode(t, st, src.ID, []string{"a", "b"})

	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		return st.SavePlayback(tx, &models.PlaybackState{EpisodeID: ep.ID, CurrentChunkIndex: 1})
	}))

	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		return st.DeleteEpisode(tx, ep.ID)
	}))

	n, err := st.CountChunks(st.DB, ep.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "chunks must cascade")

	_, ok, err := st.GetPlayback(st.DB, ep.ID)
	require.NoError(t, err)
	assert.False(t, ok, "playback state must cascade")
}

func TestDeleteSourceCascadesToEpisodes(t *testing.T) {
	st := test.NewTestStore(t)
	src := seedSource(t, st)
	ep := seedEpisode(t, st, src.ID, []string{"a"})

	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		return st.DeleteSource(tx, src.ID)
	}))

	_, err := st.GetEpisode(st.DB, ep.ID)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestRecoveryResetsGeneratingChunks(t *testing.T) {
	st := test.NewTestStore(t)
	src := seedSource(t, st)
	ep := seedEpisode(t, st, src.ID, []string{"a", "b", "c", "d", "e"})

	// Simulate a crash: chunks 0-1 ready, chunk 2 generating, rest pending,
	// episode generating.
	chunks, err := st.ListChunks(st.DB, ep.ID)
	require.NoError(t, err)
	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		for i := 0; i < 2; i++ {
			if _, err := st.MarkChunkGenerating(tx, chunks[i].ID); err != nil {
				return err
			}
			if err := st.MarkChunkReady(tx, chunks[i].ID, "p", 1.0); err != nil {
				return err
			}
		}
		if _, err := st.MarkChunkGenerating(tx, chunks[2].ID); err != nil {
			return err
		}
		return st.UpdateEpisodeStatus(tx, ep.ID, models.StatusGenerating)
	}))

	resume, err := st.Recover()
	require.NoError(t, err)
	assert.Contains(t, resume, ep.ID)

	after, err := st.ListChunks(st.DB, ep.ID)
	require.NoError(t, err)
	for _, c := range after {
		assert.NotEqual(t, models.StatusGenerating, c.Status,
			"no chunk may remain generating after recovery")
	}
	assert.Equal(t, models.StatusReady, after[0].Status)
	assert.Equal(t, models.StatusPending, after[2].Status)

	got, err := st.GetEpisode(st.DB, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGenerating, got.Status)
}

func TestRecoveryFinalizesCompletedEpisodes(t *testing.T) {
	st := test.NewTestStore(t)
	src := seedSource(t, st)
	ep := seedEpisode(t, st, src.ID, []string{"a", "b"})

	chunks, err := st.ListChunks(st.DB, ep.ID)
	require.NoError(t, err)
	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		for _, c := range chunks {
			if _, err := st.MarkChunkGenerating(tx, c.ID); err != nil {
				return err
			}
			if err := st.MarkChunkReady(tx, c.ID, "p", 2.0); err != nil {
				return err
			}
		}
		// Crash happened before the episode row was finalized.
		return st.UpdateEpisodeStatus(tx, ep.ID, models.StatusGenerating)
	}))

	resume, err := st.Recover()
	require.NoError(t, err)
	assert.NotContains(t, resume, ep.ID)

	got, err := st.GetEpisode(st.DB, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, got.Status)
	require.NotNil(t, got.TotalDurationSecs)
	assert.InDelta(t, 4.0, *got.TotalDurationSecs, 1e-9)
}

func TestUndoTicketLifecycle(t *testing.T) {
	st := test.NewTestStore(t)

	ticket := models.UndoTicket{
		ID:             uuid.NewString(),
		EpisodeID:      "ep",
		OperationKind:  "regenerate_with_settings",
		InversePayload: []byte(`{}`),
		ExpiresAt:      time.Now().UTC().Add(time.Minute),
	}
	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		return st.CreateUndoTicket(tx, &ticket)
	}))

	// Redeeming twice must fail the second time.
	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		_, err := st.TakeUndoTicket(tx, ticket.ID, time.Now().UTC())
		return err
	}))
	err := st.InTx(func(tx *sqlx.Tx) error {
		_, err := st.TakeUndoTicket(tx, ticket.ID, time.Now().UTC())
		return err
	})
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestUndoTicketExpiry(t *testing.T) {
	st := test.NewTestStore(t)

	ticket := models.UndoTicket{
		ID:             uuid.NewString(),
		EpisodeID:      "ep",
		OperationKind:  "regenerate_with_settings",
		InversePayload: []byte(`{}`),
		ExpiresAt:      time.Now().UTC().Add(-time.Second),
	}
	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		return st.CreateUndoTicket(tx, &ticket)
	}))

	err := st.InTx(func(tx *sqlx.Tx) error {
		_, err := st.TakeUndoTicket(tx, ticket.ID, time.Now().UTC())
		return err
	})
	assert.Equal(t, errs.KindUndoExpired, errs.KindOf(err))

	expired, err := st.ExpiredUndoTickets(st.DB, time.Now().UTC())
	require.NoError(t, err)
	assert.Len(t, expired, 1)
}

func TestFolderDeleteReparents(t *testing.T) {
	st := test.NewTestStore(t)

	parent := models.Folder{ID: uuid.NewString(), Name: "parent"}
	child := models.Folder{ID: uuid.NewString(), Name: "child", ParentID: &parent.ID}
	grandchild := models.Folder{ID: uuid.NewString(), Name: "grandchild", ParentID: &child.ID}
	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		for _, f := range []*models.Folder{&parent, &child, &grandchild} {
			if err := st.CreateFolder(tx, f); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		return st.DeleteFolder(tx, child.ID, child.ParentID)
	}))

	got, err := st.GetFolder(st.DB, grandchild.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, parent.ID, *got.ParentID)
}

func TestSettingsSeedAndUpdate(t *testing.T) {
	st := test.NewTestStore(t)
	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		return st.SeedSettings(tx)
	}))

	settings, err := st.GetSettings(st.DB)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyParagraph, settings["default_chunk_strategy"])

	require.NoError(t, st.InTx(func(tx *sqlx.Tx) error {
		return st.PutSetting(tx, "default_voice", "marius")
	}))
	settings, err = st.GetSettings(st.DB)
	require.NoError(t, err)
	assert.Equal(t, "marius", settings["default_voice"])
}
