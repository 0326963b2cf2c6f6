package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func chunksWith(statuses ...string) []Chunk {
	out := make([]Chunk, len(statuses))
	for i, s := range statuses {
		out[i] = Chunk{ChunkIndex: i, Status: s}
	}
	return out
}

func TestEpisodeStatusFromChunks(t *testing.T) {
	assert.Equal(t, "", EpisodeStatusFromChunks(nil))
	assert.Equal(t, StatusPending, EpisodeStatusFromChunks(chunksWith(StatusPending, StatusPending)))
	assert.Equal(t, StatusReady, EpisodeStatusFromChunks(chunksWith(StatusReady, StatusReady)))
	assert.Equal(t, StatusError, EpisodeStatusFromChunks(chunksWith(StatusReady, StatusError)))
	assert.Equal(t, StatusGenerating, EpisodeStatusFromChunks(chunksWith(StatusReady, StatusPending)))
	assert.Equal(t, StatusGenerating, EpisodeStatusFromChunks(chunksWith(StatusGenerating, StatusPending)))
	assert.Equal(t, StatusGenerating, EpisodeStatusFromChunks(chunksWith(StatusError, StatusPending)))
}

func TestCleaningOptionsScanValue(t *testing.T) {
	opts := DefaultCleaningOptions()
	opts.SpeakURLs = false

	v, err := opts.Value()
	assert.NoError(t, err)

	var back CleaningOptions
	assert.NoError(t, back.Scan(v))
	assert.Equal(t, opts, back)

	var fromNil CleaningOptions
	assert.NoError(t, fromNil.Scan(nil))
	assert.Equal(t, DefaultCleaningOptions(), fromNil)
}
