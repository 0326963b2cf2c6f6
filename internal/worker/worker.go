// Package worker drives TTS synthesis over pending chunks. A single
// cooperative goroutine owns the model: at most one chunk is generating at
// any moment, process-wide, by construction rather than by locking.
package worker

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"textcast/internal/audio"
	"textcast/internal/config"
	"textcast/internal/models"
	"textcast/internal/store"
	"textcast/internal/tts"
)

// Enqueuer is the admission surface the library service depends on. It is
// implemented by *Worker and mocked in tests.
type Enqueuer interface {
	Enqueue(episodeID string)
}

// Status is the point-in-time snapshot exposed for status polling.
type Status struct {
	QueueSize         int    `json:"queue_size"`
	CurrentEpisodeID  string `json:"current_episode_id,omitempty"`
	CurrentChunkIndex int    `json:"current_chunk_index"`
}

// Worker drains the episode queue. Within an episode chunks are processed in
// ascending index; across episodes, admission order.
type Worker struct {
	store *store.Store
	cfg   *config.Config
	synth tts.Synthesizer
	log   *zap.Logger
	queue *fifo

	mu           sync.Mutex
	currentEp    string
	currentChunk int

	stop chan struct{}
	done chan struct{}
}

// New builds a Worker. Call Start to launch the loop.
func New(st *store.Store, cfg *config.Config, synth tts.Synthesizer, log *zap.Logger) *Worker {
	return &Worker{
		store:        st,
		cfg:          cfg,
		synth:        synth,
		log:          log,
		queue:        newFIFO(),
		currentChunk: -1,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the worker goroutine. Callers run store.Recover first and
// pass the episodes that still need work.
func (w *Worker) Start(resume []string) {
	for _, id := range resume {
		w.queue.enqueue(id)
	}
	go w.run()
	w.log.Info("synthesis worker started", zap.Int("resumed_episodes", len(resume)))
}

// Stop asks the loop to exit after the current chunk and waits for it.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

// Enqueue admits an episode for generation. Idempotent for episodes already
// waiting.
func (w *Worker) Enqueue(episodeID string) {
	w.queue.enqueue(episodeID)
	w.log.Info("episode enqueued", zap.String("episode_id", episodeID))
}

// Snapshot reports the queue depth and the chunk currently generating.
// CurrentChunkIndex is -1 when the worker is idle.
func (w *Worker) Snapshot() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		QueueSize:         w.queue.size(),
		CurrentEpisodeID:  w.currentEp,
		CurrentChunkIndex: w.currentChunk,
	}
}

func (w *Worker) setCurrent(episodeID string, chunkIndex int) {
	w.mu.Lock()
	w.currentEp = episodeID
	w.currentChunk = chunkIndex
	w.mu.Unlock()
}

func (w *Worker) stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		id, ok := w.queue.next(w.stop)
		if !ok {
			return
		}
		w.processEpisode(id)
		if w.stopping() {
			return
		}
	}
}

// processEpisode runs one pass over an episode's pending chunks. Synthesis
// failures are recorded on the chunk and never abort the pass; the episode
// finalizes as error only when no pending work remains and at least one
// chunk failed.
func (w *Worker) processEpisode(episodeID string) {
	w.setCurrent(episodeID, -1)
	defer w.setCurrent("", -1)

	skip := false
	err := w.store.InTx(func(tx *sqlx.Tx) error {
		ep, err := w.store.GetEpisode(tx, episodeID)
		if err != nil {
			skip = true
			return nil
		}
		switch ep.Status {
		case models.StatusPending, models.StatusError:
			return w.store.UpdateEpisodeStatus(tx, episodeID, models.StatusGenerating)
		case models.StatusGenerating:
			return nil
		default:
			// cancelled or ready: nothing to do this pass.
			skip = true
			return nil
		}
	})
	if err != nil {
		w.log.Error("could not start episode pass", zap.String("episode_id", episodeID), zap.Error(err))
		return
	}
	if skip {
		return
	}

	w.log.Info("generation started", zap.String("episode_id", episodeID))

	for {
		if w.stopping() {
			return
		}

		chunk, episode, state := w.claimNextChunk(episodeID)
		if state != claimOK {
			return
		}

		w.setCurrent(episodeID, chunk.ChunkIndex)
		w.synthesizeChunk(episode, chunk)
		w.setCurrent(episodeID, -1)
	}
}

type claimState int

const (
	claimOK claimState = iota
	claimDone
	claimFailed
)

// claimNextChunk atomically selects the lowest-index pending chunk and
// transitions it to generating. When none remain it re-evaluates the
// episode's aggregate state and finalizes it.
func (w *Worker) claimNextChunk(episodeID string) (models.Chunk, models.Episode, claimState) {
	var (
		chunk   models.Chunk
		episode models.Episode
		state   = claimFailed
	)

	err := w.store.InTx(func(tx *sqlx.Tx) error {
		ep, err := w.store.GetEpisode(tx, episodeID)
		if err != nil {
			state = claimDone
			return nil
		}
		if ep.Status == models.StatusCancelled {
			state = claimDone
			return nil
		}

		c, ok, err := w.store.NextPendingChunk(tx, episodeID)
		if err != nil {
			return err
		}
		if !ok {
			state = claimDone
			return w.finalizeEpisode(tx, episodeID)
		}

		claimed, err := w.store.MarkChunkGenerating(tx, c.ID)
		if err != nil {
			return err
		}
		if !claimed {
			// Raced with a cancellation reset; the next claim will see the
			// episode's new state.
			state = claimDone
			return nil
		}

		chunk = c
		episode = ep
		state = claimOK
		return nil
	})
	if err != nil {
		w.log.Error("chunk claim failed", zap.String("episode_id", episodeID), zap.Error(err))
		return chunk, episode, claimFailed
	}
	return chunk, episode, state
}

// finalizeEpisode recomputes the aggregate status once no pending chunks
// remain. Runs inside the claim transaction.
func (w *Worker) finalizeEpisode(tx *sqlx.Tx, episodeID string) error {
	chunks, err := w.store.ListChunks(tx, episodeID)
	if err != nil {
		return err
	}

	status := models.EpisodeStatusFromChunks(chunks)
	if status != models.StatusReady && status != models.StatusError {
		return nil
	}

	total := 0.0
	for _, c := range chunks {
		if c.DurationSecs != nil {
			total += *c.DurationSecs
		}
	}
	if err := w.store.FinalizeEpisode(tx, episodeID, status, total); err != nil {
		return err
	}

	w.log.Info("generation finished",
		zap.String("episode_id", episodeID),
		zap.String("status", status),
		zap.Float64("total_duration_secs", total))
	return nil
}

// synthesizeChunk calls the model outside any transaction, persists the
// artifact, and commits the result — unless the episode was cancelled in
// the meantime, in which case the PCM is discarded and the chunk stays
// pending.
func (w *Worker) synthesizeChunk(episode models.Episode, chunk models.Chunk) {
	pcm, err := w.synth.Synthesize(context.Background(), chunk.Text, episode.VoiceID)
	if err == nil {
		err = audio.ValidatePCM(pcm)
	}
	if err != nil {
		w.log.Warn("chunk synthesis failed",
			zap.String("episode_id", episode.ID),
			zap.Int("chunk_index", chunk.ChunkIndex),
			zap.Error(err))
		w.recordChunkFailure(episode.ID, chunk, err)
		return
	}

	dir := w.cfg.AudioDir(episode.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.recordChunkFailure(episode.ID, chunk, err)
		return
	}

	path := w.cfg.ChunkPath(episode.ID, chunk.ChunkIndex)
	if err := audio.WriteWAVFile(path, pcm); err != nil {
		w.recordChunkFailure(episode.ID, chunk, err)
		return
	}
	duration := audio.DurationSecs(len(pcm))

	cancelled := false
	err = w.store.InTx(func(tx *sqlx.Tx) error {
		ep, err := w.store.GetEpisode(tx, episode.ID)
		if err != nil || ep.Status == models.StatusCancelled {
			// Never mark ready an artifact whose episode was cancelled
			// after the synthesis started.
			cancelled = true
			if err != nil {
				return nil
			}
			return w.store.ResetChunk(tx, chunk.ID)
		}
		relPath := filepath.ToSlash(filepath.Join(episode.ID, strconv.Itoa(chunk.ChunkIndex)+".wav"))
		return w.store.MarkChunkReady(tx, chunk.ID, relPath, duration)
	})
	if err != nil {
		w.log.Error("could not commit chunk result",
			zap.String("episode_id", episode.ID),
			zap.Int("chunk_index", chunk.ChunkIndex),
			zap.Error(err))
		return
	}

	if cancelled {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			w.log.Warn("could not remove cancelled artifact", zap.String("path", path), zap.Error(rmErr))
		}
		return
	}

	w.log.Info("chunk ready",
		zap.String("episode_id", episode.ID),
		zap.Int("chunk_index", chunk.ChunkIndex),
		zap.Int("chars", len(chunk.Text)),
		zap.Float64("duration_secs", duration))
}

// recordChunkFailure marks the chunk error unless the episode was cancelled,
// in which case the chunk rolls back to pending.
func (w *Worker) recordChunkFailure(episodeID string, chunk models.Chunk, cause error) {
	err := w.store.InTx(func(tx *sqlx.Tx) error {
		ep, err := w.store.GetEpisode(tx, episodeID)
		if err != nil {
			return nil
		}
		if ep.Status == models.StatusCancelled {
			return w.store.ResetChunk(tx, chunk.ID)
		}
		return w.store.MarkChunkError(tx, chunk.ID, cause.Error())
	})
	if err != nil {
		w.log.Error("could not record chunk failure",
			zap.String("episode_id", episodeID),
			zap.Int("chunk_index", chunk.ChunkIndex),
			zap.Error(err))
	}
}
