package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"textcast/internal/errs"
)

// Assembler concatenates per-chunk artifacts into a single full-episode
// stream, lazily, cached on disk beside the chunks. A per-episode advisory
// mutex prevents duplicate concatenation under concurrent downloads.
type Assembler struct {
	enc Encoder
	log *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAssembler builds an Assembler around the codec collaborator.
func NewAssembler(enc Encoder, log *zap.Logger) *Assembler {
	return &Assembler{enc: enc, log: log, locks: make(map[string]*sync.Mutex)}
}

func (a *Assembler) episodeLock(episodeID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[episodeID]
	if !ok {
		l = &sync.Mutex{}
		a.locks[episodeID] = l
	}
	return l
}

// ConcatPCM reads the ordered chunk files and joins their samples. Every
// file must conform to the PCM contract; concatenation is sample-accurate
// with no cross-fades.
func (a *Assembler) ConcatPCM(chunkPaths []string) ([]byte, error) {
	if len(chunkPaths) == 0 {
		return nil, errs.E(errs.KindInvalidState, "no chunk audio to assemble")
	}

	var pcm []byte
	for _, path := range chunkPaths {
		part, err := ReadWAVFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errs.E(errs.KindNotFound, "chunk audio %q is missing", filepath.Base(path))
			}
			return nil, err
		}
		pcm = append(pcm, part...)
	}
	return pcm, nil
}

// FullEpisode returns the path of the assembled artifact for the episode,
// building and caching it on first request.
func (a *Assembler) FullEpisode(episodeID, format, outPath string, chunkPaths []string) (string, error) {
	lock := a.episodeLock(episodeID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(outPath); err == nil {
		return outPath, nil
	}

	pcm, err := a.ConcatPCM(chunkPaths)
	if err != nil {
		return "", err
	}

	encoded, err := a.enc.Encode(pcm, format)
	if err != nil {
		return "", err
	}

	tmp := outPath + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename %s: %w", outPath, err)
	}

	a.log.Info("assembled full episode",
		zap.String("episode_id", episodeID),
		zap.String("format", format),
		zap.Int("chunks", len(chunkPaths)),
		zap.Int("bytes", len(encoded)))
	return outPath, nil
}

// Invalidate removes cached full-episode artifacts. Called whenever any
// chunk transitions away from ready. Removal is best-effort; a stale cache
// file is rebuilt on the next request anyway.
func (a *Assembler) Invalidate(audioDir string) {
	matches, err := filepath.Glob(filepath.Join(audioDir, "full.*"))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			a.log.Warn("could not remove stale artifact", zap.String("path", m), zap.Error(err))
		}
	}
}
