// Package config holds process-wide configuration read from the environment.
// Runtime preferences (default voice, chunk strategy, cleaning flags) are not
// here; they live in the persisted settings table and are editable at runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config is the process configuration, populated once at startup.
type Config struct {
	DataDir    string
	VoicesDir  string
	Host       string
	Port       int
	LogLevel   string
	BaseURL    string
	TTSURL     string
	FFmpegPath string
	UndoWindow time.Duration
}

// Load reads configuration from the environment. DATA_DIR is the only
// required variable.
func Load() (*Config, error) {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		return nil, fmt.Errorf("DATA_DIR is not set")
	}

	cfg := &Config{
		DataDir:    dataDir,
		VoicesDir:  os.Getenv("VOICES_DIR"),
		Host:       envOr("HOST", "0.0.0.0"),
		LogLevel:   envOr("LOG_LEVEL", "info"),
		BaseURL:    os.Getenv("BASE_URL"),
		TTSURL:     envOr("TTS_URL", "http://127.0.0.1:49112"),
		FFmpegPath: envOr("FFMPEG_PATH", "ffmpeg"),
		UndoWindow: 2 * time.Minute,
	}

	port := envOr("PORT", "8080")
	p, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT %q: %w", port, err)
	}
	cfg.Port = p

	if w := os.Getenv("UNDO_WINDOW"); w != "" {
		d, err := time.ParseDuration(w)
		if err != nil {
			return nil, fmt.Errorf("invalid UNDO_WINDOW %q: %w", w, err)
		}
		cfg.UndoWindow = d
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// DBPath is the SQLite file under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "library.db")
}

// SourceDir is where a source's raw upload and cover art live.
func (c *Config) SourceDir(sourceID string) string {
	return filepath.Join(c.DataDir, "sources", sourceID)
}

// AudioDir is the per-episode audio directory.
func (c *Config) AudioDir(episodeID string) string {
	return filepath.Join(c.DataDir, "audio", episodeID)
}

// ChunkPath is the per-chunk PCM artifact.
func (c *Config) ChunkPath(episodeID string, chunkIndex int) string {
	return filepath.Join(c.AudioDir(episodeID), fmt.Sprintf("%d.wav", chunkIndex))
}

// FullEpisodePath is the lazily assembled full-episode artifact.
func (c *Config) FullEpisodePath(episodeID, format string) string {
	return filepath.Join(c.AudioDir(episodeID), "full."+format)
}
