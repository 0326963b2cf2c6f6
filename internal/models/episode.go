package models

import "time"

// Episode and chunk statuses. Chunks never become cancelled; cancelling an
// episode rolls its unfinished chunks back to pending.
const (
	StatusPending    = "pending"
	StatusGenerating = "generating"
	StatusReady      = "ready"
	StatusError      = "error"
	StatusCancelled  = "cancelled"
)

// Chunk strategies.
const (
	StrategyParagraph = "paragraph"
	StrategySentence  = "sentence"
	StrategyHeading   = "heading"
	StrategyMaxChars  = "max_chars"
)

// Breathing intensities.
const (
	BreathingNone   = "none"
	BreathingLight  = "light"
	BreathingNormal = "normal"
	BreathingHeavy  = "heavy"
)

// Output formats accepted for episodes and full-episode assembly.
var OutputFormats = map[string]bool{
	"wav":  true,
	"mp3":  true,
	"opus": true,
	"flac": true,
	"pcm":  true,
}

// Episode is a generation job over a source with a fixed chunk plan and
// voice. The chunk plan is immutable for the lifetime of the episode;
// regeneration with settings replaces it atomically inside an undo window.
type Episode struct {
	ID                 string     `db:"id" json:"id"`
	SourceID           string     `db:"source_id" json:"source_id"`
	Title              string     `db:"title" json:"title"`
	VoiceID            string     `db:"voice_id" json:"voice_id"`
	OutputFormat       string     `db:"output_format" json:"output_format"`
	ChunkStrategy      string     `db:"chunk_strategy" json:"chunk_strategy"`
	ChunkMaxLength     int        `db:"chunk_max_length" json:"chunk_max_length"`
	BreathingIntensity string     `db:"breathing_intensity" json:"breathing_intensity"`
	Status             string     `db:"status" json:"status"`
	TotalDurationSecs  *float64   `db:"total_duration_secs" json:"total_duration_secs,omitempty"`
	FolderID           *string    `db:"folder_id" json:"folder_id,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
	LastPlayedAt       *time.Time `db:"last_played_at" json:"last_played_at,omitempty"`
}

// Chunk is the unit of synthesis and playback navigation.
type Chunk struct {
	ID           string    `db:"id" json:"id"`
	EpisodeID    string    `db:"episode_id" json:"episode_id"`
	ChunkIndex   int       `db:"chunk_index" json:"chunk_index"`
	Text         string    `db:"text" json:"text"`
	Label        string    `db:"label" json:"label"`
	Status       string    `db:"status" json:"status"`
	DurationSecs *float64  `db:"duration_secs" json:"duration_secs,omitempty"`
	AudioPath    *string   `db:"audio_path" json:"audio_path,omitempty"`
	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// EpisodeStatusFromChunks recomputes an episode's status from its chunks'
// aggregate state. It returns the empty string only when there are no
// chunks; chunks that are all pending yield pending.
func EpisodeStatusFromChunks(chunks []Chunk) string {
	var pending, generating, ready, failed int
	for _, c := range chunks {
		switch c.Status {
		case StatusPending:
			pending++
		case StatusGenerating:
			generating++
		case StatusReady:
			ready++
		case StatusError:
			failed++
		}
	}
	switch {
	case len(chunks) == 0:
		return ""
	case ready == len(chunks):
		return StatusReady
	case pending == 0 && generating == 0 && failed > 0:
		return StatusError
	case generating > 0 || ready > 0 || failed > 0:
		return StatusGenerating
	default:
		return StatusPending
	}
}
