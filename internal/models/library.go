package models

import "time"

// Folder groups sources and episodes into a tree. ParentID forms a strict
// tree; reparenting that would introduce a cycle is rejected.
type Folder struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	ParentID  *string   `db:"parent_id" json:"parent_id,omitempty"`
	SortOrder int       `db:"sort_order" json:"sort_order"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Tag is a free-form label attached to sources and episodes.
type Tag struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// PlaybackState is the per-episode resume point.
type PlaybackState struct {
	EpisodeID         string    `db:"episode_id" json:"episode_id"`
	CurrentChunkIndex int       `db:"current_chunk_index" json:"current_chunk_index"`
	PositionSecs      float64   `db:"position_secs" json:"position_secs"`
	PercentListened   float64   `db:"percent_listened" json:"percent_listened"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Setting is one row of the process-wide preference table.
type Setting struct {
	Key   string `db:"key" json:"key"`
	Value string `db:"value" json:"value"`
}

// Well-known setting keys and their defaults.
var DefaultSettings = map[string]string{
	"default_voice":              "alba",
	"default_output_format":      "wav",
	"default_chunk_strategy":     StrategyParagraph,
	"default_chunk_max_length":   "2000",
	"default_breathing":          BreathingNormal,
	"auto_play_next":             "true",
	"clean_code_block_rule":      CodeBlockSkip,
	"clean_remove_non_text":      "false",
	"clean_handle_tables":        "true",
	"clean_speak_urls":           "true",
	"clean_expand_abbreviations": "true",
	"clean_preserve_parentheses": "true",
}

// UndoTicket records a destructive operation that can be reversed inside a
// bounded window. InversePayload is a serialized snapshot sufficient to
// restore the prior state; BackupAudioDir holds the displaced audio files.
type UndoTicket struct {
	ID             string    `db:"id" json:"id"`
	EpisodeID      string    `db:"episode_id" json:"episode_id"`
	OperationKind  string    `db:"operation_kind" json:"operation_kind"`
	InversePayload []byte    `db:"inverse_payload" json:"-"`
	BackupAudioDir *string   `db:"backup_audio_dir" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
}
