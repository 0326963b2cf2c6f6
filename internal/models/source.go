package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Source types.
const (
	SourceTypeText = "text"
	SourceTypeFile = "file"
	SourceTypeURL  = "url"
	SourceTypeGit  = "git"
)

// Code block rules for cleaning.
const (
	CodeBlockSkip     = "skip"
	CodeBlockInline   = "inline"
	CodeBlockDescribe = "describe"
)

// CleaningOptions is the configuration snapshot a source was cleaned with.
// Cleaned text is a pure function of (raw text, cleaning options).
type CleaningOptions struct {
	CodeBlockRule       string `json:"code_block_rule"`
	RemoveNonText       bool   `json:"remove_non_text"`
	SpeakURLs           bool   `json:"speak_urls"`
	HandleTables        bool   `json:"handle_tables"`
	ExpandAbbreviations bool   `json:"expand_abbreviations"`
	PreserveParentheses bool   `json:"preserve_parentheses"`
}

// DefaultCleaningOptions mirrors the persisted settings defaults.
func DefaultCleaningOptions() CleaningOptions {
	return CleaningOptions{
		CodeBlockRule:       CodeBlockSkip,
		RemoveNonText:       false,
		SpeakURLs:           true,
		HandleTables:        true,
		ExpandAbbreviations: true,
		PreserveParentheses: true,
	}
}

// Value stores the options as a JSON column.
func (o CleaningOptions) Value() (driver.Value, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads the options back from a JSON column.
func (o *CleaningOptions) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*o = DefaultCleaningOptions()
		return nil
	case string:
		return json.Unmarshal([]byte(v), o)
	case []byte:
		return json.Unmarshal(v, o)
	default:
		return fmt.Errorf("cannot scan %T into CleaningOptions", src)
	}
}

// Source is an imported document before chunking.
type Source struct {
	ID               string          `db:"id" json:"id"`
	Title            string          `db:"title" json:"title"`
	SourceType       string          `db:"source_type" json:"source_type"`
	OriginalFilename *string         `db:"original_filename" json:"original_filename,omitempty"`
	OriginalURL      *string         `db:"original_url" json:"original_url,omitempty"`
	RawText          string          `db:"raw_text" json:"-"`
	CleanedText      string          `db:"cleaned_text" json:"-"`
	CleaningSettings CleaningOptions `db:"cleaning_settings" json:"cleaning_settings"`
	CoverArt         *string         `db:"cover_art" json:"cover_art,omitempty"`
	FolderID         *string         `db:"folder_id" json:"folder_id,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}
