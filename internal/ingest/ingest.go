// Package ingest turns the four input variants (raw text, uploaded file,
// URL, git repository) into raw text plus a title and source metadata.
package ingest

import (
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"textcast/internal/errs"
	"textcast/internal/models"
	"textcast/internal/normalize"
)

// MaxContentBytes caps every ingested document. Oversize input fails with
// TooLarge rather than being truncated.
const MaxContentBytes = 512 * 1024

var allowedExtensions = map[string]bool{
	".md":       true,
	".txt":      true,
	".markdown": true,
	".mdx":      true,
}

// Result is the outcome of a successful ingestion, ready to become a Source.
type Result struct {
	Title            string
	RawText          string
	SourceType       string
	OriginalFilename *string
	OriginalURL      *string
}

// Ingestor dispatches on the input variant. Construct with New.
type Ingestor struct {
	norm *normalize.Normalizer
	log  *zap.Logger
}

// New builds an Ingestor sharing the process normalizer.
func New(norm *normalize.Normalizer, log *zap.Logger) *Ingestor {
	return &Ingestor{norm: norm, log: log}
}

// Text ingests pasted text with an optional caller-supplied title.
func (ig *Ingestor) Text(title, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, errs.E(errs.KindEmptyContent, "empty text provided")
	}
	if len(text) > MaxContentBytes {
		return Result{}, errs.E(errs.KindTooLarge, "text too large (%d bytes, maximum %d)", len(text), MaxContentBytes)
	}

	if title == "" {
		title = DeriveTitle(text, "Pasted Text")
	}
	return Result{Title: title, RawText: text, SourceType: models.SourceTypeText}, nil
}

// File ingests an uploaded blob, recording the original filename.
func (ig *Ingestor) File(filename string, data []byte) (Result, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return Result{}, errs.E(errs.KindUnsupportedType, "unsupported file type %q", ext)
	}
	if len(data) > MaxContentBytes {
		return Result{}, errs.E(errs.KindTooLarge, "file too large (%d bytes, maximum %d)", len(data), MaxContentBytes)
	}

	raw := strings.ToValidUTF8(string(data), "�")
	if strings.TrimSpace(raw) == "" {
		return Result{}, errs.E(errs.KindEmptyContent, "file %q contains no text", filename)
	}

	name := filepath.Base(filename)
	return Result{
		Title:            DeriveTitle(raw, strings.TrimSuffix(name, ext)),
		RawText:          raw,
		SourceType:       models.SourceTypeFile,
		OriginalFilename: &name,
	}, nil
}

var (
	titleJunk = regexp.MustCompile(`[^\w\s\-.,!?'"]+`)
	titleRule = regexp.MustCompile(`^[\-\*_]{3,}$`)
)

// DeriveTitle picks the first heading or non-empty line, cleaned and
// truncated for display.
func DeriveTitle(text, fallback string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if t := cleanTitle(truncate(strings.TrimLeft(line, "# "), 80)); t != "" {
				return t
			}
			continue
		}
		if t := cleanTitle(truncate(line, 80)); t != "" {
			return t
		}
	}
	if fallback != "" {
		return fallback
	}
	return "Untitled"
}

func cleanTitle(title string) string {
	if titleRule.MatchString(strings.TrimSpace(title)) {
		return ""
	}
	title = titleJunk.ReplaceAllString(title, " ")
	title = strings.Join(strings.Fields(title), " ")
	return strings.Trim(title, "-. ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
