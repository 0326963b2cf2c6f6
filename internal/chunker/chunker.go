// Package chunker splits cleaned text into ordered, TTS-sized chunks and
// inserts breathing pauses. Identical inputs always yield identical chunk
// sequences; selective chunk regeneration depends on it.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"textcast/internal/errs"
	"textcast/internal/models"
)

// DefaultMaxChars bounds a chunk when the caller passes no limit.
const DefaultMaxChars = 2000

// Chunk is one planned unit of synthesis.
type Chunk struct {
	Index int
	Text  string
	Label string
}

var (
	paragraphSplit = regexp.MustCompile(`\n[ \t]*\n`)
	headingLine    = regexp.MustCompile(`(?m)^Section: (.+?)\.?\s*$`)
)

// Abbreviations whose trailing period does not end a sentence.
var sentenceAbbrevs = map[string]bool{
	"mr.": true, "mrs.": true, "ms.": true, "dr.": true, "st.": true,
	"vs.": true, "etc.": true, "e.g.": true, "i.e.": true, "no.": true,
	"al.": true, "fig.": true, "sec.": true, "vol.": true, "approx.": true,
	"pp.": true, "ch.": true,
}

// Plan splits text with the given strategy and applies the breathing pass.
// An empty or whitespace-only text yields EmptyContent.
func Plan(text, strategy string, maxChars int, breathing string) ([]Chunk, error) {
	chunks, err := Split(text, strategy, maxChars)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, errs.E(errs.KindEmptyContent, "text produced no chunks")
	}
	for i := range chunks {
		chunks[i].Text = AddBreathing(chunks[i].Text, breathing)
	}
	return chunks, nil
}

// Split applies one chunk strategy. The result may be empty; callers decide
// whether that is an error.
func Split(text, strategy string, maxChars int) ([]Chunk, error) {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var pieces []piece
	switch strategy {
	case models.StrategyParagraph:
		pieces = byParagraph(text, maxChars)
	case models.StrategySentence:
		pieces = bySentence(text, maxChars)
	case models.StrategyHeading:
		pieces = byHeading(text, maxChars)
	case models.StrategyMaxChars:
		pieces = byMaxChars(text, maxChars)
	default:
		return nil, errs.E(errs.KindInvalidState, "unknown chunk strategy %q", strategy)
	}

	var chunks []Chunk
	for _, p := range pieces {
		t := strings.TrimSpace(p.text)
		if t == "" {
			continue
		}
		label := p.label
		if label == "" {
			label = fmt.Sprintf("Part %d", len(chunks)+1)
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: t, Label: label})
	}
	return chunks, nil
}

type piece struct {
	text  string
	label string
}

// byParagraph emits one chunk per blank-line-separated paragraph. Oversize
// paragraphs subdivide on sentence boundaries, then hard-split on words.
func byParagraph(text string, maxChars int) []piece {
	var pieces []piece
	part := 0
	for _, para := range paragraphSplit.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= maxChars {
			part++
			pieces = append(pieces, piece{text: para, label: fmt.Sprintf("Part %d", part)})
			continue
		}
		for _, sub := range packSentences(para, maxChars) {
			part++
			label := fmt.Sprintf("Part %d", part)
			if sub.split {
				label += " (split)"
			}
			pieces = append(pieces, piece{text: sub.text, label: label})
		}
	}
	return pieces
}

// bySentence packs sentences greedily up to the limit.
func bySentence(text string, maxChars int) []piece {
	flat := strings.Join(strings.Fields(text), " ")
	var pieces []piece
	part := 0
	for _, sub := range packSentences(flat, maxChars) {
		part++
		label := fmt.Sprintf("Part %d", part)
		if sub.split {
			label += " (split)"
		}
		pieces = append(pieces, piece{text: sub.text, label: label})
	}
	return pieces
}

// byHeading partitions along the normalizer's Section lines, packing
// paragraphs greedily within each section. Sections keep their heading as
// the chunk label, numbered when a section spans multiple chunks.
func byHeading(text string, maxChars int) []piece {
	type section struct {
		label string
		body  string
	}

	locs := headingLine.FindAllStringSubmatchIndex(text, -1)
	var sections []section
	if len(locs) == 0 || locs[0][0] > 0 {
		end := len(text)
		if len(locs) > 0 {
			end = locs[0][0]
		}
		sections = append(sections, section{label: "", body: text[:end]})
	}
	for i, loc := range locs {
		label := text[loc[2]:loc[3]]
		bodyStart := loc[1]
		bodyEnd := len(text)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		sections = append(sections, section{label: label, body: text[bodyStart:bodyEnd]})
	}

	var pieces []piece
	for _, sec := range sections {
		body := strings.TrimSpace(sec.body)
		if body == "" {
			continue
		}
		packed := packParagraphs(body, maxChars)
		for i, sub := range packed {
			label := sec.label
			if label != "" && len(packed) > 1 {
				label = fmt.Sprintf("%s (%d)", sec.label, i+1)
			}
			pieces = append(pieces, piece{text: sub, label: label})
		}
	}
	return pieces
}

// byMaxChars ignores structure and packs words greedily.
func byMaxChars(text string, maxChars int) []piece {
	var pieces []piece
	for _, part := range hardSplit(strings.Join(strings.Fields(text), " "), maxChars) {
		pieces = append(pieces, piece{text: part})
	}
	return pieces
}

// packParagraphs merges consecutive paragraphs up to the limit, subdividing
// any single paragraph that alone exceeds it.
func packParagraphs(text string, maxChars int) []string {
	var out []string
	current := ""
	flush := func() {
		if strings.TrimSpace(current) != "" {
			out = append(out, current)
		}
		current = ""
	}

	for _, para := range paragraphSplit.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) > maxChars {
			flush()
			for _, sub := range packSentences(para, maxChars) {
				out = append(out, sub.text)
			}
			continue
		}
		switch {
		case current == "":
			current = para
		case len(current)+len(para)+2 > maxChars:
			flush()
			current = para
		default:
			current += "\n\n" + para
		}
	}
	flush()
	return out
}

type packed struct {
	text  string
	split bool
}

// packSentences packs sentences greedily up to the limit; a single sentence
// longer than the limit is hard-split on word boundaries, never truncated.
func packSentences(text string, maxChars int) []packed {
	var out []packed
	current := ""
	flush := func() {
		if strings.TrimSpace(current) != "" {
			out = append(out, packed{text: current})
		}
		current = ""
	}

	for _, sent := range Sentences(text) {
		if len(sent) > maxChars {
			flush()
			for _, sub := range hardSplit(sent, maxChars) {
				out = append(out, packed{text: sub, split: true})
			}
			continue
		}
		switch {
		case current == "":
			current = sent
		case len(current)+len(sent)+1 > maxChars:
			flush()
			current = sent
		default:
			current += " " + sent
		}
	}
	flush()
	return out
}

// hardSplit breaks text on word boundaries so every part fits the limit. A
// single word longer than the limit becomes its own oversized part.
func hardSplit(text string, maxChars int) []string {
	var out []string
	current := ""
	for _, word := range strings.Fields(text) {
		switch {
		case current == "":
			current = word
		case len(current)+len(word)+1 > maxChars:
			out = append(out, current)
			current = word
		default:
			current += " " + word
		}
	}
	if current != "" {
		out = append(out, current)
	}
	return out
}

// Sentences splits prose on sentence terminators, keeping abbreviations and
// decimal numbers intact.
func Sentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}

		// Decimal number: digit on both sides of the period.
		if r == '.' && i > 0 && i+1 < len(runes) &&
			unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
			continue
		}

		// Swallow a terminator run (e.g. "?!", "...").
		end := i
		for end+1 < len(runes) {
			n := runes[end+1]
			if n == '.' || n == '!' || n == '?' || n == '"' || n == '\'' || n == ')' {
				end++
				continue
			}
			break
		}

		// Sentence ends only before whitespace or at end of text.
		if end+1 < len(runes) && !unicode.IsSpace(runes[end+1]) {
			i = end
			continue
		}

		if r == '.' && isAbbreviation(runes, start, i) {
			i = end
			continue
		}

		sent := strings.TrimSpace(string(runes[start : end+1]))
		if sent != "" {
			out = append(out, sent)
		}
		i = end
		start = end + 1
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

// isAbbreviation checks whether the word ending at the period (inclusive) is
// a known abbreviation, so "Dr. Smith" stays one sentence.
func isAbbreviation(runes []rune, start, dot int) bool {
	w := dot
	for w > start && !unicode.IsSpace(runes[w-1]) {
		w--
	}
	word := strings.ToLower(string(runes[w : dot+1]))
	if sentenceAbbrevs[word] {
		return true
	}
	// Single-letter initials ("J. Smith") and dotted acronyms ("U.S.").
	trimmed := strings.TrimSuffix(word, ".")
	if len(trimmed) == 1 && trimmed != "i" {
		return true
	}
	return strings.Count(word, ".") > 1 && !strings.Contains(trimmed, " ")
}
