package chunker

import (
	"regexp"
	"strings"

	"textcast/internal/models"
)

// The TTS engine has no pause markup, so breathing is pure punctuation:
// commas and ellipses inserted where a speaker would breathe. Levels follow
// the intensity ladder none < light < normal < heavy.

var breathingLevels = map[string]int{
	models.BreathingNone:   0,
	models.BreathingLight:  1,
	models.BreathingNormal: 2,
	models.BreathingHeavy:  3,
}

var (
	sentenceBoundary = regexp.MustCompile(`([.!?])(\s+)([A-Z])`)
	clauseConjunct   = regexp.MustCompile(`([^,.\s])\s+(and|but|or|so|yet|for|nor)\s+`)
	introAdverb      = regexp.MustCompile(`^(?i:(Well|So|Now|However|Therefore|Finally|First|Second|Then))[,.]?\s+`)
	parenthetical    = regexp.MustCompile(`\s*(\([^)]+\))`)
	emDashPause      = regexp.MustCompile(`—\s*`)
	colonPause       = regexp.MustCompile(`:\s*`)
	dramaticAdverb   = regexp.MustCompile(`(?i)\b(suddenly|finally|amazingly|unfortunately|fortunately|interestingly)\b\s+`)
)

// AddBreathing inserts pause punctuation into text at the given intensity.
// Unknown intensities fall back to normal. The transform is deterministic.
func AddBreathing(text, intensity string) string {
	level, ok := breathingLevels[intensity]
	if !ok {
		level = breathingLevels[models.BreathingNormal]
	}
	if level == 0 {
		return text
	}

	paragraphs := strings.Split(text, "\n\n")
	for i, p := range paragraphs {
		paragraphs[i] = breatheParagraph(p, level)
	}
	return strings.Join(paragraphs, "\n\n")
}

func breatheParagraph(text string, level int) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	pause := ","
	if level >= 3 {
		pause = "..."
	}
	text = sentenceBoundary.ReplaceAllString(text, "${1}"+pause+"${2}${3}")

	if level >= 2 {
		text = clauseConjunct.ReplaceAllString(text, "${1}, ${2} ")
		text = introAdverb.ReplaceAllStringFunc(text, func(m string) string {
			return strings.TrimRight(strings.TrimSpace(m), ".,") + "... "
		})
	}

	if level >= 3 {
		text = parenthetical.ReplaceAllString(text, "... ${1}")
		text = emDashPause.ReplaceAllString(text, "—... ")
		text = colonPause.ReplaceAllString(text, ":... ")
		text = dramaticAdverb.ReplaceAllString(text, "${1}... ")
	}

	return text
}
