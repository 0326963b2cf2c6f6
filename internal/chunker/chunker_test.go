package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textcast/internal/errs"
	"textcast/internal/models"
)

func TestParagraphStrategySplitsOnBlankLines(t *testing.T) {
	chunks, err := Split("A.\n\nB.\n\nC.", models.StrategyParagraph, 100)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "A.", chunks[0].Text)
	assert.Equal(t, 1, chunks[1].Index)
	assert.Equal(t, "B.", chunks[1].Text)
	assert.Equal(t, 2, chunks[2].Index)
	assert.Equal(t, "C.", chunks[2].Text)
}

func TestParagraphStrategySubdividesOversizeParagraph(t *testing.T) {
	para := strings.Repeat("This is a sentence. ", 30) // ~600 chars, one paragraph
	chunks, err := Split(para, models.StrategyParagraph, 200)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 200)
	}
}

func TestSentenceStrategyHardSplitsLongSentence(t *testing.T) {
	// 600 chars of words with no terminators.
	input := strings.TrimSpace(strings.Repeat("lorem ipsum dolor sit amet ", 23))[:600]
	input = strings.TrimSpace(input)

	chunks, err := Split(input, models.StrategySentence, 200)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 3)

	var parts []string
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 200)
		assert.Contains(t, c.Label, "(split)")
		parts = append(parts, c.Text)
	}
	assert.Equal(t, input, strings.Join(parts, " "))
}

func TestSentenceStrategyPacksGreedily(t *testing.T) {
	chunks, err := Split("One. Two. Three. Four.", models.StrategySentence, 12)
	require.NoError(t, err)
	// "One. Two." fits in 12; "Three." and "Four." pack next.
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "One. Two.", chunks[0].Text)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 12)
	}
}

func TestHeadingStrategyUsesSectionLabels(t *testing.T) {
	text := "Section: Introduction.\n\nWelcome text here.\n\nSection: Usage.\n\nHow to use it."
	chunks, err := Split(text, models.StrategyHeading, 500)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Introduction", chunks[0].Label)
	assert.Equal(t, "Usage", chunks[1].Label)
	assert.Contains(t, chunks[0].Text, "Welcome text here.")
}

func TestHeadingStrategyKeepsPreamble(t *testing.T) {
	text := "Intro before any heading.\n\nSection: One.\n\nBody."
	chunks, err := Split(text, models.StrategyHeading, 500)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Text, "Intro before any heading.")
}

func TestMaxCharsStrategyPacksWords(t *testing.T) {
	chunks, err := Split("alpha beta gamma delta epsilon", models.StrategyMaxChars, 12)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 12)
	}
	assert.Equal(t, "alpha beta gamma delta epsilon",
		strings.Join(chunkTexts(chunks), " "))
}

func TestChunkIndexesAreDense(t *testing.T) {
	text := "One.\n\n\n\nTwo.\n\n   \n\nThree."
	chunks, err := Split(text, models.StrategyParagraph, 100)
	require.NoError(t, err)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestSplitDeterminism(t *testing.T) {
	text := "Section: Intro.\n\nDr. Smith wrote 3.14 things. Then more. And finally the end!\n\nSecond paragraph here."
	for _, strategy := range []string{
		models.StrategyParagraph, models.StrategySentence,
		models.StrategyHeading, models.StrategyMaxChars,
	} {
		a, err := Split(text, strategy, 60)
		require.NoError(t, err)
		b, err := Split(text, strategy, 60)
		require.NoError(t, err)
		assert.Equal(t, a, b, "strategy %s must be deterministic", strategy)
	}
}

func TestPlanEmptyContent(t *testing.T) {
	_, err := Plan("   \n\n  ", models.StrategyParagraph, 100, models.BreathingNone)
	require.Error(t, err)
	assert.Equal(t, errs.KindEmptyContent, errs.KindOf(err))
}

func TestPlanUnknownStrategy(t *testing.T) {
	_, err := Plan("hello", "zigzag", 100, models.BreathingNone)
	require.Error(t, err)
}

func TestPlanAppliesBreathing(t *testing.T) {
	text := "First sentence. Second sentence."
	none, err := Plan(text, models.StrategyParagraph, 100, models.BreathingNone)
	require.NoError(t, err)
	normal, err := Plan(text, models.StrategyParagraph, 100, models.BreathingNormal)
	require.NoError(t, err)

	assert.Equal(t, text, none[0].Text)
	assert.NotEqual(t, none[0].Text, normal[0].Text)
}

func TestSentencesRespectAbbreviationsAndDecimals(t *testing.T) {
	got := Sentences("Dr. Smith measured 3.14 units. Then he left. The U.S. team agreed.")
	require.Len(t, got, 3)
	assert.Equal(t, "Dr. Smith measured 3.14 units.", got[0])
	assert.Equal(t, "Then he left.", got[1])
}

func TestSentencesHandleTerminatorRuns(t *testing.T) {
	got := Sentences("Really?! Yes. Wait...")
	require.Len(t, got, 3)
	assert.Equal(t, "Really?!", got[0])
	assert.Equal(t, "Wait...", got[2])
}

func chunkTexts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
