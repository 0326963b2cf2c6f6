package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"textcast/internal/models"
)

func defaults() models.CleaningOptions {
	return models.DefaultCleaningOptions()
}

func TestNormalizeDeterminism(t *testing.T) {
	n := New()
	input := "# Title\n\nSome *text* with [a link](https://example.com/page) and `code`.\n\n```go\nfmt.Println()\n```\n\n| A | B |\n|---|---|\n| 1 | 2 |\n"
	opts := defaults()

	first := n.Normalize(input, opts)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, n.Normalize(input, opts))
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	n := New()
	assert.Equal(t, "", n.Normalize("", defaults()))
	assert.Equal(t, "", n.Normalize("  \n\t ", defaults()))
}

func TestHeadingsBecomeSectionAnchors(t *testing.T) {
	n := New()
	got := n.Normalize("# Getting Started\n\nRead this first.", defaults())
	assert.Contains(t, got, "Section: Getting Started.")
	assert.Contains(t, got, "Read this first.")
}

func TestCodeBlockRules(t *testing.T) {
	n := New()
	input := "Before.\n\n```python\nprint('hi')\n```\n\nAfter."

	opts := defaults()
	opts.CodeBlockRule = models.CodeBlockSkip
	skip := n.Normalize(input, opts)
	assert.NotContains(t, skip, "print")

	opts.CodeBlockRule = models.CodeBlockInline
	inline := n.Normalize(input, opts)
	assert.Contains(t, inline, "print('hi')")

	opts.CodeBlockRule = models.CodeBlockDescribe
	describe := n.Normalize(input, opts)
	assert.Contains(t, describe, "(Code block omitted.)")
	assert.NotContains(t, describe, "print")
}

func TestIndentedCodeIsTreatedAsCode(t *testing.T) {
	n := New()
	input := "Paragraph.\n\n    indented code line\n    second line\n\nAfter."
	opts := defaults()
	opts.CodeBlockRule = models.CodeBlockSkip
	got := n.Normalize(input, opts)
	assert.NotContains(t, got, "indented code line")
	assert.Contains(t, got, "After.")
}

func TestLinksCollapseToAnchorText(t *testing.T) {
	n := New()
	opts := defaults()
	opts.SpeakURLs = false
	got := n.Normalize("See [the docs](https://docs.example.com/guide) for more.", opts)
	assert.Contains(t, got, "the docs")
	assert.NotContains(t, got, "docs.example.com")
}

func TestSpeakURLsKeepsSpeakableForm(t *testing.T) {
	n := New()
	opts := defaults()
	opts.SpeakURLs = true
	got := n.Normalize("Visit https://www.example.com/page. now", opts)
	assert.Contains(t, got, "example.com/page")
	assert.NotContains(t, got, "https://")
	assert.NotContains(t, got, "www.")
}

func TestTablesBecomeRowSentences(t *testing.T) {
	n := New()
	input := "| Name | Role |\n|------|------|\n| Ada | Engineer |\n| Grace | Admiral |"
	got := n.Normalize(input, defaults())
	assert.Contains(t, got, "Table with 2 rows and 2 columns.")
	assert.Contains(t, got, "Columns are: Name, Role.")
	assert.Contains(t, got, "Row 1: Name: Ada, Role: Engineer.")
}

func TestAbbreviationExpansion(t *testing.T) {
	n := New()
	opts := defaults()
	got := n.Normalize("Dr. Smith uses k8s daily, e.g. for batch jobs.", opts)
	assert.Contains(t, got, "Doctor Smith")
	assert.Contains(t, got, "kubernetes")
	assert.Contains(t, got, "for example")

	opts.ExpandAbbreviations = false
	raw := n.Normalize("Dr. Smith uses k8s daily.", opts)
	assert.Contains(t, raw, "Dr. Smith")
	assert.Contains(t, raw, "k8s")
}

func TestAbbreviationDoesNotFireInsideWords(t *testing.T) {
	n := New()
	got := n.Normalize("He finished first. Then he left.", defaults())
	assert.Contains(t, got, "first.")
	assert.NotContains(t, got, "firsaint")
}

func TestParenthesesRemoval(t *testing.T) {
	n := New()
	opts := defaults()
	opts.PreserveParentheses = false
	got := n.Normalize("The result (surprisingly) held.", opts)
	assert.NotContains(t, got, "surprisingly")

	opts.PreserveParentheses = true
	kept := n.Normalize("The result (surprisingly) held.", opts)
	assert.Contains(t, kept, "(surprisingly)")
}

func TestRemoveNonTextStripsImages(t *testing.T) {
	n := New()
	opts := defaults()
	opts.RemoveNonText = true
	got := n.Normalize("Look: ![badge](https://img.shields.io/x.svg) done.", opts)
	assert.NotContains(t, got, "badge")
	assert.NotContains(t, got, "shields.io")
}

func TestHTMLDetectionAndExtraction(t *testing.T) {
	n := New()
	html := `<!DOCTYPE html><html><head><title>My Article</title></head><body>
		<article><h1>My Article</h1><p>First paragraph of the body text, long enough to matter.</p>
		<p>Second paragraph with more content for the extractor to keep.</p></article>
		</body></html>`

	assert.True(t, n.IsHTML(html))
	assert.False(t, n.IsHTML("# Just markdown\n\nWith text."))

	got := n.Normalize(html, defaults())
	assert.Contains(t, got, "First paragraph of the body text")
	assert.NotContains(t, got, "<p>")
}

func TestMalformedInputDegradesGracefully(t *testing.T) {
	n := New()
	// Unclosed fence, stray tags, broken table: never panics, never errors.
	input := "```go\nunclosed fence\n\n<div>stray</div>\n\n| broken |\n"
	got := n.Normalize(input, defaults())
	assert.NotNil(t, got)
}

func TestWhitespaceNormalization(t *testing.T) {
	n := New()
	got := n.Normalize("Spaced   out    text .\n\n\n\n\nNext.", defaults())
	assert.NotContains(t, got, "  ")
	assert.NotContains(t, got, " .")
	assert.False(t, strings.Contains(got, "\n\n\n"))
}
