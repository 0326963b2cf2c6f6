// Package normalize converts raw markdown, HTML or plain text into cleaned,
// speakable prose per a cleaning configuration. The output is deterministic:
// the same input and options always produce byte-identical text.
package normalize

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-shiori/go-readability"

	"textcast/internal/models"
)

// Normalizer holds the precompiled patterns for the cleaning pipeline.
// Construct once and share; it is safe for concurrent use.
type Normalizer struct {
	htmlTag        *regexp.Regexp
	htmlComment    *regexp.Regexp
	htmlScript     *regexp.Regexp
	htmlStyle      *regexp.Regexp
	htmlBlockBreak *regexp.Regexp
	htmlEntity     *regexp.Regexp
	htmlDetect     *regexp.Regexp

	mdImage     *regexp.Regexp
	mdBadge     *regexp.Regexp
	mdLink      *regexp.Regexp
	mdBold      *regexp.Regexp
	mdItalic    *regexp.Regexp
	mdUnder     *regexp.Regexp
	mdListItem  *regexp.Regexp
	mdOrdered   *regexp.Regexp
	mdRule      *regexp.Regexp
	mdInline    *regexp.Regexp
	bareURL     *regexp.Regexp
	parenAside  *regexp.Regexp
	nonText     *regexp.Regexp
	hardChars   *regexp.Regexp
	multiSpace  *regexp.Regexp
	multiBreak  *regexp.Regexp
	spacePunct  *regexp.Regexp
	tableRow    *regexp.Regexp
	tableRuler  *regexp.Regexp
	abbrevs     []abbreviation
	fallbackURL *url.URL
}

type abbreviation struct {
	pattern   *regexp.Regexp
	expansion string
}

// The fixed expansion dictionary. Each key matches only between word
// boundaries (see New), so no key fires inside a longer word. Matching is
// case-insensitive; the expansion copies the case of the first matched
// letter.
var abbreviationTable = []struct{ abbr, expansion string }{
	{"approx.", "approximately"},
	{"et al.", "and others"},
	{"dept.", "department"},
	{"blvd.", "boulevard"},
	{"e.g.", "for example"},
	{"i.e.", "that is"},
	{"etc.", "et cetera"},
	{"fig.", "figure"},
	{"sec.", "section"},
	{"vol.", "volume"},
	{"ave.", "avenue"},
	{"mrs.", "misses"},
	{"vs.", "versus"},
	{"drs.", "doctors"},
	{"no.", "number"},
	{"pp.", "pages"},
	{"ch.", "chapter"},
	{"mr.", "mister"},
	{"ms.", "miss"},
	{"dr.", "doctor"},
	{"st.", "saint"},
	{"rd.", "road"},
	{"k8s", "kubernetes"},
	{"i18n", "internationalization"},
	{"l10n", "localization"},
	{"a11y", "accessibility"},
	{"db", "database"},
	{"repo", "repository"},
	{"config", "configuration"},
}

// New builds a Normalizer with all patterns compiled.
func New() *Normalizer {
	n := &Normalizer{
		htmlTag:        regexp.MustCompile(`<[^>]+>`),
		htmlComment:    regexp.MustCompile(`(?s)<!--.*?-->`),
		htmlScript:     regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
		htmlStyle:      regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`),
		htmlBlockBreak: regexp.MustCompile(`(?i)<(?:br|hr|p|div|li|tr|td|th)[^>]*>`),
		htmlEntity:     regexp.MustCompile(`&#(\d+);`),
		htmlDetect:     regexp.MustCompile(`(?i)<\s*(?:!doctype|html|head|body|article|div|p|span|table|h[1-6])\b`),

		mdImage:    regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`),
		mdBadge:    regexp.MustCompile(`\[!\[[^\]]*\]\([^)]+\)\]\([^)]+\)`),
		mdLink:     regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`),
		mdBold:     regexp.MustCompile(`\*\*([^*]+)\*\*`),
		mdItalic:   regexp.MustCompile(`\*([^*]+)\*`),
		mdUnder:    regexp.MustCompile(`__([^_]+)__|\b_([^_]+)_\b`),
		mdListItem: regexp.MustCompile(`^[\-\*\+]\s+`),
		mdOrdered:  regexp.MustCompile(`^\d+\.\s+`),
		mdRule:     regexp.MustCompile(`^[\-\*_]{3,}\s*$`),
		mdInline:   regexp.MustCompile("`([^`]+)`"),
		bareURL:    regexp.MustCompile(`https?://[^\s\])}>]+`),
		parenAside: regexp.MustCompile(`\s*\([^()]*\)`),
		nonText:    regexp.MustCompile(`[\-—•*|#_~` + "`" + `\[\]{}()<>^&%$@=+']`),
		hardChars:  regexp.MustCompile(`[\^|]`),
		multiSpace: regexp.MustCompile(`[ \t]+`),
		multiBreak: regexp.MustCompile(`\n{3,}`),
		spacePunct: regexp.MustCompile(`[ \t]+([.,;:!?])`),
		tableRow:   regexp.MustCompile(`^\|.*\|$`),
		tableRuler: regexp.MustCompile(`^[\|\-\:\s]+$`),
	}

	for _, a := range abbreviationTable {
		// Escape the key and anchor it to word-ish boundaries so "st." does
		// not fire inside "first.".
		pat := regexp.MustCompile(`(?i)(^|[\s(])` + regexp.QuoteMeta(a.abbr) + `($|[\s),;:])`)
		n.abbrevs = append(n.abbrevs, abbreviation{pattern: pat, expansion: a.expansion})
	}

	n.fallbackURL, _ = url.Parse("http://localhost/")
	return n
}

// Normalize runs the full cleaning pipeline. It never fails; malformed input
// degrades to best-effort cleanup.
func (n *Normalizer) Normalize(raw string, opts models.CleaningOptions) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	text := raw
	if n.IsHTML(text) {
		title, body := n.ExtractArticle(text)
		if title != "" {
			text = title + "\n\n" + body
		} else {
			text = body
		}
	}

	if opts.RemoveNonText {
		text = n.htmlComment.ReplaceAllString(text, "")
	}

	if opts.HandleTables {
		text = n.speakTables(text)
	}

	text = n.processLines(text, opts)
	return n.finalClean(text)
}

// IsHTML reports whether the document reads as HTML rather than markdown or
// plain text. Tag presence dominates the heuristic.
func (n *Normalizer) IsHTML(raw string) bool {
	head := raw
	if len(head) > 4096 {
		head = head[:4096]
	}
	if strings.Contains(strings.ToLower(head), "<!doctype html") {
		return true
	}
	return len(n.htmlDetect.FindAllStringIndex(head, 4)) >= 3
}

// ExtractArticle runs readability extraction on an HTML document, returning
// the title and the article body as plain prose. The body falls back to tag
// stripping when extraction fails.
func (n *Normalizer) ExtractArticle(html string) (title, body string) {
	article, err := readability.FromReader(strings.NewReader(html), n.fallbackURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.Title), strings.TrimSpace(article.TextContent)
	}
	return "", strings.TrimSpace(n.stripTags(html))
}

func (n *Normalizer) stripTags(text string) string {
	text = n.htmlComment.ReplaceAllString(text, "")
	text = n.htmlScript.ReplaceAllString(text, "")
	text = n.htmlStyle.ReplaceAllString(text, "")
	text = n.htmlBlockBreak.ReplaceAllString(text, "\n")
	text = n.htmlTag.ReplaceAllString(text, "")
	return n.decodeEntities(text)
}

func (n *Normalizer) decodeEntities(text string) string {
	r := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
	text = r.Replace(text)
	return n.htmlEntity.ReplaceAllStringFunc(text, func(m string) string {
		digits := m[2 : len(m)-1]
		code, err := strconv.Atoi(digits)
		if err != nil || code < 0 || code > 0x10FFFF {
			return ""
		}
		return string(rune(code))
	})
}

// processLines walks the document line by line: code fences and indented
// blocks per the code rule, headings to Section anchors, markdown markers
// stripped, inline cleaning applied.
func (n *Normalizer) processLines(text string, opts models.CleaningOptions) string {
	lines := strings.Split(text, "\n")
	var out []string
	inFence := false
	var fenceBody []string

	flushFence := func() {
		switch opts.CodeBlockRule {
		case models.CodeBlockInline:
			body := strings.TrimSpace(strings.Join(fenceBody, "\n"))
			if body != "" {
				out = append(out, "Code: "+n.lightClean(body))
			}
		case models.CodeBlockDescribe:
			out = append(out, "(Code block omitted.)")
		}
		fenceBody = fenceBody[:0]
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		stripped := strings.TrimSpace(line)

		if strings.HasPrefix(stripped, "```") || strings.HasPrefix(stripped, "~~~") {
			if inFence {
				inFence = false
				flushFence()
			} else {
				inFence = true
			}
			continue
		}
		if inFence {
			fenceBody = append(fenceBody, line)
			continue
		}

		// Indented code: runs of lines indented by a tab or four spaces,
		// preceded by a blank line.
		if isIndentedCode(lines, i) {
			j := i
			for j < len(lines) && (strings.TrimSpace(lines[j]) == "" || indented(lines[j])) {
				if indented(lines[j]) {
					fenceBody = append(fenceBody, strings.TrimSpace(lines[j]))
				}
				j++
			}
			flushFence()
			i = j - 1
			continue
		}

		if stripped == "" {
			out = append(out, "")
			continue
		}
		if n.mdRule.MatchString(stripped) {
			continue
		}
		if n.tableRuler.MatchString(stripped) && strings.Contains(stripped, "|") {
			continue
		}
		if n.tableRow.MatchString(stripped) {
			if !opts.HandleTables {
				cells := splitTableRow(stripped)
				if len(cells) > 0 {
					out = append(out, strings.Join(cells, ". "))
				}
			} else {
				// Already converted by speakTables; anything left is a
				// malformed table fragment.
				out = append(out, n.cleanInline(strings.Trim(stripped, "| "), opts))
			}
			continue
		}

		if strings.HasPrefix(stripped, "#") {
			heading := strings.TrimSpace(strings.TrimLeft(stripped, "#"))
			heading = n.cleanInline(heading, opts)
			if heading != "" {
				out = append(out, "Section: "+strings.TrimRight(heading, ".")+".")
			}
			continue
		}

		stripped = n.mdListItem.ReplaceAllString(stripped, "")
		stripped = n.mdOrdered.ReplaceAllString(stripped, "")
		cleaned := n.cleanInline(stripped, opts)
		if cleaned != "" {
			out = append(out, cleaned)
		}
	}
	if inFence {
		flushFence()
	}

	return strings.Join(out, "\n")
}

func indented(line string) bool {
	return strings.HasPrefix(line, "\t") || strings.HasPrefix(line, "    ")
}

func isIndentedCode(lines []string, i int) bool {
	if !indented(lines[i]) || strings.TrimSpace(lines[i]) == "" {
		return false
	}
	return i == 0 || strings.TrimSpace(lines[i-1]) == ""
}

func splitTableRow(row string) []string {
	parts := strings.Split(strings.Trim(row, "|"), "|")
	var cells []string
	for _, p := range parts {
		if c := strings.TrimSpace(p); c != "" {
			cells = append(cells, c)
		}
	}
	return cells
}

// cleanInline applies the per-line transforms: badges, images, links, URLs,
// emphasis, inline code, parentheses, abbreviations, character cleanup.
func (n *Normalizer) cleanInline(line string, opts models.CleaningOptions) string {
	line = n.mdBadge.ReplaceAllString(line, "")
	if opts.RemoveNonText {
		line = n.mdImage.ReplaceAllString(line, "")
	} else {
		line = n.mdImage.ReplaceAllString(line, "(Image: $1)")
	}

	if opts.SpeakURLs {
		line = n.mdLink.ReplaceAllString(line, "$1, at $2,")
		line = n.bareURL.ReplaceAllStringFunc(line, speakableURL)
	} else {
		line = n.mdLink.ReplaceAllString(line, "$1")
		line = n.bareURL.ReplaceAllString(line, "")
	}

	line = n.mdBold.ReplaceAllString(line, "$1")
	line = n.mdItalic.ReplaceAllString(line, "$1")
	line = n.mdUnder.ReplaceAllString(line, "$1$2")

	switch opts.CodeBlockRule {
	case models.CodeBlockInline:
		line = n.mdInline.ReplaceAllString(line, "$1")
	case models.CodeBlockDescribe:
		line = n.mdInline.ReplaceAllString(line, "code")
	default:
		line = n.mdInline.ReplaceAllString(line, "$1")
	}

	if !opts.PreserveParentheses {
		line = n.parenAside.ReplaceAllString(line, "")
	}

	if opts.ExpandAbbreviations {
		line = n.expandAbbreviations(line)
	}

	if opts.RemoveNonText {
		line = n.nonText.ReplaceAllString(line, " ")
	} else {
		line = n.hardChars.ReplaceAllString(line, " ")
	}

	line = n.multiSpace.ReplaceAllString(line, " ")
	return strings.TrimSpace(line)
}

// speakableURL reduces a URL to the form a listener can follow: scheme and
// www dropped, trailing punctuation trimmed.
func speakableURL(raw string) string {
	s := strings.TrimPrefix(raw, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimRight(s, ".,;:!?")
}

func (n *Normalizer) expandAbbreviations(line string) string {
	for _, a := range n.abbrevs {
		line = a.pattern.ReplaceAllStringFunc(line, func(m string) string {
			sub := a.pattern.FindStringSubmatch(m)
			core := m[len(sub[1]) : len(m)-len(sub[2])]
			exp := a.expansion
			if core != "" && core[0] >= 'A' && core[0] <= 'Z' {
				exp = strings.ToUpper(exp[:1]) + exp[1:]
			}
			return sub[1] + exp + sub[2]
		})
	}
	return line
}

func (n *Normalizer) lightClean(text string) string {
	text = n.hardChars.ReplaceAllString(text, " ")
	text = n.multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func (n *Normalizer) finalClean(text string) string {
	text = n.multiBreak.ReplaceAllString(text, "\n\n")
	text = n.spacePunct.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

// speakTables converts markdown tables into row-by-row sentences: a summary,
// the column names, and "column: value" readings of the leading rows.
func (n *Normalizer) speakTables(text string) string {
	lines := strings.Split(text, "\n")
	var out []string

	for i := 0; i < len(lines); i++ {
		if !n.isTableHeader(lines, i) {
			out = append(out, lines[i])
			continue
		}

		headers := splitTableRow(strings.TrimSpace(lines[i]))
		j := i + 2
		var rows [][]string
		for j < len(lines) && n.tableRow.MatchString(strings.TrimSpace(lines[j])) {
			rows = append(rows, splitTableRow(strings.TrimSpace(lines[j])))
			j++
		}

		out = append(out, speakTable(headers, rows))
		i = j - 1
	}

	return strings.Join(out, "\n")
}

func (n *Normalizer) isTableHeader(lines []string, i int) bool {
	if i+1 >= len(lines) {
		return false
	}
	head := strings.TrimSpace(lines[i])
	ruler := strings.TrimSpace(lines[i+1])
	return strings.HasPrefix(head, "|") && strings.HasSuffix(head, "|") &&
		strings.HasPrefix(ruler, "|") && n.tableRuler.MatchString(ruler)
}

func speakTable(headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return fmt.Sprintf("Table with columns: %s.", strings.Join(headers, ", "))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Table with %d rows and %d columns. ", len(rows), len(headers))
	fmt.Fprintf(&b, "Columns are: %s. ", strings.Join(headers, ", "))

	const spokenRows = 3
	for i, row := range rows {
		if i >= spokenRows {
			break
		}
		var cells []string
		for k, cell := range row {
			if k < len(headers) {
				cells = append(cells, headers[k]+": "+cell)
			} else {
				cells = append(cells, cell)
			}
		}
		fmt.Fprintf(&b, "Row %d: %s. ", i+1, strings.Join(cells, ", "))
	}
	if len(rows) > spokenRows {
		fmt.Fprintf(&b, "And %d more rows. ", len(rows)-spokenRows)
	}
	return strings.TrimSpace(b.String())
}
