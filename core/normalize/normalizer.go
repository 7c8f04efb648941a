// Package normalize converts stored article bodies between Markdown and HTML.
//
// MarkdownToHTML is a deliberately small converter: an ordered list of text
// substitutions, each one an exported pure function so it can be tested on
// its own. It is not a CommonMark implementation. Stored bodies are a mix of
// Markdown and pre-rendered HTML, and the staged rewrite keeps both readable.
package normalize

import (
	"regexp"
	"strings"
)

// Stage is one substitution pass of the converter.
type Stage func(string) string

// Stages is the fixed order MarkdownToHTML applies. Bold must run before
// Italic, and Lists before Paragraphs.
var Stages = []Stage{
	NormalizeNewlines,
	Headings,
	Bold,
	Italic,
	Links,
	Lists,
	Paragraphs,
	Cleanup,
}

// MarkdownNormalizer implements core.Normalizer.
type MarkdownNormalizer struct{}

// New creates a MarkdownNormalizer.
func New() *MarkdownNormalizer {
	return &MarkdownNormalizer{}
}

// Normalize converts src to HTML. Input that already starts with a tag is
// normalized too; pre-rendered HTML passes through the stages mostly
// unchanged.
func (n *MarkdownNormalizer) Normalize(src string) string {
	return MarkdownToHTML(src)
}

// MarkdownToHTML runs every stage over src.
func MarkdownToHTML(src string) string {
	out := src
	for _, stage := range Stages {
		out = stage(out)
	}
	return out
}

var blankLineRe = regexp.MustCompile(`(?m)^[ \t]+$`)

// NormalizeNewlines converts CRLF and CR to LF and empties whitespace-only lines.
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return blankLineRe.ReplaceAllString(s, "")
}

var (
	h3Re = regexp.MustCompile(`(?m)^###[ \t]+(.+?)(?:[ \t]+#+)?[ \t]*$`)
	h2Re = regexp.MustCompile(`(?m)^##[ \t]+(.+?)(?:[ \t]+#+)?[ \t]*$`)
	h1Re = regexp.MustCompile(`(?m)^#[ \t]+(.+?)(?:[ \t]+#+)?[ \t]*$`)
)

// Headings rewrites ATX headings, deepest level first.
func Headings(s string) string {
	s = h3Re.ReplaceAllString(s, "<h3>$1</h3>")
	s = h2Re.ReplaceAllString(s, "<h2>$1</h2>")
	return h1Re.ReplaceAllString(s, "<h1>$1</h1>")
}

var (
	boldItalicRe = regexp.MustCompile(`\*\*\*([^*\n]+?)\*\*\*`)
	boldRe       = regexp.MustCompile(`\*\*([^\n]+?)\*\*`)
)

// Bold rewrites **text** to <strong>. ***text*** is rewritten first so the
// emphasis nests inside the strong tag.
func Bold(s string) string {
	s = boldItalicRe.ReplaceAllString(s, "<strong><em>$1</em></strong>")
	return boldRe.ReplaceAllString(s, "<strong>$1</strong>")
}

// The content must not start or end with whitespace, which keeps "2 * 3 * 4"
// and stray bullets untouched.
var italicRe = regexp.MustCompile(`\*([^*\s](?:[^*\n]*[^*\s])?)\*`)

// Italic rewrites *text* to <em>. It expects Bold to have consumed every
// ** pair already.
func Italic(s string) string {
	return italicRe.ReplaceAllString(s, "<em>$1</em>")
}

var linkRe = regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\s]+)\)`)

// Links rewrites [label](url) to an anchor opening in a new tab.
func Links(s string) string {
	return linkRe.ReplaceAllString(s, `<a href="$2" target="_blank" rel="noopener">$1</a>`)
}

// Lists rewrites "- item" lines to <li> and wraps each consecutive run in a
// single <ul>. Only items produced here are wrapped; existing <li> markup is
// left alone.
func Lists(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))

	var run []string
	flush := func() {
		if len(run) == 0 {
			return
		}
		out = append(out, "<ul>"+strings.Join(run, "\n")+"</ul>")
		run = nil
	}

	for _, line := range lines {
		if item, ok := strings.CutPrefix(line, "- "); ok && strings.TrimSpace(item) != "" {
			run = append(run, "<li>"+strings.TrimSpace(item)+"</li>")
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()

	return strings.Join(out, "\n")
}

var paragraphBreakRe = regexp.MustCompile(`\n{2,}`)

// Paragraphs wraps the text in one outer paragraph and turns blank-line runs
// into paragraph breaks.
func Paragraphs(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return "<p>" + paragraphBreakRe.ReplaceAllString(s, "</p>\n<p>") + "</p>"
}

var (
	// Block elements produced by Headings and Lists. Surrounding them with a
	// close/open pair is always balanced because Paragraphs wrapped every
	// block in <p>…</p>.
	blockRe       = regexp.MustCompile(`(?s)[ \t\n]*(<h[1-6]>.*?</h[1-6]>|<ul>.*?</ul>)[ \t\n]*`)
	doubleOpenRe  = regexp.MustCompile(`<p>\s*<p>`)
	doubleCloseRe = regexp.MustCompile(`</p>\s*</p>`)
	emptyParaRe   = regexp.MustCompile(`<p>\s*</p>\n?`)
)

// Cleanup lifts headings and lists out of the paragraphs they were wrapped
// in, collapses doubled paragraph tags from pre-rendered HTML, drops empty
// paragraphs and unescapes stray escaped quotes.
func Cleanup(s string) string {
	s = blockRe.ReplaceAllString(s, "</p>\n$1\n<p>")
	s = doubleOpenRe.ReplaceAllString(s, "<p>")
	s = doubleCloseRe.ReplaceAllString(s, "</p>")
	s = emptyParaRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\'`, `'`)
	return strings.TrimSpace(s)
}
