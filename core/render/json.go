// JSON exporter: builds the structured export from Markdown and metadata.
// Structure (headings, links, tables, lists) is read off the Markdown itself.
package render

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/gaurav-prasanna/auditpipe/core"
)

// JSONExporter produces the structured JSON export.
type JSONExporter struct{}

// NewJSONExporter creates a JSONExporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// Render converts Markdown and metadata into core.ExportJSON.
func (r *JSONExporter) Render(markdown string, meta core.ExportMeta) ([]byte, error) {
	headings := extractHeadings(markdown)

	doc := core.ExportJSON{
		Metadata: meta,
		Content: core.ExportContent{
			Text:     plainText(markdown),
			Markdown: markdown,
			Sections: buildSections(markdown),
		},
		Structure: core.ExportStructure{
			Headings: headings,
			Links:    extractLinks(markdown),
			Tables:   len(tableSepRe.FindAllString(markdown, -1)),
			Lists:    len(listItemRe.FindAllString(markdown, -1)),
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling JSON: %w", err)
	}
	return data, nil
}

// Extension returns the file extension for JSON output.
func (r *JSONExporter) Extension() string {
	return ".json"
}

var (
	mdHeadingRe = regexp.MustCompile(`^(#{1,6})[ \t]+(.+?)(?:[ \t]+#+)?[ \t]*$`)
	mdLinkRe    = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)
	mdEmphRe    = regexp.MustCompile(`\*{1,3}([^*\n]+)\*{1,3}`)
	tableSepRe  = regexp.MustCompile(`(?m)^\|[-:| ]+\|$`)
	listItemRe  = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+]|\d+\.)[ \t]`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
)

func parseHeading(line string) (core.Heading, bool) {
	m := mdHeadingRe.FindStringSubmatch(line)
	if m == nil {
		return core.Heading{}, false
	}
	return core.Heading{Level: len(m[1]), Text: m[2]}, true
}

func extractHeadings(md string) []core.Heading {
	headings := []core.Heading{}
	for _, line := range strings.Split(md, "\n") {
		if h, ok := parseHeading(line); ok {
			headings = append(headings, h)
		}
	}
	return headings
}

func extractLinks(md string) []core.Link {
	matches := mdLinkRe.FindAllStringSubmatch(md, -1)
	links := make([]core.Link, 0, len(matches))
	for _, m := range matches {
		links = append(links, core.Link{Text: m[1], Href: m[2]})
	}
	return links
}

// buildSections groups the lines under each heading. Text before the first
// heading belongs to no section.
func buildSections(md string) []core.Section {
	var (
		sections []core.Section
		current  *core.Section
		body     []string
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Text = plainText(strings.Join(body, "\n"))
		sections = append(sections, *current)
	}

	for _, line := range strings.Split(md, "\n") {
		if h, ok := parseHeading(line); ok {
			flush()
			current = &core.Section{Heading: h.Text, Level: h.Level}
			body = nil
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()

	return sections
}

// plainText drops Markdown syntax and keeps the words.
func plainText(md string) string {
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		if h, ok := parseHeading(line); ok {
			lines[i] = h.Text
		}
	}
	text := strings.Join(lines, "\n")
	text = mdLinkRe.ReplaceAllString(text, "$1")
	text = mdEmphRe.ReplaceAllString(text, "$1")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
