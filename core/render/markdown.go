// Package render composes pages and offline artifacts for AuditPipe.
// This file implements the Markdown exporter: the article Markdown with a
// YAML front matter block carrying the export metadata.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gaurav-prasanna/auditpipe/core"
)

// MarkdownExporter writes Markdown with front matter.
type MarkdownExporter struct{}

// NewMarkdownExporter creates a MarkdownExporter.
func NewMarkdownExporter() *MarkdownExporter {
	return &MarkdownExporter{}
}

type frontMatter struct {
	Title     string `yaml:"title"`
	Slug      string `yaml:"slug"`
	URL       string `yaml:"url"`
	Category  string `yaml:"category,omitempty"`
	State     string `yaml:"state,omitempty"`
	UpdatedAt string `yaml:"updated_at,omitempty"`
}

// Render prefixes markdown with a "---" delimited YAML header.
func (r *MarkdownExporter) Render(markdown string, meta core.ExportMeta) ([]byte, error) {
	header, err := yaml.Marshal(frontMatter{
		Title:     meta.Title,
		Slug:      meta.Slug,
		URL:       meta.URL,
		Category:  meta.Category,
		State:     meta.State,
		UpdatedAt: meta.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")
	buf.WriteString(strings.TrimSpace(markdown))
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// Extension returns the file extension for Markdown output.
func (r *MarkdownExporter) Extension() string {
	return ".md"
}
