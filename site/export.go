package site

import (
	"errors"
	"fmt"

	"github.com/gaurav-prasanna/auditpipe/core"
	"github.com/gaurav-prasanna/auditpipe/core/normalize"
	"github.com/gaurav-prasanna/auditpipe/core/render"
)

// ErrNotPublished is returned when exporting a record without a body.
var ErrNotPublished = errors.New("article has not been published yet")

// ExportMeta describes article a for offline exports.
func (b *Builder) ExportMeta(a *core.Article) core.ExportMeta {
	return core.ExportMeta{
		Slug:      a.Slug,
		URL:       render.ArticleURL(b.opts.BaseURL, a.Slug),
		Title:     Title(a),
		Category:  a.Category,
		State:     a.DisplayState(),
		UpdatedAt: a.UpdatedAt().Date(),
	}
}

// ExportMarkdown returns the cleaned article body as Markdown, the input of
// every core.Exporter.
func (b *Builder) ExportMarkdown(a *core.Article) (string, error) {
	if !a.Published() {
		return "", fmt.Errorf("exporting %s: %w", a.Slug, ErrNotPublished)
	}
	body, err := b.ArticleBody(a)
	if err != nil {
		return "", err
	}
	md, err := normalize.HTMLToMarkdown(body)
	if err != nil {
		return "", fmt.Errorf("exporting %s: %w", a.Slug, err)
	}
	return md, nil
}
