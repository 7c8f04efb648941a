package render

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
)

// Layout placeholders.
const (
	KeyTitle       = "TITLE"
	KeyContent     = "CONTENT"
	KeyMetadata    = "METADATA"
	KeyDescription = "DESCRIPTION"
	KeyPDFLink     = "PDF_LINK"
	KeyAdsDisplay  = "ADS_DISPLAY"
	KeyPageCSS     = "PAGE_CSS"
	KeyScripts     = "SCRIPTS"
	KeyNavLink     = "NAV_LINK"
	KeyCanonical   = "CANONICAL"
	KeySiteName    = "SITE_NAME"
	KeyYearLabel   = "YEAR_LABEL"

	// KeyReportDisplay toggles the purchase bar independently of ads.
	KeyReportDisplay = "REPORT_DISPLAY"
)

// defaults for placeholders with a safe non-empty fallback.
var defaults = map[string]string{
	KeyAdsDisplay:    "none",
	KeyReportDisplay: "none",
}

//go:embed templates/layout.html
var embeddedLayout string

var placeholderRe = regexp.MustCompile(`\{\{([A-Z_]+)\}\}`)

// Fill replaces every {{NAME}} token in tmpl in a single pass. Missing values
// become "" (or the placeholder's default). Substituted values are not
// scanned again, so content cannot expand into further tokens.
func Fill(tmpl string, values map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(token string) string {
		name := token[2 : len(token)-2]
		if v, ok := values[name]; ok {
			return v
		}
		return defaults[name]
	})
}

// Placeholders lists the distinct tokens in tmpl in order of appearance.
func Placeholders(tmpl string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Layout is the page template. It is read once and never modified.
type Layout struct {
	tmpl string
}

// NewLayout wraps a template string.
func NewLayout(tmpl string) *Layout {
	return &Layout{tmpl: tmpl}
}

// DefaultLayout returns the built-in page template.
func DefaultLayout() *Layout {
	return NewLayout(embeddedLayout)
}

// LoadLayout reads a template file, or returns the built-in one when path
// is empty.
func LoadLayout(path string) (*Layout, error) {
	if path == "" {
		return DefaultLayout(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layout %s: %w", path, err)
	}
	return NewLayout(string(data)), nil
}

// Render fills the layout with values.
func (l *Layout) Render(values map[string]string) string {
	return Fill(l.tmpl, values)
}

// Template returns the raw template text.
func (l *Layout) Template() string {
	return l.tmpl
}
