// Package core defines the pipeline interfaces for AuditPipe.
// Each stage of the article pipeline is a clean, testable interface.
package core

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Article is one row of the content store. It is read-only: nothing in
// AuditPipe ever writes it back.
type Article struct {
	Slug         string          `json:"slug"`
	Keyword      string          `json:"keyword"`
	FinalArticle *string         `json:"final_article"`
	Category     string          `json:"category"`
	State        string          `json:"state"`
	LastMinedAt  Timestamp       `json:"last_mined_at"`
	CreatedAt    Timestamp       `json:"created_at"`
	PDFURL       string          `json:"pdf_url"`
	ContentJSON  json.RawMessage `json:"content_json"`
}

// Published reports whether the article body has been produced.
func (a *Article) Published() bool {
	return a.FinalArticle != nil
}

// UpdatedAt returns the most relevant timestamp for ordering and lastmod.
func (a *Article) UpdatedAt() Timestamp {
	if !a.LastMinedAt.IsZero() {
		return a.LastMinedAt
	}
	return a.CreatedAt
}

// DeliveryURL returns the location of the deliverable asset, if any.
// pdf_url wins over content_json.pdf_url_cloud.
func (a *Article) DeliveryURL() string {
	if u := strings.TrimSpace(a.PDFURL); u != "" {
		return u
	}
	if len(a.ContentJSON) == 0 {
		return ""
	}

	raw := a.ContentJSON
	// Some rows store content_json as a JSON-encoded string.
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}

	var content struct {
		PDFURLCloud string `json:"pdf_url_cloud"`
	}
	if err := json.Unmarshal(raw, &content); err != nil {
		return ""
	}
	return strings.TrimSpace(content.PDFURLCloud)
}

// AuditID returns the short catalog label for a slug: its first three
// characters, upper-cased.
func AuditID(slug string) string {
	r := []rune(slug)
	if len(r) > 3 {
		r = r[:3]
	}
	return strings.ToUpper(string(r))
}

// DisplayState returns the state tag for the article, inferring it from the
// keyword when the column is empty.
func (a *Article) DisplayState() string {
	if a.State != "" {
		return a.State
	}
	kw := strings.ToLower(a.Keyword)
	for _, name := range usStates {
		if strings.Contains(kw, strings.ToLower(name)) {
			return name
		}
	}
	return ""
}

// Longer names come first so "West Virginia" is not reported as "Virginia".
var usStates = []string{
	"District of Columbia", "North Carolina", "South Carolina", "Massachusetts",
	"New Hampshire", "North Dakota", "South Dakota", "Pennsylvania",
	"Rhode Island", "West Virginia", "Connecticut", "Mississippi",
	"New Jersey", "New Mexico", "California", "Washington", "Louisiana",
	"Minnesota", "Tennessee", "Wisconsin", "Oklahoma", "Kentucky",
	"Michigan", "Maryland", "Missouri", "Nebraska", "Virginia", "New York",
	"Colorado", "Delaware", "Illinois", "Arkansas", "Alabama", "Arizona",
	"Florida", "Georgia", "Indiana", "Montana", "Nevada", "Vermont",
	"Wyoming", "Alaska", "Hawaii", "Kansas", "Oregon", "Idaho", "Maine",
	"Texas", "Iowa", "Ohio", "Utah",
}

// timestampLayouts covers what PostgREST and SQLite hand back for
// timestamp and timestamptz columns.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Timestamp is a nullable store timestamp.
type Timestamp struct {
	time.Time
}

// ParseTimestamp parses a store timestamp. An empty string yields the zero value.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return Timestamp{Time: t.UTC()}, nil
		}
		lastErr = err
	}
	return Timestamp{}, lastErr
}

// LenientTimestamp parses s like ParseTimestamp but yields the zero value
// for anything it cannot read. One malformed row must not fail a listing.
func LenientTimestamp(s string) Timestamp {
	ts, err := ParseTimestamp(s)
	if err != nil {
		return Timestamp{}
	}
	return ts
}

// UnmarshalJSON accepts null, empty strings and the layouts above. Values
// that are not strings or match no layout decode as unset.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if string(data) == "null" || json.Unmarshal(data, &s) != nil {
		*t = Timestamp{}
		return nil
	}
	*t = LenientTimestamp(s)
	return nil
}

// MarshalJSON writes RFC 3339 or null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

// Date returns the YYYY-MM-DD form used by sitemaps, or "" when unset.
func (t Timestamp) Date() string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// Store reads articles from the content store.
type Store interface {
	// GetBySlug returns the article with the exact slug, or nil when absent.
	GetBySlug(ctx context.Context, slug string) (*Article, error)
	// ListPublished returns up to limit articles with a body, newest first.
	// An empty result is not an error.
	ListPublished(ctx context.Context, limit int) ([]Article, error)
}

// Normalizer converts a Markdown/HTML hybrid body into HTML.
type Normalizer interface {
	Normalize(src string) string
}

// Sanitizer strips document wrappers, legacy promotional blocks and unsafe
// markup from an HTML fragment.
type Sanitizer interface {
	Sanitize(fragment, title string) (string, error)
}

// Injector splices call-to-action blocks into a fragment.
type Injector interface {
	Inject(fragment, slug string) string
	PurchaseURL(slug string) string
}

// ExportMeta holds metadata for an exported article.
type ExportMeta struct {
	Slug      string `json:"slug"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Category  string `json:"category,omitempty"`
	State     string `json:"state,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"` // YYYY-MM-DD
}

// Section represents a heading-delimited section of content.
type Section struct {
	Heading string `json:"heading"`
	Level   int    `json:"level"`
	Text    string `json:"text"`
}

// Heading represents a single heading found in the content.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Link represents a hyperlink found in the content.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// ExportContent holds the text and structured content of an article.
type ExportContent struct {
	Text     string    `json:"text"`
	Markdown string    `json:"markdown"`
	Sections []Section `json:"sections"`
}

// ExportStructure holds structural metadata parsed from the content.
type ExportStructure struct {
	Headings []Heading `json:"headings"`
	Links    []Link    `json:"links"`
	Tables   int       `json:"tables"`
	Lists    int       `json:"lists"`
}

// ExportJSON is the complete JSON export for a single article.
type ExportJSON struct {
	Metadata  ExportMeta      `json:"metadata"`
	Content   ExportContent   `json:"content"`
	Structure ExportStructure `json:"structure"`
}

// Exporter converts Markdown (and metadata) into an offline artifact.
type Exporter interface {
	Render(markdown string, meta ExportMeta) ([]byte, error)
	// Extension returns the file extension for this exporter (e.g. ".md", ".pdf").
	Extension() string
}
