// Package sanitize implements the Sanitizer interface.
// It turns stored article HTML into a body fragment that is safe to embed:
//  1. Document wrappers (doctype, html, head, body, title, meta) are removed
//  2. Ghost template placeholders left by earlier generators are purged
//  3. Legacy promotional blocks are removed as whole DOM subtrees
//  4. An optional trailing "related links" section is cut off
//  5. Whatever remains passes through a UGC allow-list policy
package sanitize

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultLegacyClasses are class names used by earlier call-to-action and
// sponsored layouts. "audit-cta" is the current block; stripping it keeps
// re-rendered content from accumulating copies.
var DefaultLegacyClasses = []string{
	"monetization-box",
	"audit-cta",
	"sponsored",
	"cta-box",
	"buy-box",
}

// DefaultRelatedHeading is the heading text of the generated internal-links
// section.
const DefaultRelatedHeading = "Explore Related Pathways"

// Options configures an HTMLSanitizer.
type Options struct {
	LegacyClasses  []string
	RelatedHeading string
	StripRelated   bool
}

// HTMLSanitizer implements core.Sanitizer.
type HTMLSanitizer struct {
	legacySelector string
	relatedHeading string
	stripRelated   bool
	policy         *bluemonday.Policy
}

// New creates an HTMLSanitizer. Empty options fall back to the defaults.
func New(opts Options) *HTMLSanitizer {
	classes := opts.LegacyClasses
	if len(classes) == 0 {
		classes = DefaultLegacyClasses
	}
	heading := strings.TrimSpace(opts.RelatedHeading)
	if heading == "" {
		heading = DefaultRelatedHeading
	}

	return &HTMLSanitizer{
		legacySelector: legacySelector(classes),
		relatedHeading: heading,
		stripRelated:   opts.StripRelated,
		policy:         newPolicy(),
	}
}

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")
	return p
}

// legacySelector builds "div.a, section.a, div.b, …".
func legacySelector(classes []string) string {
	parts := make([]string, 0, len(classes)*2)
	for _, c := range classes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		parts = append(parts, "div."+c, "section."+c)
	}
	return strings.Join(parts, ", ")
}

// Sanitize runs every stage over fragment. title replaces {{TITLE}} ghosts.
func (s *HTMLSanitizer) Sanitize(fragment, title string) (string, error) {
	out := StripWrapper(fragment)
	out = PurgePlaceholders(out, title)

	out, err := s.stripBlocks(out)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(s.policy.Sanitize(out)), nil
}

var (
	doctypeRe   = regexp.MustCompile(`(?i)<!doctype[^>]*>`)
	headRe      = regexp.MustCompile(`(?is)<head\b[^>]*>.*?</head\s*>`)
	htmlTagRe   = regexp.MustCompile(`(?i)</?html\b[^>]*>`)
	bodyTagRe   = regexp.MustCompile(`(?i)</?body\b[^>]*>`)
	titleRe     = regexp.MustCompile(`(?is)<title\b[^>]*>.*?</title\s*>`)
	metaRe      = regexp.MustCompile(`(?i)<meta\b[^>]*>`)
	wrapperTags = []*regexp.Regexp{doctypeRe, headRe, htmlTagRe, bodyTagRe, titleRe, metaRe}
)

// StripWrapper removes full-document structure from a fragment, whatever
// the case or attributes of the tags.
func StripWrapper(s string) string {
	for _, re := range wrapperTags {
		s = re.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}

// PurgePlaceholders fills {{TITLE}} ghosts with title and drops any other
// template braces, so stored content can never smuggle a placeholder into
// the page layout.
func PurgePlaceholders(s, title string) string {
	s = strings.ReplaceAll(s, "{{TITLE}}", title)
	s = strings.ReplaceAll(s, "{{title}}", title)
	s = strings.ReplaceAll(s, "{{", "")
	return strings.ReplaceAll(s, "}}", "")
}

// stripBlocks removes legacy blocks and the related-links section. The
// fragment is parsed in a body context so nothing gets re-wrapped.
func (s *HTMLSanitizer) stripBlocks(fragment string) (string, error) {
	if strings.TrimSpace(fragment) == "" {
		return "", nil
	}

	container, err := parseFragment(fragment)
	if err != nil {
		return "", err
	}
	doc := goquery.NewDocumentFromNode(container)

	if s.legacySelector != "" {
		doc.Find(s.legacySelector).Remove()
	}

	if s.stripRelated {
		doc.Find("h2, h3, h4").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if strings.TrimSpace(sel.Text()) != s.relatedHeading {
				return true
			}
			cutFrom(sel.Get(0), container)
			return false
		})
	}

	var buf bytes.Buffer
	for c := container.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("serializing fragment: %w", err)
		}
	}
	return buf.String(), nil
}

func parseFragment(fragment string) (*html.Node, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML fragment: %w", err)
	}

	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		container.AppendChild(n)
	}
	return container, nil
}

// cutFrom deletes n and everything after it in document order, up to root.
func cutFrom(n, root *html.Node) {
	for cur := n; cur != nil && cur != root; cur = cur.Parent {
		for next := cur.NextSibling; next != nil; {
			following := next.NextSibling
			cur.Parent.RemoveChild(next)
			next = following
		}
	}
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}
