// Package inject implements the Injector interface.
// It splices the purchase call-to-action into a sanitized article fragment
// at positions derived only from the paragraph count, so the same fragment
// always gets the same layout.
package inject

import (
	"fmt"
	"html"
	"net/url"
	"strings"
)

const (
	// MidThreshold is the segment count above which a block goes mid-content.
	MidThreshold = 5
	// TailThreshold is the segment count above which a second block is
	// appended at the end as well.
	TailThreshold = 10
	// MidRatioPercent places the mid-content block 30% of the way through.
	MidRatioPercent = 30

	// BlockClass marks every injected block.
	BlockClass = "audit-cta"

	paragraphClose = "</p>"
)

// DefaultCheckoutURL is used when no checkout endpoint is configured.
const DefaultCheckoutURL = "https://checkout.auditpipe.example/buy"

// Options configures a CTAInjector.
type Options struct {
	CheckoutURL string
	Headline    string
	Blurb       string
	ButtonLabel string
}

// CTAInjector implements core.Injector.
type CTAInjector struct {
	checkoutURL string
	headline    string
	blurb       string
	buttonLabel string
}

// New creates a CTAInjector. Empty options fall back to defaults.
func New(opts Options) *CTAInjector {
	inj := &CTAInjector{
		checkoutURL: strings.TrimSpace(opts.CheckoutURL),
		headline:    opts.Headline,
		blurb:       opts.Blurb,
		buttonLabel: opts.ButtonLabel,
	}
	if inj.checkoutURL == "" {
		inj.checkoutURL = DefaultCheckoutURL
	}
	if inj.headline == "" {
		inj.headline = "Skip the Labyrinth: Get the Full Audit Report"
	}
	if inj.blurb == "" {
		inj.blurb = "Includes the fee breakdown, document checklist and step-by-step application SOP."
	}
	if inj.buttonLabel == "" {
		inj.buttonLabel = "Unlock Audit Report"
	}
	return inj
}

// PurchaseURL returns the checkout link for slug. The slug is not checked
// against the store; an unknown slug still yields a well-formed link.
func (c *CTAInjector) PurchaseURL(slug string) string {
	sep := "?"
	if strings.Contains(c.checkoutURL, "?") {
		sep = "&"
	}
	return c.checkoutURL + sep + "product_id=" + url.QueryEscape(slug)
}

// Block returns the call-to-action markup for slug.
func (c *CTAInjector) Block(slug string) string {
	return fmt.Sprintf(
		`<div class="%s"><h3>%s</h3><p>%s</p><a class="audit-cta-button" href="%s">%s</a></div>`,
		BlockClass,
		html.EscapeString(c.headline),
		html.EscapeString(c.blurb),
		html.EscapeString(c.PurchaseURL(slug)),
		html.EscapeString(c.buttonLabel),
	)
}

// Inject splices one or two blocks into fragment.
func (c *CTAInjector) Inject(fragment, slug string) string {
	segments := Segments(fragment)
	block := c.Block(slug)
	n := len(segments)

	if n <= MidThreshold {
		return strings.Join(segments, "") + block
	}

	at := MidOffset(n)
	var b strings.Builder
	b.Grow(len(fragment) + 2*len(block))
	for i, seg := range segments {
		if i == at {
			b.WriteString(block)
		}
		b.WriteString(seg)
	}
	if n > TailThreshold {
		b.WriteString(block)
	}
	return b.String()
}

// Segments splits fragment after each closing paragraph tag. A whitespace-only
// tail is dropped, so "<p>a</p>" is one segment and text with no paragraph
// tags is one segment too.
func Segments(fragment string) []string {
	parts := strings.SplitAfter(fragment, paragraphClose)
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// MidOffset is the index of the segment the mid-content block precedes.
func MidOffset(n int) int {
	return max(1, n*MidRatioPercent/100)
}

// Count returns the number of injected blocks in s.
func Count(s string) int {
	return strings.Count(s, `class="`+BlockClass+`"`)
}
