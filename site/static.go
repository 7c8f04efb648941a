package site

import (
	"html"
	"strings"

	"github.com/gaurav-prasanna/auditpipe/core/render"
)

// staticPage is one fixed legal or informational page.
type staticPage struct {
	title string
	body  string
}

// staticPages is keyed by request path. Bodies may use {site}, {email} and
// {year}, which are filled in when rendering.
var staticPages = map[string]staticPage{
	"/about": {
		title: "About Us",
		body: `<h1>About {site}</h1>
<p>{site} publishes independent audits of professional licensing and compliance procedures across the United States. Each audit summarizes official fees, timelines, document requirements and application steps collected from issuing boards.</p>
<p>Audits are research summaries, not legal advice. Always confirm requirements with the issuing authority before applying.</p>`,
	},
	"/contact": {
		title: "Contact",
		body: `<h1>Contact</h1>
<p>For report delivery issues, corrections or partnership requests, email <a href="mailto:{email}">{email}</a>.</p>
<p>Please include the audit ID (for example #AUD-TX-) or the page address in your message.</p>`,
	},
	"/privacy": {
		title: "Privacy Policy",
		body: `<h1>Privacy Policy</h1>
<p>{site} does not require an account and does not store personal data on this site. Purchases are handled by our payment provider, which processes your payment details under its own privacy policy.</p>
<p>Advertising partners may use cookies to serve ads based on prior visits. You can opt out of personalized advertising in your browser or ad settings.</p>
<p>Last updated: {year}.</p>`,
	},
	"/terms": {
		title: "Terms of Service",
		body: `<h1>Terms of Service</h1>
<p>Content on {site} is provided for general information only. Fees, timelines and requirements change, and {site} makes no warranty that any audit is complete or current.</p>
<p>Audit reports are digital goods delivered after purchase. Report contents may not be redistributed.</p>
<p>Last updated: {year}.</p>`,
	},
}

// StaticPaths lists the paths served by Static.
func StaticPaths() []string {
	return []string{"/about", "/contact", "/privacy", "/terms"}
}

// Static renders the static page for path. ok is false for unknown paths.
func (b *Builder) Static(path string) (page string, ok bool) {
	p, ok := staticPages[path]
	if !ok {
		return "", false
	}

	body := strings.NewReplacer(
		"{site}", html.EscapeString(b.opts.Name),
		"{email}", html.EscapeString(b.opts.ContactEmail),
		"{year}", html.EscapeString(b.opts.YearLabel),
	).Replace(p.body)

	values := b.baseValues(p.title, b.opts.BaseURL+path)
	values[render.KeyMetadata] = metaDescription(p.title + " | " + b.opts.Name)
	values[render.KeyContent] = body
	return b.layout.Render(values), true
}
