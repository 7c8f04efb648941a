// Package site assembles AuditPipe pages from store records.
//
// A Builder owns the article pipeline (normalize, sanitize, inject) and the
// page layout. It holds no per-request state and is safe for concurrent use.
package site

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/gaurav-prasanna/auditpipe/config"
	"github.com/gaurav-prasanna/auditpipe/core"
	"github.com/gaurav-prasanna/auditpipe/core/inject"
	"github.com/gaurav-prasanna/auditpipe/core/normalize"
	"github.com/gaurav-prasanna/auditpipe/core/render"
	"github.com/gaurav-prasanna/auditpipe/core/sanitize"
)

const (
	// DescriptionWidth bounds the meta description in display columns.
	DescriptionWidth = 160
	// CardTitleWidth bounds keyword titles on home cards.
	CardTitleWidth = 64

	fallbackTitle = "Compliance Audit"
	emptyHomeText = "No audits have been published yet."
)

// PendingBody is shown for records whose article has not been produced yet.
const PendingBody = "<h1>Audit Under Construction...</h1>" +
	"<p>Our auditors are currently processing this request. Estimate: 5 minutes.</p>"

// Options holds presentation settings.
type Options struct {
	Name         string
	BaseURL      string
	YearLabel    string
	AdsClientID  string
	ContactEmail string
}

// Builder renders pages.
type Builder struct {
	opts       Options
	layout     *render.Layout
	normalizer core.Normalizer
	sanitizer  core.Sanitizer
	injector   core.Injector
}

// NewBuilder wires the pipeline stages and the layout together.
func NewBuilder(opts Options, layout *render.Layout, n core.Normalizer, s core.Sanitizer, i core.Injector) *Builder {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Builder{opts: opts, layout: layout, normalizer: n, sanitizer: s, injector: i}
}

var slugRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._~-]*$`)

// ValidSlug reports whether slug may be looked up. Anything else is treated
// as not found without a store call.
func ValidSlug(slug string) bool {
	return len(slug) <= 200 && slugRe.MatchString(slug)
}

// Title turns a record keyword into a display title.
func Title(a *core.Article) string {
	kw := strings.Join(strings.Fields(a.Keyword), " ")
	if kw == "" {
		return fallbackTitle
	}
	return cases.Title(language.English).String(kw)
}

// Description is the meta description for an article title.
func (b *Builder) Description(title string) string {
	d := fmt.Sprintf("Download the %s Official %s Audit Report. Complete fee breakdown and application SOP.",
		b.opts.YearLabel, title)
	return runewidth.Truncate(d, DescriptionWidth, "…")
}

// ArticleBody runs the stored body through normalize and sanitize. The
// result carries no call-to-action.
func (b *Builder) ArticleBody(a *core.Article) (string, error) {
	if !a.Published() {
		return PendingBody, nil
	}
	normalized := b.normalizer.Normalize(*a.FinalArticle)
	body, err := b.sanitizer.Sanitize(normalized, Title(a))
	if err != nil {
		return "", fmt.Errorf("sanitizing %s: %w", a.Slug, err)
	}
	return body, nil
}

// Article renders the detail page. Pending records get the placeholder body
// and no call-to-action.
func (b *Builder) Article(a *core.Article) (string, error) {
	title := Title(a)
	body, err := b.ArticleBody(a)
	if err != nil {
		return "", err
	}

	values := b.baseValues(title, render.ArticleURL(b.opts.BaseURL, a.Slug))
	values[render.KeyPDFLink] = html.EscapeString(b.injector.PurchaseURL(a.Slug))

	if a.Published() {
		body = b.injector.Inject(body, a.Slug)
		values[render.KeyReportDisplay] = "flex"
		if b.opts.AdsClientID != "" {
			values[render.KeyAdsDisplay] = "block"
			values[render.KeyScripts] = b.adsScript()
		}
	}
	values[render.KeyContent] = body
	return b.layout.Render(values), nil
}

// Home renders the grid of recent audits, or the empty state.
func (b *Builder) Home(articles []core.Article) string {
	var sb strings.Builder
	sb.WriteString("<h1>Recently Sealed Audits</h1>\n")

	if len(articles) == 0 {
		sb.WriteString(`<p class="audit-empty">` + emptyHomeText + "</p>")
	} else {
		sb.WriteString(`<div class="audit-grid">`)
		for i := range articles {
			sb.WriteString(card(&articles[i]))
		}
		sb.WriteString("\n</div>")
	}

	values := b.baseValues(b.opts.Name+" Compliance Audits", b.opts.BaseURL+"/")
	values[render.KeyNavLink] = `<a href="/sitemap.xml">Index</a>`
	values[render.KeyContent] = sb.String()
	values[render.KeyMetadata] = metaDescription(fmt.Sprintf(
		"Independent %s licensing and compliance audits: fees, timelines and application steps.", b.opts.YearLabel))
	return b.layout.Render(values)
}

func card(a *core.Article) string {
	title := runewidth.Truncate(Title(a), CardTitleWidth, "…")
	var state string
	if s := a.DisplayState(); s != "" {
		state = `<div class="audit-status">` + html.EscapeString(s) + "</div>"
	}
	return fmt.Sprintf("\n"+`<a href="/p/%s" class="audit-card"><div class="audit-id">#AUD-%s</div><div class="audit-keyword">%s</div>%s<div class="audit-status">Status: Sealed &amp; Audit Ready</div></a>`,
		html.EscapeString(a.Slug),
		html.EscapeString(core.AuditID(a.Slug)),
		html.EscapeString(title),
		state,
	)
}

// Processing renders the page shown after checkout when the report file is
// not available yet.
func (b *Builder) Processing(a *core.Article) string {
	title := Title(a)
	content := fmt.Sprintf(`<h1>Your Report Is Being Prepared</h1>
<p>Thank you. Payment for the <strong>%s</strong> audit report was received.</p>
<p>Our auditors are finalizing the document. Refresh this page in a few minutes to download it, or contact <a href="mailto:%s">%s</a> with your receipt.</p>`,
		html.EscapeString(title), html.EscapeString(b.opts.ContactEmail), html.EscapeString(b.opts.ContactEmail))

	values := b.baseValues(title+" Report", render.ArticleURL(b.opts.BaseURL, a.Slug))
	values[render.KeyMetadata] = `<meta name="robots" content="noindex">` + "\n" + `<meta http-equiv="refresh" content="60">`
	values[render.KeyContent] = content
	return b.layout.Render(values)
}

// baseValues fills the placeholders shared by every page.
func (b *Builder) baseValues(title, canonical string) map[string]string {
	desc := b.Description(title)
	return map[string]string{
		render.KeyTitle:       html.EscapeString(title),
		render.KeyDescription: html.EscapeString(desc),
		render.KeyMetadata:    metaDescription(desc),
		render.KeyCanonical:   html.EscapeString(canonical),
		render.KeySiteName:    html.EscapeString(b.opts.Name),
		render.KeyYearLabel:   html.EscapeString(b.opts.YearLabel),
		render.KeyNavLink:     `<a href="/">All Audits</a>`,
		render.KeyAdsDisplay:  "none",
	}
}

func metaDescription(desc string) string {
	return `<meta name="description" content="` + html.EscapeString(desc) + `">`
}

func (b *Builder) adsScript() string {
	if b.opts.AdsClientID == "" {
		return ""
	}
	return `<script async src="https://pagead2.googlesyndication.com/pagead/js/adsbygoogle.js?client=` +
		html.EscapeString(b.opts.AdsClientID) + `" crossorigin="anonymous"></script>`
}

// FromConfig builds a Builder with the standard pipeline stages.
func FromConfig(cfg *config.Config, layout *render.Layout) *Builder {
	return NewBuilder(
		Options{
			Name:         cfg.Site.Name,
			BaseURL:      cfg.Site.BaseURL,
			YearLabel:    cfg.Site.YearLabel,
			AdsClientID:  cfg.Site.AdsClientID,
			ContactEmail: cfg.Site.ContactEmail,
		},
		layout,
		normalize.New(),
		sanitize.New(sanitize.Options{
			LegacyClasses:  cfg.Sanitize.LegacyClasses,
			RelatedHeading: cfg.Sanitize.RelatedHeading,
			StripRelated:   cfg.Sanitize.StripRelated,
		}),
		inject.New(inject.Options{
			CheckoutURL: cfg.Monetization.CheckoutURL,
			Headline:    cfg.Monetization.Headline,
			Blurb:       cfg.Monetization.Blurb,
			ButtonLabel: cfg.Monetization.ButtonLabel,
		}),
	)
}
