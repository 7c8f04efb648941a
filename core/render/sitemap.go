package render

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/gaurav-prasanna/auditpipe/core"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

// sitemapURL is one <url> entry of a sitemap.xml.
type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// urlset is the root element of a sitemap.xml.
type urlset struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// Sitemap lists the home page and one entry per article under baseURL.
// The home lastmod is the newest article timestamp.
func Sitemap(baseURL string, articles []core.Article) ([]byte, error) {
	base := strings.TrimRight(baseURL, "/")

	var newest core.Timestamp
	entries := make([]sitemapURL, 0, len(articles)+1)
	for i := range articles {
		a := &articles[i]
		if a.Slug == "" {
			continue
		}
		updated := a.UpdatedAt()
		if updated.After(newest.Time) {
			newest = updated
		}
		entries = append(entries, sitemapURL{
			Loc:        ArticleURL(base, a.Slug),
			LastMod:    updated.Date(),
			ChangeFreq: "weekly",
			Priority:   "0.8",
		})
	}

	home := sitemapURL{
		Loc:        base + "/",
		LastMod:    newest.Date(),
		ChangeFreq: "daily",
		Priority:   "1.0",
	}

	set := urlset{Xmlns: sitemapNS, URLs: append([]sitemapURL{home}, entries...)}
	data, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling sitemap: %w", err)
	}
	return append([]byte(xml.Header), data...), nil
}

// ArticleURL is the public detail URL of slug.
func ArticleURL(base, slug string) string {
	return strings.TrimRight(base, "/") + "/p/" + url.PathEscape(slug)
}
