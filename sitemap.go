package newsmirror

import (
	"encoding/xml"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/newsmirror/wordpress"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// renderSitemap lists the front end's home, post, category and page URLs.
func (a *App) renderSitemap(c echo.Context, posts []wordpress.Post, categories []wordpress.Category, pages []wordpress.Page) error {
	base := a.Config.URL
	urls := make([]sitemapURL, 0, 1+len(posts)+len(categories)+len(pages))
	urls = append(urls, sitemapURL{Loc: BuildURL(base)})
	for _, p := range posts {
		urls = append(urls, sitemapURL{
			Loc:     BuildURL(base, "slug", p.Slug),
			LastMod: lastMod(p.Modified, p.Date),
		})
	}
	for _, cat := range categories {
		urls = append(urls, sitemapURL{Loc: BuildURL(base, "category", cat.Slug)})
	}
	for _, pg := range pages {
		urls = append(urls, sitemapURL{
			Loc:     BuildURL(base, pg.Slug),
			LastMod: lastMod(pg.Date),
		})
	}
	sitemap := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(sitemap)
}

// lastMod formats the first non-zero time as a W3C date.
func lastMod(times ...wordpress.Time) string {
	for _, t := range times {
		if !t.IsZero() {
			return t.Format("2006-01-02")
		}
	}
	return ""
}
