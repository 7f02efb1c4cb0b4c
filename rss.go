package newsmirror

import (
	"net/http"
	"strconv"

	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v4"

	"github.com/eringen/newsmirror/search"
	"github.com/eringen/newsmirror/wordpress"
)

func (a *App) renderRSS(c echo.Context, posts []wordpress.Post) error {
	base := a.Config.URL
	feed := &feeds.Feed{
		Title:       a.Config.Name,
		Link:        &feeds.Link{Href: base},
		Description: a.Config.Description,
		Items:       make([]*feeds.Item, 0, len(posts)),
	}
	if len(posts) > 0 {
		feed.Updated = posts[0].Date.Time
	}

	for _, p := range posts {
		postURL := BuildURL(base, "slug", p.Slug)
		item := &feeds.Item{
			Title:       search.StripHTML(p.Title.Rendered),
			Link:        &feeds.Link{Href: postURL},
			Description: search.StripHTML(p.Excerpt.Rendered),
			Id:          strconv.FormatInt(p.ID, 10),
			Created:     p.Date.Time,
			Updated:     p.Modified.Time,
		}
		if name, ok := p.AuthorName(); ok {
			item.Author = &feeds.Author{Name: name}
		}
		feed.Add(item)
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/rss+xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	return feed.WriteRss(c.Response())
}
