package newsmirror

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eringen/newsmirror/search"
	"github.com/eringen/newsmirror/store"
	"github.com/eringen/newsmirror/views"
)

const (
	defaultRecentCount  = 8
	defaultPopularCount = 10
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	feedSize            = 20
)

func (a *App) handlePosts(c echo.Context) error {
	page := queryInt(c, "page", 1)
	perPage := min(queryInt(c, "per_page", store.DefaultPerPage), store.MaxPerPage)

	if id, ok := queryID(c, "category"); ok {
		return c.JSON(http.StatusOK, a.Store.PostsByCategory(id, page, perPage))
	}
	if id, ok := queryID(c, "tag"); ok {
		return c.JSON(http.StatusOK, a.Store.PostsByTag(id, page, perPage))
	}
	return c.JSON(http.StatusOK, a.Store.Posts(page, perPage))
}

func (a *App) handleRecentPosts(c echo.Context) error {
	count := min(queryInt(c, "count", defaultRecentCount), store.MaxPerPage)
	return c.JSON(http.StatusOK, postsResponse{Posts: a.Store.RecentPosts(count)})
}

func (a *App) handlePost(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return notFound(c, "Post")
	}
	post, err := a.Store.Post(id)
	if errors.Is(err, store.ErrNotFound) && a.Config.FetchOnMiss {
		post, err = a.Sync.ResolvePost(c.Request().Context(), id)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound(c, "Post")
		}
		return err
	}
	return c.JSON(http.StatusOK, post)
}

func (a *App) handlePostBySlug(c echo.Context) error {
	slug := c.Param("slug")
	post, err := a.Store.PostBySlug(slug)
	if errors.Is(err, store.ErrNotFound) && a.Config.FetchOnMiss {
		post, err = a.Sync.ResolvePostBySlug(c.Request().Context(), slug)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound(c, "Post")
		}
		return err
	}
	return c.JSON(http.StatusOK, post)
}

func (a *App) handleCategories(c echo.Context) error {
	return c.JSON(http.StatusOK, categoriesResponse{Categories: a.Store.AllCategories()})
}

func (a *App) handleCategory(c echo.Context) error {
	cat, err := a.Store.CategoryBySlug(c.Param("slug"))
	if err != nil {
		return notFound(c, "Category")
	}
	return c.JSON(http.StatusOK, cat)
}

func (a *App) handleTags(c echo.Context) error {
	return c.JSON(http.StatusOK, tagsResponse{Tags: a.Store.AllTags()})
}

func (a *App) handlePopularTags(c echo.Context) error {
	count := queryInt(c, "count", defaultPopularCount)
	return c.JSON(http.StatusOK, tagsResponse{Tags: a.Store.PopularTags(count)})
}

func (a *App) handleTag(c echo.Context) error {
	tag, err := a.Store.TagBySlug(c.Param("slug"))
	if err != nil {
		return notFound(c, "Tag")
	}
	return c.JSON(http.StatusOK, tag)
}

func (a *App) handlePages(c echo.Context) error {
	return c.JSON(http.StatusOK, pagesResponse{Pages: a.Store.AllPages()})
}

func (a *App) handlePage(c echo.Context) error {
	page, err := a.Store.PageBySlug(c.Param("slug"))
	if err != nil {
		return notFound(c, "Page")
	}
	return c.JSON(http.StatusOK, page)
}

func (a *App) handleMedia(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return notFound(c, "Media")
	}
	media, err := a.Sync.ResolveMedia(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound(c, "Media")
		}
		return err
	}
	return c.JSON(http.StatusOK, media)
}

func (a *App) handleAuthor(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return notFound(c, "Author")
	}
	author, err := a.Sync.ResolveAuthor(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound(c, "Author")
		}
		return err
	}
	return c.JSON(http.StatusOK, author)
}

func (a *App) handleSearch(c echo.Context) error {
	filters := search.Filters{
		Category: strings.TrimSpace(c.QueryParam("category")),
		Tag:      strings.TrimSpace(c.QueryParam("tag")),
		Author:   strings.TrimSpace(c.QueryParam("author")),
		DateFrom: queryTime(c, "date_from"),
		DateTo:   queryTime(c, "date_to"),
	}
	return c.JSON(http.StatusOK, a.Index.Search(c.QueryParam("q"), filters))
}

func (a *App) handleSyncStatus(c echo.Context) error {
	ms := a.Sync.Status()
	return c.JSON(http.StatusOK, syncStatusResponse{
		SyncStatus:   a.Store.SyncStatus(),
		IsSync:       ms.IsSync,
		NextSyncTime: ms.NextSyncTime,
	})
}

func (a *App) handleSyncHistory(c echo.Context) error {
	limit := min(queryInt(c, "limit", defaultHistoryLimit), maxHistoryLimit)
	runs, err := a.Sync.History(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, runsResponse{Runs: runs})
}

func (a *App) handleSyncTrigger(c echo.Context) error {
	if !a.triggerLimiter.Allow(c.RealIP()) {
		return c.JSON(http.StatusOK, messageResponse{Message: "Sync rate limited, try again later"})
	}
	if !a.Sync.Trigger() {
		return c.JSON(http.StatusOK, messageResponse{Message: "Sync already in progress"})
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Sync triggered successfully"})
}

func (a *App) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(a.started).Seconds(),
	})
}

func (a *App) handleStatusPage(c echo.Context) error {
	st := a.Store.SyncStatus()
	ms := a.Sync.Status()

	data := views.StatusData{
		Site: views.SiteConfig{
			Name:        a.Config.Name,
			URL:         a.Config.URL,
			Description: a.Config.Description,
		},
		GeneratedAt:     time.Now(),
		Online:          st.IsOnline,
		Syncing:         ms.IsSync,
		LastSync:        st.LastSync,
		NextSync:        ms.NextSyncTime,
		PostsCount:      st.PostsCount,
		CategoriesCount: st.CategoriesCount,
		TagsCount:       st.TagsCount,
		IndexedCount:    a.Index.Len(),
		Uptime:          time.Since(a.started),
	}
	for _, p := range a.Store.RecentPosts(defaultRecentCount) {
		data.Recent = append(data.Recent, views.PostLink{
			ID:    p.ID,
			Title: search.StripHTML(p.Title.Rendered),
			Slug:  p.Slug,
			Date:  p.Date.Time,
		})
	}
	runs, err := a.Sync.History(c.Request().Context(), 10)
	if err != nil {
		a.Log.Warn("load sync history", zap.Error(err))
	}
	for _, r := range runs {
		data.Runs = append(data.Runs, views.RunRow{
			StartedAt: r.StartedAt,
			Online:    r.Online,
			Posts:     r.PostsCount,
			Duration:  time.Duration(r.DurationMS) * time.Millisecond,
			Error:     r.Error,
		})
	}
	return Render(c, a.Views.Status(data))
}

func (a *App) handleFeed(c echo.Context) error {
	return a.renderRSS(c, a.Store.RecentPosts(feedSize))
}

func (a *App) handleSitemap(c echo.Context) error {
	return a.renderSitemap(c, a.Store.AllPosts(), a.Store.AllCategories(), a.Store.AllPages())
}

// httpErrorHandler keeps the API to three statuses: unknown routes and
// methods are 404, everything else that escapes a handler is 500.
func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) && (he.Code == http.StatusNotFound || he.Code == http.StatusMethodNotAllowed) {
		_ = jsonError(c, http.StatusNotFound, "Not found")
		return
	}
	a.Log.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("uri", c.Request().RequestURI),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		zap.Error(err),
	)
	_ = jsonError(c, http.StatusInternalServerError, "Internal server error")
}
