package newsmirror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eringen/newsmirror/search"
	"github.com/eringen/newsmirror/store"
	"github.com/eringen/newsmirror/wordpress"
)

// stubSource is an upstream that is always reachable and mostly empty.
// When block is set, CheckStatus signals entered and waits on it. When down
// is set, on-demand fetches fail as if the connection was refused.
type stubSource struct {
	mu      sync.Mutex
	posts   map[int64]wordpress.Post
	block   chan struct{}
	entered chan struct{}
	down    bool
}

var errRefused = errors.New("dial tcp 10.0.0.1:443: connection refused")

func (s *stubSource) CheckStatus(ctx context.Context) bool {
	if s.block != nil {
		s.entered <- struct{}{}
		<-s.block
	}
	return true
}

func (s *stubSource) ListCategories(ctx context.Context, p wordpress.ListParams) (wordpress.ListResult[wordpress.Category], error) {
	return wordpress.ListResult[wordpress.Category]{Data: []wordpress.Category{}}, nil
}

func (s *stubSource) ListTags(ctx context.Context, p wordpress.ListParams) (wordpress.ListResult[wordpress.Tag], error) {
	return wordpress.ListResult[wordpress.Tag]{Data: []wordpress.Tag{}}, nil
}

func (s *stubSource) ListPosts(ctx context.Context, p wordpress.ListParams) (wordpress.ListResult[wordpress.Post], error) {
	return wordpress.ListResult[wordpress.Post]{Data: []wordpress.Post{}}, nil
}

func (s *stubSource) PostsByCategory(ctx context.Context, categoryID int64, p wordpress.ListParams) (wordpress.ListResult[wordpress.Post], error) {
	return wordpress.ListResult[wordpress.Post]{Data: []wordpress.Post{}}, nil
}

func (s *stubSource) ListPages(ctx context.Context, p wordpress.ListParams) (wordpress.ListResult[wordpress.Page], error) {
	return wordpress.ListResult[wordpress.Page]{Data: []wordpress.Page{}}, nil
}

func (s *stubSource) GetPost(ctx context.Context, id int64) (wordpress.Post, error) {
	if s.down {
		return wordpress.Post{}, errRefused
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.posts[id]; ok {
		return p, nil
	}
	return wordpress.Post{}, wordpress.ErrNotFound
}

func (s *stubSource) GetPostBySlug(ctx context.Context, slug string) (wordpress.Post, error) {
	if s.down {
		return wordpress.Post{}, errRefused
	}
	return wordpress.Post{}, wordpress.ErrNotFound
}

func (s *stubSource) ListMedia(ctx context.Context, ids []int64) ([]wordpress.Media, error) {
	if s.down {
		return nil, errRefused
	}
	return []wordpress.Media{{ID: 9, SourceURL: "https://cdn.example.com/a.jpg"}}, nil
}

func (s *stubSource) ListAuthors(ctx context.Context, ids []int64) ([]wordpress.Author, error) {
	if s.down {
		return nil, errRefused
	}
	return nil, nil
}

func testPost(id int64, slug string, day int, cats ...int64) wordpress.Post {
	return wordpress.Post{
		ID:         id,
		Slug:       slug,
		Date:       wordpress.Time{Time: time.Date(2024, 3, day, 9, 0, 0, 0, time.UTC)},
		Title:      wordpress.Rendered{Rendered: "Title " + slug},
		Content:    wordpress.Rendered{Rendered: "<p>Body of " + slug + "</p>"},
		Excerpt:    wordpress.Rendered{Rendered: "<p>Excerpt " + slug + "</p>"},
		Categories: cats,
		Tags:       []int64{},
	}
}

func newTestApp(t *testing.T, cfg SiteConfig, src *stubSource) *App {
	t.Helper()
	if src == nil {
		src = &stubSource{}
	}
	a := New(cfg, WithSource(src), WithLogger(zap.NewNop()))
	if err := a.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// seed fills the store with three posts, two categories and a tag, and
// indexes them.
func seed(a *App) {
	a.Store.SaveCategory(wordpress.Category{ID: 5, Name: "Tech", Slug: "tech", Count: 1})
	a.Store.SaveCategory(wordpress.Category{ID: 6, Name: "Sports", Slug: "sports", Count: 2})
	a.Store.SaveTag(wordpress.Tag{ID: 20, Name: "Go", Slug: "go", Count: 3})
	a.Store.SavePost(testPost(1, "first", 1, 5))
	a.Store.SavePost(testPost(2, "second", 2, 6))
	a.Store.SavePost(testPost(3, "third", 3, 6))
	a.Store.SavePage(wordpress.Page{ID: 40, Slug: "about", Title: wordpress.Rendered{Rendered: "About"}})
	a.Index.Rebuild(a.Store.AllPosts(), a.Store.AllCategories(), a.Store.AllTags())
}

func do(a *App, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestPostsFilteredByCategory(t *testing.T) {
	a := newTestApp(t, SiteConfig{}, nil)
	seed(a)

	rec := do(a, http.MethodGet, "/api/posts?category=5&page=1&per_page=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got store.PostPage
	decode(t, rec, &got)
	if got.Total != 1 || got.Pages != 1 || len(got.Posts) != 1 || got.Posts[0].ID != 1 {
		t.Fatalf("unexpected page: %+v", got)
	}
}

func TestPostsPaging(t *testing.T) {
	a := newTestApp(t, SiteConfig{}, nil)
	seed(a)

	tests := []struct {
		name    string
		target  string
		wantIDs []int64
		total   int
		pages   int
	}{
		{"defaults", "/api/posts", []int64{3, 2, 1}, 3, 1},
		{"second page", "/api/posts?page=2&per_page=2", []int64{1}, 3, 2},
		{"past the end", "/api/posts?page=9&per_page=2", []int64{}, 3, 2},
		{"bad params fall back", "/api/posts?page=x&per_page=-1", []int64{3, 2, 1}, 3, 1},
		{"unknown category", "/api/posts?category=99", []int64{}, 0, 0},
		{"malformed category lists all", "/api/posts?category=tech", []int64{3, 2, 1}, 3, 1},
		{"zero category lists all", "/api/posts?category=0", []int64{3, 2, 1}, 3, 1},
		{"negative tag lists all", "/api/posts?tag=-20", []int64{3, 2, 1}, 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(a, http.MethodGet, tt.target)
			var got store.PostPage
			decode(t, rec, &got)
			if got.Total != tt.total || got.Pages != tt.pages {
				t.Fatalf("total/pages = %d/%d, want %d/%d", got.Total, got.Pages, tt.total, tt.pages)
			}
			if len(got.Posts) != len(tt.wantIDs) {
				t.Fatalf("got %d posts, want %d", len(got.Posts), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got.Posts[i].ID != id {
					t.Fatalf("post %d = %d, want %d", i, got.Posts[i].ID, id)
				}
			}
		})
	}
}

func TestPostLookups(t *testing.T) {
	a := newTestApp(t, SiteConfig{}, nil)
	seed(a)

	tests := []struct {
		target   string
		wantCode int
		wantBody string
	}{
		{"/api/posts/2", http.StatusOK, `"slug":"second"`},
		{"/api/posts/slug/third", http.StatusOK, `"id":3`},
		{"/api/posts/slug/nope", http.StatusNotFound, `{"error":"Post not found"}`},
		{"/api/posts/77", http.StatusNotFound, `{"error":"Post not found"}`},
		{"/api/posts/abc", http.StatusNotFound, `{"error":"Post not found"}`},
		{"/api/categories/tech", http.StatusOK, `"name":"Tech"`},
		{"/api/categories/none", http.StatusNotFound, `{"error":"Category not found"}`},
		{"/api/tags/go", http.StatusOK, `"name":"Go"`},
		{"/api/tags/none", http.StatusNotFound, `{"error":"Tag not found"}`},
		{"/api/pages/about", http.StatusOK, `"id":40`},
		{"/api/pages/none", http.StatusNotFound, `{"error":"Page not found"}`},
		{"/api/media/9", http.StatusOK, `"source_url":"https://cdn.example.com/a.jpg"`},
		{"/api/authors/3", http.StatusNotFound, `{"error":"Author not found"}`},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(a, http.MethodGet, tt.target)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Fatalf("body %s does not contain %s", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestFetchOnMiss(t *testing.T) {
	src := &stubSource{posts: map[int64]wordpress.Post{50: testPost(50, "remote", 4)}}

	off := newTestApp(t, SiteConfig{}, src)
	if rec := do(off, http.MethodGet, "/api/posts/50"); rec.Code != http.StatusNotFound {
		t.Fatalf("without fetch-on-miss status = %d, want 404", rec.Code)
	}

	on := newTestApp(t, SiteConfig{FetchOnMiss: true}, src)
	rec := do(on, http.MethodGet, "/api/posts/50")
	if rec.Code != http.StatusOK {
		t.Fatalf("with fetch-on-miss status = %d, want 200", rec.Code)
	}
	if _, err := on.Store.Post(50); err != nil {
		t.Fatalf("fetched post was not cached: %v", err)
	}
}

func TestUpstreamDownOnDemandIsNotFound(t *testing.T) {
	a := newTestApp(t, SiteConfig{FetchOnMiss: true}, &stubSource{down: true})

	tests := []struct {
		target   string
		wantBody string
	}{
		{"/api/media/9", `{"error":"Media not found"}`},
		{"/api/authors/4", `{"error":"Author not found"}`},
		{"/api/posts/9", `{"error":"Post not found"}`},
		{"/api/posts/slug/gone", `{"error":"Post not found"}`},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(a, http.MethodGet, tt.target)
			if rec.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want 404 (body %s)", rec.Code, rec.Body.String())
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.wantBody {
				t.Fatalf("body = %s, want %s", got, tt.wantBody)
			}
		})
	}
}

func TestErrorResponsesAreNotCached(t *testing.T) {
	a := newTestApp(t, SiteConfig{}, nil)
	seed(a)
	a.Echo.GET("/api/boom", func(c echo.Context) error {
		return errors.New("boom")
	})

	tests := []struct {
		target   string
		wantCode int
		wantCC   string
	}{
		{"/api/posts/2", http.StatusOK, "public, max-age=25"},
		{"/api/posts/77", http.StatusNotFound, "no-store"},
		{"/api/categories/none", http.StatusNotFound, "no-store"},
		{"/api/nothing", http.StatusNotFound, "no-store"},
		{"/api/boom", http.StatusInternalServerError, "no-store"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(a, http.MethodGet, tt.target)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if cc := rec.Header().Get("Cache-Control"); cc != tt.wantCC {
				t.Fatalf("Cache-Control = %q, want %q", cc, tt.wantCC)
			}
		})
	}
}

func TestListingsAndTaxonomies(t *testing.T) {
	a := newTestApp(t, SiteConfig{}, nil)
	seed(a)

	var recent struct {
		Posts []wordpress.Post `json:"posts"`
	}
	decode(t, do(a, http.MethodGet, "/api/posts/recent?count=2"), &recent)
	if len(recent.Posts) != 2 || recent.Posts[0].ID != 3 {
		t.Fatalf("unexpected recent posts: %+v", recent.Posts)
	}

	var cats struct {
		Categories []wordpress.Category `json:"categories"`
	}
	decode(t, do(a, http.MethodGet, "/api/categories"), &cats)
	if len(cats.Categories) != 2 || cats.Categories[0].ID != 6 {
		t.Fatalf("categories not ordered by count: %+v", cats.Categories)
	}

	var tags struct {
		Tags []wordpress.Tag `json:"tags"`
	}
	decode(t, do(a, http.MethodGet, "/api/tags/popular?count=1"), &tags)
	if len(tags.Tags) != 1 || tags.Tags[0].Slug != "go" {
		t.Fatalf("unexpected popular tags: %+v", tags.Tags)
	}

	var pages struct {
		Pages []wordpress.Page `json:"pages"`
	}
	decode(t, do(a, http.MethodGet, "/api/pages"), &pages)
	if len(pages.Pages) != 1 {
		t.Fatalf("unexpected pages: %+v", pages.Pages)
	}
}

func TestSearchEndpoint(t *testing.T) {
	a := newTestApp(t, SiteConfig{}, nil)
	seed(a)

	tests := []struct {
		target  string
		wantIDs []int64
	}{
		{"/api/search?q=second", []int64{2}},
		{"/api/search?q=BODY", []int64{3, 2, 1}},
		{"/api/search?q=body&category=tech", []int64{1}},
		{"/api/search?category=sports", []int64{3, 2}},
		{"/api/search?q=body&date_from=2024-03-02&date_to=2024-03-02T23:59:59", []int64{2}},
		{"/api/search?q=", []int64{}},
		{"/api/search?q=nothing-matches", []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			var got search.Result
			decode(t, do(a, http.MethodGet, tt.target), &got)
			if got.Total != len(tt.wantIDs) || len(got.Results) != len(tt.wantIDs) {
				t.Fatalf("got %d results (total %d), want %d", len(got.Results), got.Total, len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got.Results[i].PostID != id {
					t.Fatalf("result %d = %d, want %d", i, got.Results[i].PostID, id)
				}
			}
		})
	}
}

func TestSearchEmptyResultsAreArrays(t *testing.T) {
	a := newTestApp(t, SiteConfig{}, nil)
	rec := do(a, http.MethodGet, "/api/search?q=x")
	if !strings.Contains(rec.Body.String(), `"results":[]`) {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestSyncStatusAndHistory(t *testing.T) {
	a := newTestApp(t, SiteConfig{}, nil)
	a.Sync.RunOnce(context.Background())

	var status map[string]any
	decode(t, do(a, http.MethodGet, "/api/sync/status"), &status)
	for _, key := range []string{"lastSync", "postsCount", "categoriesCount", "tagsCount", "isOnline", "nextSync", "isSync", "nextSyncTime"} {
		if _, ok := status[key]; !ok {
			t.Fatalf("status missing %q: %v", key, status)
		}
	}
	if status["isOnline"] != true || status["isSync"] != false {
		t.Fatalf("unexpected status: %v", status)
	}

	var history struct {
		Runs []map[string]any `json:"runs"`
	}
	decode(t, do(a, http.MethodGet, "/api/sync/history?limit=5"), &history)
	if len(history.Runs) != 1 || history.Runs[0]["online"] != true {
		t.Fatalf("unexpected history: %+v", history.Runs)
	}
}

func TestSyncTrigger(t *testing.T) {
	a := newTestApp(t, SiteConfig{TriggerLimit: 1}, nil)

	var msg messageResponse
	decode(t, do(a, http.MethodPost, "/api/sync/trigger"), &msg)
	if msg.Message != "Sync triggered successfully" {
		t.Fatalf("first trigger = %q", msg.Message)
	}
	decode(t, do(a, http.MethodPost, "/api/sync/trigger"), &msg)
	if msg.Message != "Sync rate limited, try again later" {
		t.Fatalf("second trigger = %q", msg.Message)
	}
}

func TestSyncTriggerWhileSyncing(t *testing.T) {
	src := &stubSource{block: make(chan struct{}), entered: make(chan struct{})}
	a := newTestApp(t, SiteConfig{}, src)

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Sync.RunOnce(context.Background())
	}()
	<-src.entered

	rec := do(a, http.MethodPost, "/api/sync/trigger")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var msg messageResponse
	decode(t, rec, &msg)
	if msg.Message != "Sync already in progress" {
		t.Fatalf("trigger = %q", msg.Message)
	}

	close(src.block)
	<-done
}

func TestHealth(t *testing.T) {
	a := newTestApp(t, SiteConfig{}, nil)
	rec := do(a, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got healthResponse
	decode(t, rec, &got)
	if got.Status != "healthy" || got.Timestamp.IsZero() || got.Uptime < 0 {
		t.Fatalf("unexpected health: %+v", got)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("Cache-Control = %q, want no-store", cc)
	}
}

func TestUnknownRoutesAreJSON404(t *testing.T) {
	a := newTestApp(t, SiteConfig{}, nil)
	for _, tt := range []struct{ method, target string }{
		{http.MethodGet, "/api/nothing"},
		{http.MethodGet, "/api/sync/trigger"},
		{http.MethodDelete, "/api/posts"},
	} {
		rec := do(a, tt.method, tt.target)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s status = %d, want 404", tt.method, tt.target, rec.Code)
		}
		if strings.TrimSpace(rec.Body.String()) != `{"error":"Not found"}` {
			t.Fatalf("%s %s body = %s", tt.method, tt.target, rec.Body.String())
		}
	}
}

func TestTrailingSlashIsIgnored(t *testing.T) {
	a := newTestApp(t, SiteConfig{}, nil)
	seed(a)
	if rec := do(a, http.MethodGet, "/api/categories/"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestFeed(t *testing.T) {
	a := newTestApp(t, SiteConfig{Name: "Daily", URL: "https://news.example.com"}, nil)
	seed(a)

	rec := do(a, http.MethodGet, "/feed.xml")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/rss+xml") {
		t.Fatalf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"<title>Daily</title>", "https://news.example.com/slug/third", "Excerpt first"} {
		if !strings.Contains(body, want) {
			t.Fatalf("feed missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "&lt;p&gt;") {
		t.Fatalf("feed kept markup:\n%s", body)
	}
}

func TestSitemap(t *testing.T) {
	a := newTestApp(t, SiteConfig{URL: "https://news.example.com"}, nil)
	seed(a)

	rec := do(a, http.MethodGet, "/sitemap.xml")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"<loc>https://news.example.com/</loc>",
		"<loc>https://news.example.com/slug/first</loc>",
		"<lastmod>2024-03-01</lastmod>",
		"<loc>https://news.example.com/category/tech</loc>",
		"<loc>https://news.example.com/about</loc>",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("sitemap missing %q:\n%s", want, body)
		}
	}
}

func TestStatusPage(t *testing.T) {
	a := newTestApp(t, SiteConfig{Name: "Daily"}, nil)
	seed(a)

	rec := do(a, http.MethodGet, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "/api/posts/slug/third") {
		t.Fatalf("status page does not link the latest post:\n%s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t, SiteConfig{}, nil)
	a.Sync.RunOnce(context.Background())
	do(a, http.MethodGet, "/api/health")

	rec := do(a, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"newsmirror_sync_cycles_total", "newsmirror_http_requests_total"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %s", want)
		}
	}
}

func TestInitRequiresUpstream(t *testing.T) {
	a := New(SiteConfig{}, WithLogger(zap.NewNop()))
	if err := a.Init(); err == nil {
		t.Fatal("expected an error without WPBaseURL")
	}
}

func TestCustomRoutes(t *testing.T) {
	a := New(SiteConfig{}, WithSource(&stubSource{}), WithLogger(zap.NewNop()),
		WithCustomRoutes(func(app *App) {
			app.Echo.GET("/extra", func(c echo.Context) error {
				return c.String(http.StatusOK, "extra")
			})
		}))
	if err := a.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer a.Close()

	if rec := do(a, http.MethodGet, "/extra"); rec.Body.String() != "extra" {
		t.Fatalf("custom route body = %q", rec.Body.String())
	}
}
