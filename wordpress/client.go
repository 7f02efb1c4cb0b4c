package wordpress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// ErrNotFound is returned when upstream has no item for an ID or slug.
var ErrNotFound = errors.New("wordpress: not found")

const (
	DefaultUserAgent = "NewsPlay-Client/1.0"
	DefaultTimeout   = 30 * time.Second

	slugLookupPerPage = 10
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("wordpress: GET %s: unexpected status %d", e.Path, e.Code)
}

// Options configures a Client.
type Options struct {
	BaseURL   string // e.g. https://example.com/wp-json/
	APIKey    string // sent as a bearer token when set
	UserAgent string
	Timeout   time.Duration
	RetryMax  int
	Logger    *zap.Logger
}

// Client talks to the WordPress REST API. List calls never fail loudly:
// on error they log, return an empty result and the error so the caller
// can tell "unavailable" apart from "legitimately empty".
type Client struct {
	base      *url.URL
	apiKey    string
	userAgent string
	http      *retryablehttp.Client
	log       *zap.Logger
}

// ListParams are the paging and filter parameters accepted by list calls.
// Zero values fall back to each endpoint's defaults.
type ListParams struct {
	Page       int
	PerPage    int
	Categories []int64
	Tags       []int64
	Include    []int64
	Search     string
	OrderBy    string
	Order      string
	HideEmpty  *bool
}

// ListResult is one page of a list call. Total and Pages come from the
// X-WP-Total and X-WP-TotalPages headers.
type ListResult[T any] struct {
	Data  []T
	Total int
	Pages int
}

// NewClient creates a Client for the API rooted at opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("wordpress: base URL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("wordpress: parse base URL: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}

	r := retryablehttp.NewClient()
	r.RetryMax = opts.RetryMax
	r.RetryWaitMax = 5 * time.Second
	r.HTTPClient.Timeout = opts.Timeout
	r.Logger = retryLogger{log.Sugar()}

	return &Client{
		base:      base,
		apiKey:    opts.APIKey,
		userAgent: opts.UserAgent,
		http:      r,
		log:       log,
	}, nil
}

// CheckStatus performs one cheap request and reports whether upstream answered.
func (c *Client) CheckStatus(ctx context.Context) bool {
	return c.ping(ctx, "wp-apirest/v1/status/")
}

// TestConnection hits the plugin's test endpoint.
func (c *Client) TestConnection(ctx context.Context) bool {
	return c.ping(ctx, "wp-apirest/v1/test/")
}

func (c *Client) ping(ctx context.Context, path string) bool {
	resp, err := c.get(ctx, path, nil)
	if err != nil {
		c.log.Warn("upstream status check failed", zap.String("path", path), zap.Error(err))
		return false
	}
	drain(resp)
	return resp.StatusCode == http.StatusOK
}

// ListPosts lists posts with embedded author, media and terms.
func (c *Client) ListPosts(ctx context.Context, p ListParams) (ListResult[Post], error) {
	q := url.Values{}
	q.Set("_embed", "true")
	q.Set("page", strconv.Itoa(orDefault(p.Page, 1)))
	q.Set("per_page", strconv.Itoa(orDefault(p.PerPage, 10)))
	q.Set("orderby", stringOr(p.OrderBy, "date"))
	q.Set("order", stringOr(p.Order, "desc"))
	setIDs(q, "categories", p.Categories)
	setIDs(q, "tags", p.Tags)
	setIDs(q, "include", p.Include)
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	return list[Post](ctx, c, "posts", "wp/v2/posts", q)
}

// PostsByCategory lists posts filed under one category.
func (c *Client) PostsByCategory(ctx context.Context, categoryID int64, p ListParams) (ListResult[Post], error) {
	p.Categories = []int64{categoryID}
	return c.ListPosts(ctx, p)
}

// PostsByTag lists posts carrying one tag.
func (c *Client) PostsByTag(ctx context.Context, tagID int64, p ListParams) (ListResult[Post], error) {
	p.Tags = []int64{tagID}
	return c.ListPosts(ctx, p)
}

// SearchPosts runs upstream's own full-text search.
func (c *Client) SearchPosts(ctx context.Context, query string, p ListParams) (ListResult[Post], error) {
	p.Search = query
	return c.ListPosts(ctx, p)
}

func (c *Client) ListCategories(ctx context.Context, p ListParams) (ListResult[Category], error) {
	return list[Category](ctx, c, "categories", "wp/v2/categories", taxonomyQuery(p))
}

func (c *Client) ListTags(ctx context.Context, p ListParams) (ListResult[Tag], error) {
	return list[Tag](ctx, c, "tags", "wp/v2/tags", taxonomyQuery(p))
}

func (c *Client) ListPages(ctx context.Context, p ListParams) (ListResult[Page], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(orDefault(p.Page, 1)))
	q.Set("per_page", strconv.Itoa(orDefault(p.PerPage, 20)))
	return list[Page](ctx, c, "pages", "wp/v2/pages", q)
}

// ListMedia fetches the attachments with the given IDs.
func (c *Client) ListMedia(ctx context.Context, ids []int64) ([]Media, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := list[Media](ctx, c, "media", "wp/v2/media", includeQuery(ids))
	return res.Data, err
}

// ListAuthors fetches the users with the given IDs.
func (c *Client) ListAuthors(ctx context.Context, ids []int64) ([]Author, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := list[Author](ctx, c, "users", "wp/v2/users", includeQuery(ids))
	return res.Data, err
}

// GetPost fetches a single post by ID.
func (c *Client) GetPost(ctx context.Context, id int64) (Post, error) {
	q := url.Values{}
	q.Set("_embed", "true")
	resp, err := c.get(ctx, "wp/v2/posts/"+strconv.FormatInt(id, 10), q)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return Post{}, ErrNotFound
		}
		c.log.Error("fetch post failed", zap.Int64("id", id), zap.Error(err))
		return Post{}, err
	}
	defer drain(resp)
	var p Post
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Post{}, fmt.Errorf("wordpress: decode post %d: %w", id, err)
	}
	return p, nil
}

// GetPostBySlug searches upstream for slug and exact-matches the results.
// Upstream has no slug lookup, so a match outside the first page is missed.
func (c *Client) GetPostBySlug(ctx context.Context, slug string) (Post, error) {
	res, err := c.ListPosts(ctx, ListParams{PerPage: slugLookupPerPage, Search: slug})
	if err != nil {
		return Post{}, err
	}
	for _, p := range res.Data {
		if p.Slug == slug {
			return p, nil
		}
	}
	return Post{}, ErrNotFound
}

func list[T any](ctx context.Context, c *Client, resource, path string, q url.Values) (ListResult[T], error) {
	empty := ListResult[T]{Data: []T{}}
	resp, err := c.get(ctx, path, q)
	if err != nil {
		c.log.Error("fetch failed", zap.String("resource", resource), zap.Error(err))
		return empty, err
	}
	defer drain(resp)

	var data []T
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		c.log.Error("decode failed", zap.String("resource", resource), zap.Error(err))
		return empty, fmt.Errorf("wordpress: decode %s: %w", resource, err)
	}
	if data == nil {
		data = []T{}
	}
	return ListResult[T]{
		Data:  data,
		Total: headerInt(resp.Header, "X-WP-Total", 0),
		Pages: headerInt(resp.Header, "X-WP-TotalPages", 1),
	}, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (*http.Response, error) {
	ref := &url.URL{Path: path}
	if q != nil {
		ref.RawQuery = q.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.base.ResolveReference(ref).String(), nil)
	if err != nil {
		return nil, fmt.Errorf("wordpress: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wordpress: GET %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp)
		return nil, &StatusError{Path: path, Code: resp.StatusCode}
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func taxonomyQuery(p ListParams) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(orDefault(p.Page, 1)))
	q.Set("per_page", strconv.Itoa(orDefault(p.PerPage, 100)))
	hideEmpty := true
	if p.HideEmpty != nil {
		hideEmpty = *p.HideEmpty
	}
	q.Set("hide_empty", strconv.FormatBool(hideEmpty))
	return q
}

func includeQuery(ids []int64) url.Values {
	q := url.Values{}
	setIDs(q, "include", ids)
	q.Set("per_page", "100")
	return q
}

func setIDs(q url.Values, key string, ids []int64) {
	if len(ids) == 0 {
		return
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	q.Set(key, strings.Join(parts, ","))
}

func headerInt(h http.Header, key string, fallback int) int {
	v := h.Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func orDefault(v, fallback int) int {
	if v < 1 {
		return fallback
	}
	return v
}

func stringOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// retryLogger adapts zap to retryablehttp.LeveledLogger. Per-attempt
// chatter goes to debug.
type retryLogger struct {
	s *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
