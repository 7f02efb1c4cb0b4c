// Package store is the in-memory mirror of the upstream content: one map per
// entity kind keyed by ID, plus the process-wide sync status record.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/eringen/newsmirror/wordpress"
)

// ErrNotFound is returned when a requested entity is not cached.
var ErrNotFound = errors.New("store: not found")

// SyncStatus is the outcome of the most recent sync cycle.
type SyncStatus struct {
	LastSync        time.Time `json:"lastSync"`
	PostsCount      int       `json:"postsCount"`
	CategoriesCount int       `json:"categoriesCount"`
	TagsCount       int       `json:"tagsCount"`
	IsOnline        bool      `json:"isOnline"`
	NextSync        time.Time `json:"nextSync"`
}

// PostPage is one page of an ordered post listing.
type PostPage struct {
	Posts []wordpress.Post `json:"posts"`
	Total int              `json:"total"`
	Pages int              `json:"pages"`
}

// Store holds the latest snapshot of every entity kind. Values are replaced
// whole on save, never merged.
type Store struct {
	mu         sync.RWMutex
	posts      map[int64]wordpress.Post
	categories map[int64]wordpress.Category
	tags       map[int64]wordpress.Tag
	pages      map[int64]wordpress.Page
	media      map[int64]wordpress.Media
	authors    map[int64]wordpress.Author
	status     SyncStatus
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		posts:      make(map[int64]wordpress.Post),
		categories: make(map[int64]wordpress.Category),
		tags:       make(map[int64]wordpress.Tag),
		pages:      make(map[int64]wordpress.Page),
		media:      make(map[int64]wordpress.Media),
		authors:    make(map[int64]wordpress.Author),
	}
}

// Posts

// SavePost inserts or replaces a post keyed by ID.
func (s *Store) SavePost(p wordpress.Post) {
	s.mu.Lock()
	s.posts[p.ID] = p
	s.mu.Unlock()
}

// Post returns the cached post with id, or ErrNotFound.
func (s *Store) Post(id int64) (wordpress.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return wordpress.Post{}, ErrNotFound
	}
	return p, nil
}

// PostBySlug scans for an exact slug match.
func (s *Store) PostBySlug(slug string) (wordpress.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.Slug == slug {
			return p, nil
		}
	}
	return wordpress.Post{}, ErrNotFound
}

// AllPosts returns every cached post, newest first.
func (s *Store) AllPosts() []wordpress.Post {
	s.mu.RLock()
	posts := make([]wordpress.Post, 0, len(s.posts))
	for _, p := range s.posts {
		posts = append(posts, p)
	}
	s.mu.RUnlock()
	sortPostsByDate(posts)
	return posts
}

// Posts returns page of all posts, newest first.
func (s *Store) Posts(page, perPage int) PostPage {
	return paginate(s.AllPosts(), page, perPage)
}

// PostsByCategory pages through posts filed under categoryID.
func (s *Store) PostsByCategory(categoryID int64, page, perPage int) PostPage {
	return paginate(filterPosts(s.AllPosts(), func(p wordpress.Post) bool {
		return p.HasCategory(categoryID)
	}), page, perPage)
}

// PostsByTag pages through posts carrying tagID.
func (s *Store) PostsByTag(tagID int64, page, perPage int) PostPage {
	return paginate(filterPosts(s.AllPosts(), func(p wordpress.Post) bool {
		return p.HasTag(tagID)
	}), page, perPage)
}

// RecentPosts returns up to n of the newest posts.
func (s *Store) RecentPosts(n int) []wordpress.Post {
	posts := s.AllPosts()
	if n < len(posts) {
		posts = posts[:max(n, 0)]
	}
	return posts
}

// PostIDs returns the set of cached post IDs.
func (s *Store) PostIDs() map[int64]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(map[int64]struct{}, len(s.posts))
	for id := range s.posts {
		ids[id] = struct{}{}
	}
	return ids
}

// PostsCount reports how many posts are cached.
func (s *Store) PostsCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

// ClearPosts empties the post cache.
func (s *Store) ClearPosts() {
	s.mu.Lock()
	s.posts = make(map[int64]wordpress.Post)
	s.mu.Unlock()
}

// RetainRecentPosts drops all but the n newest posts and reports how many
// were removed. Ties on publish date keep the higher ID.
func (s *Store) RetainRecentPosts(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.posts) <= n {
		return 0
	}
	posts := make([]wordpress.Post, 0, len(s.posts))
	for _, p := range s.posts {
		posts = append(posts, p)
	}
	sortPostsByDate(posts)
	kept := make(map[int64]wordpress.Post, n)
	for _, p := range posts[:n] {
		kept[p.ID] = p
	}
	removed := len(s.posts) - len(kept)
	s.posts = kept
	return removed
}

// Categories

// SaveCategory inserts or replaces a category keyed by ID.
func (s *Store) SaveCategory(c wordpress.Category) {
	s.mu.Lock()
	s.categories[c.ID] = c
	s.mu.Unlock()
}

// Category returns the cached category with id, or ErrNotFound.
func (s *Store) Category(id int64) (wordpress.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return wordpress.Category{}, ErrNotFound
	}
	return c, nil
}

// CategoryBySlug returns the category with an exact slug match, or ErrNotFound.
func (s *Store) CategoryBySlug(slug string) (wordpress.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if c.Slug == slug {
			return c, nil
		}
	}
	return wordpress.Category{}, ErrNotFound
}

// AllCategories returns categories by descending post count.
func (s *Store) AllCategories() []wordpress.Category {
	s.mu.RLock()
	cats := make([]wordpress.Category, 0, len(s.categories))
	for _, c := range s.categories {
		cats = append(cats, c)
	}
	s.mu.RUnlock()
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].Count != cats[j].Count {
			return cats[i].Count > cats[j].Count
		}
		return cats[i].ID < cats[j].ID
	})
	return cats
}

// CategoriesCount reports how many categories are cached.
func (s *Store) CategoriesCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.categories)
}

// Tags

// SaveTag inserts or replaces a tag keyed by ID.
func (s *Store) SaveTag(t wordpress.Tag) {
	s.mu.Lock()
	s.tags[t.ID] = t
	s.mu.Unlock()
}

// Tag returns the cached tag with id, or ErrNotFound.
func (s *Store) Tag(id int64) (wordpress.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tags[id]
	if !ok {
		return wordpress.Tag{}, ErrNotFound
	}
	return t, nil
}

// TagBySlug returns the tag with an exact slug match, or ErrNotFound.
func (s *Store) TagBySlug(slug string) (wordpress.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tags {
		if t.Slug == slug {
			return t, nil
		}
	}
	return wordpress.Tag{}, ErrNotFound
}

// AllTags returns tags by descending post count.
func (s *Store) AllTags() []wordpress.Tag {
	s.mu.RLock()
	tags := make([]wordpress.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		tags = append(tags, t)
	}
	s.mu.RUnlock()
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].ID < tags[j].ID
	})
	return tags
}

// PopularTags returns up to n tags with the highest post counts.
func (s *Store) PopularTags(n int) []wordpress.Tag {
	tags := s.AllTags()
	if n < len(tags) {
		tags = tags[:max(n, 0)]
	}
	return tags
}

// TagsCount reports how many tags are cached.
func (s *Store) TagsCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tags)
}

// Pages

// SavePage inserts or replaces a page keyed by ID.
func (s *Store) SavePage(p wordpress.Page) {
	s.mu.Lock()
	s.pages[p.ID] = p
	s.mu.Unlock()
}

// Page returns the cached page with id, or ErrNotFound.
func (s *Store) Page(id int64) (wordpress.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[id]
	if !ok {
		return wordpress.Page{}, ErrNotFound
	}
	return p, nil
}

// PageBySlug returns the page with an exact slug match, or ErrNotFound.
func (s *Store) PageBySlug(slug string) (wordpress.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.pages {
		if p.Slug == slug {
			return p, nil
		}
	}
	return wordpress.Page{}, ErrNotFound
}

// AllPages returns pages in menu order.
func (s *Store) AllPages() []wordpress.Page {
	s.mu.RLock()
	pages := make([]wordpress.Page, 0, len(s.pages))
	for _, p := range s.pages {
		pages = append(pages, p)
	}
	s.mu.RUnlock()
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].MenuOrder != pages[j].MenuOrder {
			return pages[i].MenuOrder < pages[j].MenuOrder
		}
		return pages[i].ID < pages[j].ID
	})
	return pages
}

// Media

// SaveMedia inserts or replaces a media item keyed by ID.
func (s *Store) SaveMedia(m wordpress.Media) {
	s.mu.Lock()
	s.media[m.ID] = m
	s.mu.Unlock()
}

// Media returns the cached media item with id, or ErrNotFound.
func (s *Store) Media(id int64) (wordpress.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.media[id]
	if !ok {
		return wordpress.Media{}, ErrNotFound
	}
	return m, nil
}

// AllMedia returns every cached media item ordered by ID.
func (s *Store) AllMedia() []wordpress.Media {
	s.mu.RLock()
	media := make([]wordpress.Media, 0, len(s.media))
	for _, m := range s.media {
		media = append(media, m)
	}
	s.mu.RUnlock()
	sort.Slice(media, func(i, j int) bool { return media[i].ID < media[j].ID })
	return media
}

// Authors

// SaveAuthor inserts or replaces an author keyed by ID.
func (s *Store) SaveAuthor(a wordpress.Author) {
	s.mu.Lock()
	s.authors[a.ID] = a
	s.mu.Unlock()
}

// Author returns the cached author with id, or ErrNotFound.
func (s *Store) Author(id int64) (wordpress.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.authors[id]
	if !ok {
		return wordpress.Author{}, ErrNotFound
	}
	return a, nil
}

// AllAuthors returns every cached author ordered by ID.
func (s *Store) AllAuthors() []wordpress.Author {
	s.mu.RLock()
	authors := make([]wordpress.Author, 0, len(s.authors))
	for _, a := range s.authors {
		authors = append(authors, a)
	}
	s.mu.RUnlock()
	sort.Slice(authors, func(i, j int) bool { return authors[i].ID < authors[j].ID })
	return authors
}

// Sync status

// SetSyncStatus replaces the recorded sync status.
func (s *Store) SetSyncStatus(st SyncStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// SyncStatus returns the last recorded sync status.
func (s *Store) SyncStatus() SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func sortPostsByDate(posts []wordpress.Post) {
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].Date.Equal(posts[j].Date.Time) {
			return posts[i].Date.After(posts[j].Date.Time)
		}
		return posts[i].ID > posts[j].ID
	})
}

func filterPosts(posts []wordpress.Post, keep func(wordpress.Post) bool) []wordpress.Post {
	out := posts[:0]
	for _, p := range posts {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
