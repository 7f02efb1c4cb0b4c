// Package search keeps a denormalized, plain-text copy of every cached post
// for substring search.
package search

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/eringen/newsmirror/wordpress"
)

// Entry is the searchable projection of one post.
type Entry struct {
	PostID     int64          `json:"postId"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Excerpt    string         `json:"excerpt"`
	Categories []string       `json:"categories"`
	Tags       []string       `json:"tags"`
	Author     string         `json:"author"`
	Date       wordpress.Time `json:"date"`
}

// Filters narrow a search. Zero fields are ignored.
type Filters struct {
	Category string
	Tag      string
	Author   string
	DateFrom time.Time
	DateTo   time.Time
}

// IsEmpty reports whether no filter is set.
func (f Filters) IsEmpty() bool {
	return f.Category == "" && f.Tag == "" && f.Author == "" &&
		f.DateFrom.IsZero() && f.DateTo.IsZero()
}

// Result is the response shape of a search.
type Result struct {
	Results []Entry `json:"results"`
	Total   int     `json:"total"`
}

// Index is safe for concurrent use. Rebuild and Cleanup each replace the
// entry list in a single critical section.
type Index struct {
	mu             sync.RWMutex
	entries        []Entry
	fallbackAuthor string
}

// NewIndex creates an empty index. fallbackAuthor labels posts that carry
// no embedded author.
func NewIndex(fallbackAuthor string) *Index {
	return &Index{fallbackAuthor: fallbackAuthor}
}

// Rebuild replaces the index with one entry per post and returns the new size.
// Category and tag IDs that do not resolve are dropped.
func (x *Index) Rebuild(posts []wordpress.Post, categories []wordpress.Category, tags []wordpress.Tag) int {
	catNames := make(map[int64]string, len(categories))
	for _, c := range categories {
		catNames[c.ID] = c.Name
	}
	tagNames := make(map[int64]string, len(tags))
	for _, t := range tags {
		tagNames[t.ID] = t.Name
	}

	entries := make([]Entry, 0, len(posts))
	for _, p := range posts {
		author, ok := p.AuthorName()
		if !ok {
			author = x.fallbackAuthor
		}
		entries = append(entries, Entry{
			PostID:     p.ID,
			Title:      StripHTML(p.Title.Rendered),
			Content:    StripHTML(p.Content.Rendered),
			Excerpt:    StripHTML(p.Excerpt.Rendered),
			Categories: resolveNames(p.Categories, catNames),
			Tags:       resolveNames(p.Tags, tagNames),
			Author:     author,
			Date:       p.Date,
		})
	}

	x.mu.Lock()
	x.entries = entries
	x.mu.Unlock()
	return len(entries)
}

// Cleanup drops entries whose post is no longer in existing and returns how
// many were removed.
func (x *Index) Cleanup(existing map[int64]struct{}) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	kept := make([]Entry, 0, len(x.entries))
	for _, e := range x.entries {
		if _, ok := existing[e.PostID]; ok {
			kept = append(kept, e)
		}
	}
	removed := len(x.entries) - len(kept)
	x.entries = kept
	return removed
}

// Len returns the number of indexed posts.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Search matches query case-insensitively against every text field of an
// entry, then applies the filters. Results are newest first. A blank query
// with no filters returns nothing.
func (x *Index) Search(query string, f Filters) Result {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" && f.IsEmpty() {
		return Result{Results: []Entry{}}
	}

	category := strings.ToLower(f.Category)
	tag := strings.ToLower(f.Tag)
	author := strings.ToLower(f.Author)

	x.mu.RLock()
	results := make([]Entry, 0)
	for _, e := range x.entries {
		if term != "" && !e.matches(term) {
			continue
		}
		if category != "" && !anyContains(e.Categories, category) {
			continue
		}
		if tag != "" && !anyContains(e.Tags, tag) {
			continue
		}
		if author != "" && !contains(e.Author, author) {
			continue
		}
		if !f.DateFrom.IsZero() && e.Date.Before(f.DateFrom) {
			continue
		}
		if !f.DateTo.IsZero() && e.Date.After(f.DateTo) {
			continue
		}
		results = append(results, e)
	}
	x.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Date.After(results[j].Date.Time)
	})
	return Result{Results: results, Total: len(results)}
}

func (e Entry) matches(term string) bool {
	return contains(e.Title, term) ||
		contains(e.Content, term) ||
		contains(e.Excerpt, term) ||
		anyContains(e.Categories, term) ||
		anyContains(e.Tags, term) ||
		contains(e.Author, term)
}

// contains expects needle to be lower case already.
func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}

func anyContains(values []string, needle string) bool {
	for _, v := range values {
		if contains(v, needle) {
			return true
		}
	}
	return false
}

func resolveNames(ids []int64, names map[int64]string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := names[id]; ok && name != "" {
			out = append(out, name)
		}
	}
	return out
}

// StripHTML returns the visible text of an HTML fragment with entities
// decoded and runs of whitespace collapsed. Script and style bodies are
// dropped.
func StripHTML(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return strings.Join(strings.Fields(html), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
