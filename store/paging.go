package store

import "github.com/eringen/newsmirror/wordpress"

// Page bounds applied by callers that accept them from users.
const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Slice returns the 1-indexed page of items along with the total item count
// and the number of pages. A page past the end is empty, not an error.
func Slice[T any](items []T, page, perPage int) ([]T, int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	total := len(items)
	pages := (total + perPage - 1) / perPage
	if page > pages {
		return []T{}, total, pages
	}
	start := (page - 1) * perPage
	end := min(start+perPage, total)
	return items[start:end], total, pages
}

func paginate(posts []wordpress.Post, page, perPage int) PostPage {
	items, total, pages := Slice(posts, page, perPage)
	return PostPage{Posts: items, Total: total, Pages: pages}
}
