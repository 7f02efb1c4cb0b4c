package views

import "time"

// SiteConfig holds the site-wide settings the HTML views need.
type SiteConfig struct {
	Name        string
	URL         string
	Description string
}

// StatusData is everything the status page renders.
type StatusData struct {
	Site            SiteConfig
	GeneratedAt     time.Time
	Online          bool
	Syncing         bool
	LastSync        time.Time
	NextSync        time.Time
	PostsCount      int
	CategoriesCount int
	TagsCount       int
	IndexedCount    int
	Uptime          time.Duration
	Recent          []PostLink
	Runs            []RunRow
}

// PostLink is a headline pointing at the JSON API.
type PostLink struct {
	ID    int64
	Title string
	Slug  string
	Date  time.Time
}

// RunRow is one line of the sync history table.
type RunRow struct {
	StartedAt time.Time
	Online    bool
	Posts     int
	Duration  time.Duration
	Error     string
}
