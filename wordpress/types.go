// Package wordpress holds the content types mirrored from the WordPress REST
// API and the client used to fetch them.
package wordpress

import (
	"bytes"
	"fmt"
	"time"
)

// Layout is the timestamp format WordPress uses for date fields.
const Layout = "2006-01-02T15:04:05"

// Time is a WordPress timestamp. Values without a zone are read as UTC.
type Time struct {
	time.Time
}

var timeLayouts = []string{Layout, time.RFC3339, "2006-01-02"}

// ParseTime parses s using the layouts WordPress and API clients send.
func ParseTime(s string) (Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Time{t}, nil
		}
	}
	return Time{}, fmt.Errorf("wordpress: invalid time %q", s)
}

func (t *Time) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*t = Time{}
		return nil
	}
	parsed, err := ParseTime(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + t.Format(Layout) + `"`), nil
}

// Rendered is a WordPress field delivered as rendered HTML.
type Rendered struct {
	Rendered  string `json:"rendered"`
	Protected bool   `json:"protected,omitempty"`
}

// Post is a published article.
type Post struct {
	ID            int64     `json:"id"`
	Date          Time      `json:"date"`
	DateGMT       Time      `json:"date_gmt"`
	Modified      Time      `json:"modified"`
	Slug          string    `json:"slug"`
	Status        string    `json:"status"`
	Type          string    `json:"type"`
	Link          string    `json:"link"`
	Title         Rendered  `json:"title"`
	Content       Rendered  `json:"content"`
	Excerpt       Rendered  `json:"excerpt"`
	Author        int64     `json:"author"`
	FeaturedMedia int64     `json:"featured_media"`
	CommentStatus string    `json:"comment_status"`
	Categories    []int64   `json:"categories"`
	Tags          []int64   `json:"tags"`
	Embedded      *Embedded `json:"_embedded,omitempty"`
}

// AuthorName returns the embedded author's display name, if the post was
// fetched with _embed and carries one.
func (p Post) AuthorName() (string, bool) {
	if p.Embedded == nil || len(p.Embedded.Author) == 0 {
		return "", false
	}
	return p.Embedded.Author[0].Name, true
}

// HasCategory reports whether the post is filed under category id.
func (p Post) HasCategory(id int64) bool {
	return containsID(p.Categories, id)
}

// HasTag reports whether the post carries tag id.
func (p Post) HasTag(id int64) bool {
	return containsID(p.Tags, id)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Embedded is the denormalized data WordPress inlines when _embed is set.
type Embedded struct {
	Author        []EmbeddedAuthor `json:"author,omitempty"`
	FeaturedMedia []EmbeddedMedia  `json:"wp:featuredmedia,omitempty"`
	Terms         [][]EmbeddedTerm `json:"wp:term,omitempty"`
}

type EmbeddedAuthor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type EmbeddedMedia struct {
	ID           int64         `json:"id"`
	SourceURL    string        `json:"source_url"`
	AltText      string        `json:"alt_text"`
	MediaDetails *MediaDetails `json:"media_details,omitempty"`
}

type EmbeddedTerm struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Taxonomy string `json:"taxonomy"`
}

// Category is a post category. Count is the number of posts upstream
// reports for it and drives popularity ordering.
type Category struct {
	ID          int64  `json:"id"`
	Count       int    `json:"count"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Taxonomy    string `json:"taxonomy"`
	Parent      int64  `json:"parent"`
}

// Tag is a post tag.
type Tag struct {
	ID          int64  `json:"id"`
	Count       int    `json:"count"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Taxonomy    string `json:"taxonomy"`
}

// Page is a static CMS page.
type Page struct {
	ID            int64    `json:"id"`
	Date          Time     `json:"date"`
	Slug          string   `json:"slug"`
	Status        string   `json:"status"`
	Type          string   `json:"type"`
	Link          string   `json:"link"`
	Title         Rendered `json:"title"`
	Content       Rendered `json:"content"`
	Excerpt       Rendered `json:"excerpt"`
	Author        int64    `json:"author"`
	FeaturedMedia int64    `json:"featured_media"`
	Parent        int64    `json:"parent"`
	MenuOrder     int      `json:"menu_order"`
}

// Media is an uploaded attachment.
type Media struct {
	ID           int64         `json:"id"`
	Date         Time          `json:"date"`
	Slug         string        `json:"slug"`
	Type         string        `json:"type"`
	Link         string        `json:"link"`
	Title        Rendered      `json:"title"`
	Author       int64         `json:"author"`
	MediaType    string        `json:"media_type"`
	MimeType     string        `json:"mime_type"`
	SourceURL    string        `json:"source_url"`
	AltText      string        `json:"alt_text"`
	MediaDetails *MediaDetails `json:"media_details,omitempty"`
}

type MediaDetails struct {
	Width  int                  `json:"width"`
	Height int                  `json:"height"`
	File   string               `json:"file,omitempty"`
	Sizes  map[string]MediaSize `json:"sizes,omitempty"`
}

type MediaSize struct {
	File      string `json:"file,omitempty"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	MimeType  string `json:"mime_type,omitempty"`
	SourceURL string `json:"source_url"`
}

// Author is a WordPress user as exposed by /wp/v2/users.
type Author struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Description string            `json:"description"`
	Link        string            `json:"link"`
	Slug        string            `json:"slug"`
	AvatarURLs  map[string]string `json:"avatar_urls,omitempty"`
}
