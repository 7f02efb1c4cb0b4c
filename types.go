package newsmirror

import (
	"time"

	"github.com/eringen/newsmirror/store"
	"github.com/eringen/newsmirror/syncer"
	"github.com/eringen/newsmirror/wordpress"
)

// Response envelopes. Field names match what the front end reads.

type postsResponse struct {
	Posts []wordpress.Post `json:"posts"`
}

type categoriesResponse struct {
	Categories []wordpress.Category `json:"categories"`
}

type tagsResponse struct {
	Tags []wordpress.Tag `json:"tags"`
}

type pagesResponse struct {
	Pages []wordpress.Page `json:"pages"`
}

type runsResponse struct {
	Runs []syncer.Run `json:"runs"`
}

// syncStatusResponse is the stored status plus the manager's own schedule.
type syncStatusResponse struct {
	store.SyncStatus
	IsSync       bool      `json:"isSync"`
	NextSyncTime time.Time `json:"nextSyncTime"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
}

type messageResponse struct {
	Message string `json:"message"`
}
