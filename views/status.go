package views

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
)

// StatusPage renders the operator-facing overview served at "/".
func StatusPage(d StatusData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		esc := templ.EscapeString[string]

		state, stateClass := "online", "ok"
		if !d.Online {
			state, stateClass = "offline", "down"
		}
		if d.Syncing {
			state += ", syncing"
		}

		b.WriteString("<!DOCTYPE html>\n<html lang=\"en\"><head><meta charset=\"utf-8\">")
		b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">")
		fmt.Fprintf(&b, "<title>%s status</title>", esc(d.Site.Name))
		if d.Site.Description != "" {
			fmt.Fprintf(&b, "<meta name=\"description\" content=\"%s\">", esc(d.Site.Description))
		}
		fmt.Fprintf(&b, "<link rel=\"alternate\" type=\"application/rss+xml\" href=\"%s\">", esc(buildURL(d.Site.URL, "feed.xml")))
		fmt.Fprintf(&b, "<script type=\"application/ld+json\">%s</script>", WebsiteJsonLD(d.Site))
		b.WriteString("<style>body{font:15px/1.5 system-ui,sans-serif;max-width:52rem;margin:2rem auto;padding:0 1rem;color:#1c1917}" +
			"table{border-collapse:collapse;width:100%}td,th{text-align:left;padding:.25rem .5rem;border-bottom:1px solid #e7e5e4}" +
			".ok{color:#15803d}.down{color:#b91c1c}small{color:#78716c}</style>")
		b.WriteString("</head><body>")

		fmt.Fprintf(&b, "<h1>%s</h1>", esc(d.Site.Name))
		fmt.Fprintf(&b, "<p>Upstream <strong class=\"%s\">%s</strong>. ", stateClass, esc(state))
		fmt.Fprintf(&b, "Last sync %s, next %s. Up %s.</p>",
			esc(FormatAge(d.LastSync, d.GeneratedAt)),
			esc(FormatAge(d.NextSync, d.GeneratedAt)),
			esc(d.Uptime.Truncate(time.Second).String()))

		b.WriteString("<table><tr><th>Posts</th><th>Categories</th><th>Tags</th><th>Indexed</th></tr>")
		fmt.Fprintf(&b, "<tr><td>%d</td><td>%d</td><td>%d</td><td>%d</td></tr></table>",
			d.PostsCount, d.CategoriesCount, d.TagsCount, d.IndexedCount)

		if len(d.Recent) > 0 {
			b.WriteString("<h2>Latest</h2><ul>")
			for _, p := range d.Recent {
				href := buildURL(d.Site.URL, "api", "posts", "slug", PathEscape(p.Slug))
				fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a> <small>%s</small></li>",
					esc(href), esc(p.Title), esc(p.Date.Format("2006-01-02 15:04")))
			}
			b.WriteString("</ul>")
		}

		if len(d.Runs) > 0 {
			b.WriteString("<h2>Recent syncs</h2><table><tr><th>Started</th><th>Upstream</th><th>Posts</th><th>Took</th><th>Error</th></tr>")
			for _, r := range d.Runs {
				online, class := "online", "ok"
				if !r.Online {
					online, class = "offline", "down"
				}
				fmt.Fprintf(&b, "<tr><td>%s</td><td class=\"%s\">%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
					esc(r.StartedAt.Format(time.RFC3339)), class, online,
					strconv.Itoa(r.Posts), esc(r.Duration.String()), esc(r.Error))
			}
			b.WriteString("</table>")
		}

		b.WriteString("<p><small><a href=\"/api/sync/status\">sync status</a> · <a href=\"/api/health\">health</a> · <a href=\"/metrics\">metrics</a></small></p>")
		b.WriteString("</body></html>")

		_, err := io.WriteString(w, b.String())
		return err
	})
}
