package newsmirror

import (
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/newsmirror/wordpress"
)

// BuildURL joins a base URL with path segments. Front-end routes have no
// trailing slash, so none is added.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// queryInt reads a positive integer query parameter. Missing, malformed and
// non-positive values yield fallback.
func queryInt(c echo.Context, name string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.QueryParam(name)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// queryID reads an optional entity ID query parameter. WordPress IDs start
// at 1, so zero and negative values are treated as absent.
func queryID(c echo.Context, name string) (int64, bool) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// paramID reads a path parameter as an entity ID.
func paramID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// queryTime reads a date or timestamp query parameter. Unparseable values
// are treated as absent.
func queryTime(c echo.Context, name string) time.Time {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return time.Time{}
	}
	t, err := wordpress.ParseTime(v)
	if err != nil {
		return time.Time{}
	}
	return t.Time
}
