package newsmirror

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestBuildURL(t *testing.T) {
	tests := []struct {
		base     string
		segments []string
		want     string
	}{
		{"https://news.example.com", nil, "https://news.example.com/"},
		{"https://news.example.com/", []string{"slug", "hello"}, "https://news.example.com/slug/hello"},
		{"https://news.example.com/base", []string{"category", "tech"}, "https://news.example.com/base/category/tech"},
		{"http://localhost:5000", []string{"about"}, "http://localhost:5000/about"},
	}
	for _, tt := range tests {
		if got := BuildURL(tt.base, tt.segments...); got != tt.want {
			t.Errorf("BuildURL(%q, %v) = %q, want %q", tt.base, tt.segments, got, tt.want)
		}
	}
}

func newQueryContext(query string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 7},
		{"n=3", 3},
		{"n=%203%20", 3},
		{"n=0", 7},
		{"n=-2", 7},
		{"n=abc", 7},
	}
	for _, tt := range tests {
		if got := queryInt(newQueryContext(tt.query), "n", 7); got != tt.want {
			t.Errorf("queryInt(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestQueryID(t *testing.T) {
	if _, ok := queryID(newQueryContext(""), "category"); ok {
		t.Fatal("missing param should not be set")
	}
	for _, q := range []string{"category=tech", "category=0", "category=-3"} {
		if id, ok := queryID(newQueryContext(q), "category"); ok {
			t.Fatalf("queryID(%q) = %d, want unset", q, id)
		}
	}
	if id, ok := queryID(newQueryContext("category=12"), "category"); !ok || id != 12 {
		t.Fatalf("queryID = %d, %v", id, ok)
	}
}

func TestQueryTime(t *testing.T) {
	want := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	if got := queryTime(newQueryContext("d=2024-03-02"), "d"); !got.Equal(want) {
		t.Fatalf("queryTime = %v, want %v", got, want)
	}
	if got := queryTime(newQueryContext("d=yesterday"), "d"); !got.IsZero() {
		t.Fatalf("invalid date should be zero, got %v", got)
	}
}
