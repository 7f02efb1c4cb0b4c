package newsmirror

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// Render writes a templ component as an HTTP 200 HTML response.
func Render(c echo.Context, cmp templ.Component) error {
	return RenderStatus(c, http.StatusOK, cmp)
}

// RenderStatus writes a templ component with a specific HTTP status code.
func RenderStatus(c echo.Context, code int, cmp templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}

// jsonError writes the API's error body. Error responses are never cached.
func jsonError(c echo.Context, code int, msg string) error {
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(code, map[string]string{"error": msg})
}

func notFound(c echo.Context, what string) error {
	return jsonError(c, http.StatusNotFound, what+" not found")
}
