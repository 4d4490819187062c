package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// MountEcho serves h under base on an existing echo instance, so the
// registry API can live next to an application's own routes.
func MountEcho(e *echo.Echo, base string, h http.Handler) {
	bp := sanitizeBase(base)
	wrapped := echo.WrapHandler(h)
	if bp == "" {
		e.Any("/*", wrapped)
		return
	}
	e.Any(bp, wrapped)
	e.Any(bp+"/*", wrapped)
}
