// Package web serves a built designer frontend next to the API.
package web

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
)

// ErrNoFrontend is returned when the directory has no index.html.
var ErrNoFrontend = errors.New("frontend not found")

// OpenDir returns the frontend rooted at dir, or ErrNoFrontend when dir is
// empty or has no index.html.
func OpenDir(dir string) (fs.FS, error) {
	if dir == "" {
		return nil, ErrNoFrontend
	}
	fsys := os.DirFS(dir)
	if !HasIndex(fsys) {
		return nil, ErrNoFrontend
	}
	return fsys, nil
}

// HasIndex reports whether fsys contains a top-level index.html.
func HasIndex(fsys fs.FS) bool {
	info, err := fs.Stat(fsys, "index.html")
	return err == nil && !info.IsDir()
}

// RegisterStaticRoutes serves fsys for every non-API path. Unknown paths fall
// back to index.html so the frontend router can handle them.
// The API routes should be registered before calling this function.
func RegisterStaticRoutes(e *echo.Echo, fsys fs.FS) error {
	if !HasIndex(fsys) {
		return ErrNoFrontend
	}
	fileServer := http.FileServer(http.FS(fsys))

	e.GET("/*", func(c echo.Context) error {
		requestPath := path.Clean(c.Request().URL.Path)
		if strings.HasPrefix(requestPath, "/api/") {
			return echo.ErrNotFound
		}
		name := strings.TrimPrefix(requestPath, "/")
		if name == "" {
			return serveIndexHTML(c, fsys)
		}

		stat, err := fs.Stat(fsys, name)
		if err != nil {
			return serveIndexHTML(c, fsys)
		}
		if stat.IsDir() {
			if _, err := fs.Stat(fsys, path.Join(name, "index.html")); err != nil {
				return serveIndexHTML(c, fsys)
			}
		}

		fileServer.ServeHTTP(c.Response(), c.Request())
		return nil
	})
	return nil
}

// serveIndexHTML serves the main index.html for SPA routing
func serveIndexHTML(c echo.Context, fsys fs.FS) error {
	indexFile, err := fsys.Open("index.html")
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "index.html not found")
	}
	defer indexFile.Close()

	content, err := io.ReadAll(indexFile)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read index.html")
	}
	return c.HTMLBlob(http.StatusOK, content)
}
