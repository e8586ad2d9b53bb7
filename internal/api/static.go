package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

// StaticFallback serves files from dir and answers every other non-API GET
// with index.html so client-side routes resolve.
func StaticFallback(dir string) gin.HandlerFunc {
	root := filepath.Clean(dir)

	return func(c *gin.Context) {
		if isAPIPath(c.Request.URL.Path) || (c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) {
			writeError(c, http.StatusNotFound, "Not found", nil)
			return
		}
		if dir == "" {
			writeError(c, http.StatusNotFound, "Not found", nil)
			return
		}

		rel := filepath.FromSlash(strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+c.Request.URL.Path)), "/"))
		candidate := filepath.Join(root, rel)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			c.File(candidate)
			return
		}

		index := filepath.Join(root, "index.html")
		if _, err := os.Stat(index); err != nil {
			writeError(c, http.StatusNotFound, "Not found", nil)
			return
		}
		c.File(index)
	}
}
