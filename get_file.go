package hive

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// API: GET /files/:key/*name
func (h *Hive) getFile(gc *gin.Context) {
	key := gc.Param("key")
	name := strings.TrimPrefix(gc.Param("name"), "/") // e.g. "medium.jpg" or "original/cat.jpg"

	if !validKey(key) || !validFilePath(name) {
		gc.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid file path"})
		return
	}

	path := filepath.Join(h.Ingestor.Layout.AssetDir(key), filepath.FromSlash(name))

	// Stat follows the rendition symlinks
	if stat, err := os.Stat(path); err != nil || stat.IsDir() {
		gc.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	if contentType := mime.TypeByExtension(filepath.Ext(name)); contentType != "" {
		gc.Header("Content-Type", contentType)
	}
	gc.File(path)
}

// validFilePath accepts a relative slash separated path without "." or
// ".." elements. Dots inside a name ("a..b.jpg") are fine.
func validFilePath(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return false
	}
	for _, elem := range strings.Split(name, "/") {
		if elem == "" || elem == "." || elem == ".." {
			return false
		}
	}
	return true
}
