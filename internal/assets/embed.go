// Package assets serves the chat UI's stylesheet and script, embedded via
// go:embed. Each file is fingerprinted by content hash at startup so pages can
// link a versioned URL that browsers cache indefinitely.
package assets

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
)

//go:embed static
var staticFS embed.FS

// Prefix is where FileServer is expected to be mounted.
const Prefix = "/static/"

// versions maps a file name under static/ to the first 10 hex characters of
// its SHA-256.
var versions = map[string]string{}

func init() {
	_ = mime.AddExtensionType(".map", "application/json")

	entries, err := fs.ReadDir(staticFS, "static")
	if err != nil {
		panic("assets: reading embedded files: " + err.Error())
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := fs.ReadFile(staticFS, "static/"+e.Name())
		if err != nil {
			panic("assets: reading " + e.Name() + ": " + err.Error())
		}
		sum := sha256.Sum256(data)
		versions[e.Name()] = hex.EncodeToString(sum[:])[:10]
	}
}

// URL returns the versioned URL of an embedded file, or the bare path when
// the file is unknown.
func URL(name string) string {
	v, ok := versions[name]
	if !ok {
		return Prefix + name
	}
	return Prefix + name + "?v=" + v
}

// mimeFromExt returns the MIME type for a file extension.
// Falls back to the Go standard library's MIME type database,
// then to "application/octet-stream" if unknown.
func mimeFromExt(ext string) string {
	switch ext {
	case ".js", ".mjs":
		return "application/javascript"
	case ".css":
		return "text/css; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	case ".map":
		return "application/json"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}

// isCurrent reports whether the request names the current version of a file.
func isCurrent(r *http.Request) bool {
	v := r.URL.Query().Get("v")
	return v != "" && v == versions[path.Base(r.URL.Path)]
}

// FileServer returns an http.Handler that serves the embedded files.
// Requests carrying the current version get immutable cache headers; all
// others get no-cache. The handler expects paths relative to the static root
// (strip Prefix before calling).
func FileServer() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("assets: failed to create sub filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}

		if ext := strings.ToLower(path.Ext(r.URL.Path)); ext != "" {
			w.Header().Set("Content-Type", mimeFromExt(ext))
		}

		if isCurrent(r) {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			w.Header().Set("Cache-Control", "no-cache")
		}

		fileServer.ServeHTTP(w, r)
	})
}
