package panel

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

//go:embed web/*
var content embed.FS

// indexFile is served for the root and for every path that is not an asset.
const indexFile = "index.html"

// Handler serves the provisioning page.
//
// A non-empty dir that exists overrides the embedded assets, so the page
// can be edited on a device without rebuilding.
func Handler(dir string) http.Handler {
	site := assets(dir)
	files := http.FileServerFS(site)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" || name == "." || !isFile(site, name) {
			// Root, captive portal probes and stale links all get the page.
			http.ServeFileFS(w, r, site, indexFile)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func assets(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	web, err := fs.Sub(content, "web")
	if err != nil {
		panic("panel: embedded assets missing: " + err.Error())
	}
	return web
}

func isFile(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
