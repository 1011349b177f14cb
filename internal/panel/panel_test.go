package panel

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandlerServesRoot(t *testing.T) {
	w := get(t, Handler(""), "/")

	if w.Code != http.StatusOK {
		t.Errorf("GET /: got status %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<!DOCTYPE html>") {
		t.Error("GET /: response doesn't contain HTML doctype")
	}
	if !strings.Contains(w.Body.String(), `id="connect"`) {
		t.Error("GET /: provisioning form missing")
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache, must-revalidate" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestHandlerServesStaticAssets(t *testing.T) {
	for _, asset := range []string{"/app.js", "/style.css"} {
		t.Run(asset, func(t *testing.T) {
			w := get(t, Handler(""), asset)
			if w.Code != http.StatusOK {
				t.Errorf("GET %s: got status %d, want 200", asset, w.Code)
			}
			if w.Body.Len() == 0 {
				t.Errorf("GET %s: empty response body", asset)
			}
		})
	}
}

func TestHandlerCaptivePortalFallback(t *testing.T) {
	probes := []string{"/generate_204", "/hotspot-detect.html", "/connecttest.txt", "/some/deep/route"}
	for _, probe := range probes {
		t.Run(probe, func(t *testing.T) {
			w := get(t, Handler(""), probe)
			if w.Code != http.StatusOK {
				t.Errorf("GET %s: got status %d, want 200", probe, w.Code)
			}
			if !strings.Contains(w.Body.String(), "<!DOCTYPE html>") {
				t.Errorf("GET %s: fallback didn't serve index.html", probe)
			}
		})
	}
}

func TestHandlerFilesystemMode(t *testing.T) {
	dir := t.TempDir()
	indexContent := `<!DOCTYPE html><html><body>local setup page</body></html>`
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(indexContent), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log('local')"), 0o644); err != nil {
		t.Fatal(err)
	}

	handler := Handler(dir)

	w := get(t, handler, "/")
	if !strings.Contains(w.Body.String(), "local setup page") {
		t.Errorf("filesystem GET /: expected filesystem content, got %q", w.Body.String())
	}

	w = get(t, handler, "/app.js")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "local") {
		t.Errorf("filesystem GET /app.js: status %d body %q", w.Code, w.Body.String())
	}

	w = get(t, handler, "/generate_204")
	if !strings.Contains(w.Body.String(), "local setup page") {
		t.Error("filesystem fallback didn't serve filesystem index.html")
	}
}

func TestHandlerInvalidDirFallsBackToEmbed(t *testing.T) {
	w := get(t, Handler("/nonexistent/dir/that/does/not/exist"), "/")

	if w.Code != http.StatusOK {
		t.Errorf("invalid dir GET /: got status %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `id="connect"`) {
		t.Error("invalid dir: didn't fall back to embedded index.html")
	}
}
