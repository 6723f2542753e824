package viewer

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"snapsift/internal/logging"
)

func newTestServer(t *testing.T) (*Server, string, string) {
	t.Helper()
	base := t.TempDir()
	imagesRoot := filepath.Join(base, "images")
	if err := os.MkdirAll(imagesRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	cachePath := filepath.Join(base, "analysis_cache.json")

	srv, err := New(Options{
		Bind:       "127.0.0.1:0",
		CachePath:  cachePath,
		ImagesRoot: imagesRoot,
		Logger:     logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, cachePath, imagesRoot
}

func TestCacheEndpointServesDocumentVerbatim(t *testing.T) {
	srv, cachePath, _ := newTestServer(t)

	// Deliberately odd spacing: the endpoint must not re-encode.
	document := `{"version": "1.0",  "entries": {"abc": {"path": "x.jpg", "models": {}}}}`
	if err := os.WriteFile(cachePath, []byte(document), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cache", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != document {
		t.Fatalf("document altered in transit:\n%s", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestCacheEndpointMissingDocument(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cache", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCacheEndpointRejectsPost(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cache", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestImageEndpointServesFile(t *testing.T) {
	srv, _, imagesRoot := newTestServer(t)

	payload := []byte("jpeg bytes")
	if err := os.MkdirAll(filepath.Join(imagesRoot, "2021"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(imagesRoot, "2021", "shot.jpg"), payload, 0o644); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/2021/shot.jpg", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != string(payload) {
		t.Fatal("image bytes altered in transit")
	}
}

func TestImageEndpointRejectsTraversal(t *testing.T) {
	srv, _, imagesRoot := newTestServer(t)

	secret := filepath.Join(filepath.Dir(imagesRoot), "secret.txt")
	if err := os.WriteFile(secret, []byte("do not serve"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{
		"/images/../secret.txt",
		"/images/..%2Fsecret.txt",
		"/images/2021/../../secret.txt",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			t.Errorf("%s served, want rejection", path)
		}
	}
}

func TestImageEndpointAllowsDottedFilenames(t *testing.T) {
	srv, _, imagesRoot := newTestServer(t)

	payload := []byte("dotted name")
	if err := os.WriteFile(filepath.Join(imagesRoot, "photo..jpg"), payload, 0o644); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/photo..jpg", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != string(payload) {
		t.Fatal("image bytes altered in transit")
	}
}

func TestImageEndpointMissingFile(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/nope.jpg", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	base := Options{Bind: "127.0.0.1:0", CachePath: "/tmp/c.json", ImagesRoot: "/tmp/images"}
	for name, mutate := range map[string]func(*Options){
		"missing bind":   func(o *Options) { o.Bind = "" },
		"missing cache":  func(o *Options) { o.CachePath = "" },
		"missing images": func(o *Options) { o.ImagesRoot = "" },
	} {
		opts := base
		mutate(&opts)
		if _, err := New(opts); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
