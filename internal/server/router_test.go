package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/fetch"
	"github.com/any-hub/any-cache/internal/filecache"
	"github.com/any-hub/any-cache/internal/logging"
)

type testApp struct {
	*fiber.App
	engine   *filecache.Engine
	upstream *httptest.Server
	hits     *atomic.Int64
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	var hits atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png:" + r.URL.Path))
	}))
	t.Cleanup(upstream.Close)

	logger := logging.Discard()

	opts := filecache.DefaultOptions()
	opts.ValidProtocols = []string{"http"}
	engine, err := filecache.New(filecache.Config{
		StoragePath: t.TempDir(),
		Options:     opts,
		Fetcher:     fetch.New(fetch.NewClient(0)),
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	app, err := NewApp(AppOptions{
		Logger:     logger,
		Engine:     engine,
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return &testApp{App: app, engine: engine, upstream: upstream, hits: &hits}
}

func (a *testApp) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var payload map[string]any
	_ = json.Unmarshal(raw, &payload)
	return resp, payload
}

func TestNewAppRequiresDependencies(t *testing.T) {
	if _, err := NewApp(AppOptions{}); err == nil {
		t.Fatalf("expected error without logger")
	}
	if _, err := NewApp(AppOptions{Logger: logrus.New(), ListenPort: 5000}); err == nil {
		t.Fatalf("expected error without engine")
	}
}

func TestRouterSetsRequestID(t *testing.T) {
	app := newTestApp(t)
	resp, payload := app.do(t, http.MethodGet, "/v1/entries/cache", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, payload)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestRouterUnknownArea(t *testing.T) {
	app := newTestApp(t)
	resp, payload := app.do(t, http.MethodGet, "/v1/entries/tmp", nil)
	if resp.StatusCode != fiber.StatusNotFound || payload["error"] != "area_not_found" {
		t.Fatalf("expected area_not_found, got %d %v", resp.StatusCode, payload)
	}
}
