package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/tunabay/go-infounit"

	"github.com/any-hub/any-cache/internal/fetch"
	"github.com/any-hub/any-cache/internal/filecache"
	"github.com/any-hub/any-cache/internal/server"
	"github.com/any-hub/any-cache/internal/server/routes"
	"github.com/any-hub/any-cache/internal/validate"
)

// cacheHarness 组装与 main 相同的依赖链：下载器 → 引擎 → 校验器 → Fiber。
type cacheHarness struct {
	app    *fiber.App
	engine *filecache.Engine
	stub   *upstreamStub
	logs   *bytes.Buffer
}

func newCacheHarness(t *testing.T, limit infounit.ByteCount) *cacheHarness {
	t.Helper()

	stub := newUpstreamStub(t)

	logs := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(logs)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)

	opts := filecache.DefaultOptions()
	opts.ValidProtocols = []string{"http"}
	opts.CachePruneTriggerLimit = limit
	engine, err := filecache.New(filecache.Config{
		StoragePath: t.TempDir(),
		Options:     opts,
		Fetcher:     fetch.New(fetch.NewClient(0)).WithUserAgent("any-cache-test"),
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("engine error: %v", err)
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Engine:     engine,
		Validator:  validate.New(engine.Options),
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}
	routes.RegisterDiagnosticsRoutes(app, engine)

	return &cacheHarness{app: app, engine: engine, stub: stub, logs: logs}
}

func (h *cacheHarness) call(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type resolved struct {
	Path     string `json:"path"`
	FileName string `json:"file_name"`
	Area     string `json:"area"`
	Holder   string `json:"holder"`
	Error    string `json:"error"`
}

func (h *cacheHarness) resolve(t *testing.T, body map[string]any) (int, resolved) {
	t.Helper()
	var out resolved
	status := h.call(t, http.MethodPost, "/v1/resolve", body, &out)
	return status, out
}
