package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/tunabay/go-infounit"

	"github.com/any-hub/any-cache/internal/filecache"
)

func TestDiagnosticsRoutes(t *testing.T) {
	opts := filecache.DefaultOptions()
	opts.CachePruneTriggerLimit = 2 * infounit.Mebibyte
	engine, err := filecache.New(filecache.Config{StoragePath: t.TempDir(), Options: opts})
	if err != nil {
		t.Fatalf("engine error: %v", err)
	}
	engine.Lock("a.png", "view-1")

	app := fiber.New()
	RegisterDiagnosticsRoutes(app, engine)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/stats", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	var stats statsPayload
	decode(t, resp.Body, &stats)
	if stats.LimitBytes != 2<<20 || stats.Locked != 1 || stats.Summary == "" {
		t.Fatalf("unexpected stats payload: %+v", stats)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/-/options", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	var payload optionsPayload
	decode(t, resp.Body, &payload)
	if payload.FileDirName != filecache.DefaultFileDirName || payload.CachePruneTriggerLimit != 2<<20 {
		t.Fatalf("unexpected options payload: %+v", payload)
	}
	if len(payload.ValidProtocols) != 1 || payload.ValidProtocols[0] != "https" {
		t.Fatalf("unexpected protocols: %v", payload.ValidProtocols)
	}
	if payload.FileHostWhitelist == nil {
		t.Fatalf("empty whitelist should encode as []")
	}
}

func TestRegisterDiagnosticsRoutesNil(t *testing.T) {
	RegisterDiagnosticsRoutes(nil, nil)
}

func decode(t *testing.T, r io.Reader, dst any) {
	t.Helper()
	if err := json.NewDecoder(r).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
