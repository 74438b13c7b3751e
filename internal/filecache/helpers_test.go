package filecache

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tunabay/go-infounit"

	"github.com/any-hub/any-cache/internal/fetch"
)

// fakeFetcher serves fixed payloads per URL and records how often each URL
// was requested. When gate is set, every download blocks until it is closed.
type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[string][]byte
	calls    map[string]int
	total    atomic.Int64
	started  chan string
	gate     chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		payloads: make(map[string][]byte),
		calls:    make(map[string]int),
	}
}

func (f *fakeFetcher) serve(url string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[url] = body
}

func (f *fakeFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) Download(ctx context.Context, rawURL string, _ http.Header, dst io.Writer) (int64, error) {
	f.mu.Lock()
	f.calls[rawURL]++
	body, ok := f.payloads[rawURL]
	f.mu.Unlock()
	f.total.Add(1)

	if f.started != nil {
		f.started <- rawURL
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return 0, &fetch.FetchError{URL: rawURL, Err: ctx.Err()}
		}
	}
	if !ok {
		return 0, &fetch.FetchError{URL: rawURL, StatusCode: http.StatusNotFound}
	}
	n, err := dst.Write(body)
	return int64(n), err
}

func newTestEngine(t *testing.T, fetcher Fetcher, limit infounit.ByteCount) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.CachePruneTriggerLimit = limit
	e, err := New(Config{
		StoragePath: t.TempDir(),
		Options:     opts,
		Fetcher:     fetcher,
	})
	if err != nil {
		t.Fatalf("engine error: %v", err)
	}
	return e
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}
