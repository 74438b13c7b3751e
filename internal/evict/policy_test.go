package evict

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tunabay/go-infounit"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/locks"
)

const testLimit = 100

func TestMaybeEvictUnderLimitIsNoop(t *testing.T) {
	store, reg := newTestDeps(t)
	base := time.Now().Add(-time.Hour)
	putEntry(t, store, "a", 40, base)
	putEntry(t, store, "b", 60, base.Add(time.Minute))

	res, err := newTestPolicy(store, reg).MaybeEvict(context.Background())
	if err != nil {
		t.Fatalf("evict error: %v", err)
	}
	if len(res.Evicted) != 0 {
		t.Fatalf("at-threshold area must not be evicted, got %v", res.Evicted)
	}
	if res.SizeAfter != 100 {
		t.Fatalf("unexpected size: %d", res.SizeAfter)
	}
}

func TestMaybeEvictRemovesOnlyOldest(t *testing.T) {
	store, reg := newTestDeps(t)
	base := time.Now().Add(-time.Hour)
	putEntry(t, store, "oldest", testLimit/2, base)
	putEntry(t, store, "middle", testLimit/2, base.Add(time.Minute))
	putEntry(t, store, "newest", testLimit/2, base.Add(2*time.Minute))

	res, err := newTestPolicy(store, reg).MaybeEvict(context.Background())
	if err != nil {
		t.Fatalf("evict error: %v", err)
	}
	if diff := cmp.Diff([]string{"oldest"}, res.Evicted); diff != "" {
		t.Fatalf("evicted mismatch (-want +got):\n%s", diff)
	}
	if res.SizeAfter != testLimit {
		t.Fatalf("expected area back at threshold, got %d", res.SizeAfter)
	}
	assertExists(t, store, "middle", true)
	assertExists(t, store, "newest", true)
}

func TestMaybeEvictSkipsLockedEntries(t *testing.T) {
	store, reg := newTestDeps(t)
	base := time.Now().Add(-time.Hour)
	putEntry(t, store, "locked-old", 60, base)
	putEntry(t, store, "free", 60, base.Add(time.Minute))
	reg.Lock("locked-old", "view-1")

	res, err := newTestPolicy(store, reg).MaybeEvict(context.Background())
	if err != nil {
		t.Fatalf("evict error: %v", err)
	}
	if diff := cmp.Diff([]string{"free"}, res.Evicted); diff != "" {
		t.Fatalf("evicted mismatch (-want +got):\n%s", diff)
	}
	assertExists(t, store, "locked-old", true)
}

func TestMaybeEvictAllLockedIsSteadyState(t *testing.T) {
	store, reg := newTestDeps(t)
	base := time.Now().Add(-time.Hour)
	putEntry(t, store, "a", 80, base)
	putEntry(t, store, "b", 80, base.Add(time.Minute))
	reg.Lock("a", "v1")
	reg.Lock("b", "v2")

	res, err := newTestPolicy(store, reg).MaybeEvict(context.Background())
	if err != nil {
		t.Fatalf("all-locked area must not error: %v", err)
	}
	if len(res.Evicted) != 0 || res.Blocked != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.SizeAfter <= testLimit {
		t.Fatalf("area should remain over threshold, got %d", res.SizeAfter)
	}

	reg.Unlock("a", "v1")
	res, err = newTestPolicy(store, reg).MaybeEvict(context.Background())
	if err != nil {
		t.Fatalf("evict error: %v", err)
	}
	if diff := cmp.Diff([]string{"a"}, res.Evicted); diff != "" {
		t.Fatalf("unlocked entry should become evictable (-want +got):\n%s", diff)
	}
}

func TestMaybeEvictHonoursProtectedNames(t *testing.T) {
	store, reg := newTestDeps(t)
	base := time.Now().Add(-time.Hour)
	putEntry(t, store, "just-written", 150, base)

	res, err := newTestPolicy(store, reg).MaybeEvict(context.Background(), "just-written")
	if err != nil {
		t.Fatalf("evict error: %v", err)
	}
	if len(res.Evicted) != 0 {
		t.Fatalf("protected entry must survive, got %v", res.Evicted)
	}
	assertExists(t, store, "just-written", true)
}

func TestMaybeEvictTieBreaksByName(t *testing.T) {
	store, reg := newTestDeps(t)
	at := time.Now().Add(-time.Hour).Truncate(time.Second)
	putEntry(t, store, "b", 60, at)
	putEntry(t, store, "a", 60, at)

	res, err := newTestPolicy(store, reg).MaybeEvict(context.Background())
	if err != nil {
		t.Fatalf("evict error: %v", err)
	}
	if diff := cmp.Diff([]string{"a"}, res.Evicted); diff != "" {
		t.Fatalf("ties should break by file name (-want +got):\n%s", diff)
	}
}

func TestMaybeEvictIgnoresPermanentArea(t *testing.T) {
	store, reg := newTestDeps(t)
	tmp, err := store.CreateTemp()
	if err != nil {
		t.Fatalf("create temp error: %v", err)
	}
	_, _ = tmp.WriteString(strings.Repeat("p", 500))
	_ = tmp.Close()
	if _, err := store.Commit(tmp.Name(), cache.AreaPermanent, "forever"); err != nil {
		t.Fatalf("commit error: %v", err)
	}

	res, err := newTestPolicy(store, reg).MaybeEvict(context.Background())
	if err != nil {
		t.Fatalf("evict error: %v", err)
	}
	if res.SizeBefore != 0 || len(res.Evicted) != 0 {
		t.Fatalf("permanent area must not count toward the limit: %+v", res)
	}
}

func newTestDeps(t *testing.T) (*cache.Manager, *locks.Registry) {
	t.Helper()
	store, err := cache.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("manager error: %v", err)
	}
	return store, locks.New()
}

func newTestPolicy(store *cache.Manager, reg *locks.Registry) *Policy {
	return NewPolicy(store, reg, func() infounit.ByteCount { return testLimit }, nil)
}

func putEntry(t *testing.T, store *cache.Manager, name string, size int, touched time.Time) {
	t.Helper()
	tmp, err := store.CreateTemp()
	if err != nil {
		t.Fatalf("create temp error: %v", err)
	}
	if _, err := tmp.Write(make([]byte, size)); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if err := tmp.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if _, err := store.Commit(tmp.Name(), cache.AreaCache, name); err != nil {
		t.Fatalf("commit error: %v", err)
	}
	if err := store.Touch(cache.AreaCache, name, touched); err != nil {
		t.Fatalf("touch error: %v", err)
	}
}

func assertExists(t *testing.T, store *cache.Manager, name string, want bool) {
	t.Helper()
	_, err := os.Stat(store.Path(cache.AreaCache, name))
	if got := err == nil; got != want {
		t.Fatalf("exists(%s) = %v, want %v", name, got, want)
	}
}
