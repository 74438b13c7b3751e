package filecache

import (
	"fmt"
	"sync/atomic"

	"github.com/tunabay/go-infounit"

	"github.com/any-hub/any-cache/internal/cache"
)

type counters struct {
	requested atomic.Int64
	hits      atomic.Int64
	downloads atomic.Int64
	coalesced atomic.Int64
	failed    atomic.Int64
	evicted   atomic.Int64
	pruned    atomic.Int64
}

// Stats 是缓存运行状态与累计计数。
type Stats struct {
	Requested  int64              // 累计 Resolve 调用次数
	Hits       int64              // 命中次数
	Downloads  int64              // 成功下载并发布的次数
	Coalesced  int64              // 等待进行中下载的次数
	Failed     int64              // 失败的 Resolve 次数
	Evicted    int64              // 被自动淘汰的文件数
	Pruned     int64              // 被显式清理的文件数
	Locked     int                // 当前被锁定的文件数
	InFlight   int                // 当前进行中的解析数
	CacheBytes infounit.ByteCount // cache 区当前大小
	Limit      infounit.ByteCount // cache 区阈值
}

// String returns the string representation of Stats.
func (s Stats) String() string {
	return fmt.Sprintf(
		"cache=%.1S/%.1S, req=%d, hit=%d, new=%d, wait=%d, fail=%d, evict=%d, prune=%d, lock=%d, op=%d",
		s.CacheBytes,
		s.Limit,
		s.Requested,
		s.Hits,
		s.Downloads,
		s.Coalesced,
		s.Failed,
		s.Evicted,
		s.Pruned,
		s.Locked,
		s.InFlight,
	)
}

// Stats 汇总计数器并读取 cache 区当前大小。
func (e *Engine) Stats() (Stats, error) {
	size, err := e.store.AreaSize(cache.AreaCache)
	if err != nil {
		return Stats{}, err
	}
	e.mu.Lock()
	inflight := len(e.inflight)
	e.mu.Unlock()

	return Stats{
		Requested:  e.stats.requested.Load(),
		Hits:       e.stats.hits.Load(),
		Downloads:  e.stats.downloads.Load(),
		Coalesced:  e.stats.coalesced.Load(),
		Failed:     e.stats.failed.Load(),
		Evicted:    e.stats.evicted.Load(),
		Pruned:     e.stats.pruned.Load(),
		Locked:     e.locks.Len(),
		InFlight:   inflight,
		CacheBytes: infounit.ByteCount(size),
		Limit:      e.pruneTriggerLimit(),
	}, nil
}
