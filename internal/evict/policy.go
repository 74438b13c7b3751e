// Package evict keeps the evictable cache area under its configured byte
// threshold by deleting unlocked entries, least recently touched first.
package evict

import (
	"context"
	"fmt"
	"io"

	"github.com/petar/GoLLRB/llrb"
	"github.com/sirupsen/logrus"
	"github.com/tunabay/go-infounit"

	"github.com/any-hub/any-cache/internal/cache"
)

// LockChecker 是淘汰策略对锁表的只读依赖。
type LockChecker interface {
	IsLocked(name string) bool
	Snapshot() map[string]int
}

// Policy 在写入 cache 区后同步执行容量检查与淘汰。
type Policy struct {
	store  *cache.Manager
	locks  LockChecker
	limit  func() infounit.ByteCount
	logger *logrus.Logger
}

// Result 汇总一次淘汰的结果，便于日志与统计。
type Result struct {
	SizeBefore int64
	SizeAfter  int64
	Evicted    []string
	Blocked    int
	Failed     int
}

// Freed 返回本次淘汰释放的字节数。
func (r Result) Freed() int64 {
	return r.SizeBefore - r.SizeAfter
}

// NewPolicy 构造淘汰策略。limit 在每次执行时读取，保证配置热更新后立即生效。
func NewPolicy(store *cache.Manager, locks LockChecker, limit func() infounit.ByteCount, logger *logrus.Logger) *Policy {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Policy{
		store:  store,
		locks:  locks,
		limit:  limit,
		logger: logger,
	}
}

// MaybeEvict 仅作用于 cache 区：总大小不超过阈值时直接返回；否则按
// LastTouchedAt（同时刻按文件名）从旧到新删除未加锁且未受保护的条目，
// 直到回落到阈值以内或候选耗尽。全部被锁而仍超限是可接受的稳态，不返回错误。
// 单个条目删除失败只记录日志，不会中断本次淘汰。
func (p *Policy) MaybeEvict(ctx context.Context, protect ...string) (Result, error) {
	limit := int64(p.limit())

	size, err := p.store.AreaSize(cache.AreaCache)
	if err != nil {
		return Result{}, err
	}
	if size <= limit {
		return Result{SizeBefore: size, SizeAfter: size}, nil
	}

	skip := make(map[string]struct{}, len(protect))
	for _, name := range protect {
		skip[name] = struct{}{}
	}
	locked := p.locks.Snapshot()

	var res Result
	tree := llrb.New()
	for entry, err := range p.store.ListEntries(cache.AreaCache) {
		if err != nil {
			return res, err
		}
		res.SizeBefore += entry.SizeBytes
		if _, ok := skip[entry.FileName]; ok {
			res.Blocked++
			continue
		}
		if locked[entry.FileName] > 0 {
			res.Blocked++
			continue
		}
		tree.InsertNoReplace(&candidate{entry: entry})
	}
	res.SizeAfter = res.SizeBefore

	for res.SizeAfter > limit && tree.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		cand := tree.DeleteMin().(*candidate) //nolint:forcetypeassert
		name := cand.entry.FileName

		// 快照之后可能有新的持有者
		if p.locks.IsLocked(name) {
			res.Blocked++
			continue
		}

		removed, err := p.store.Remove(cache.AreaCache, name)
		if err != nil {
			res.Failed++
			p.logger.WithError(err).WithFields(logrus.Fields{
				"action":    "evict",
				"file_name": name,
			}).Warn("evict_remove_failed")
			continue
		}
		if removed {
			res.Evicted = append(res.Evicted, name)
		}
		res.SizeAfter -= cand.entry.SizeBytes
	}

	fields := logrus.Fields{
		"action":      "evict",
		"limit":       fmt.Sprintf("%.1S", infounit.ByteCount(limit)),
		"size_before": fmt.Sprintf("%.1S", infounit.ByteCount(res.SizeBefore)),
		"size_after":  fmt.Sprintf("%.1S", infounit.ByteCount(max(res.SizeAfter, 0))),
		"evicted":     len(res.Evicted),
		"blocked":     res.Blocked,
		"failed":      res.Failed,
	}
	if res.SizeAfter > limit {
		p.logger.WithFields(fields).Info("cache_over_limit_locked")
	} else {
		p.logger.WithFields(fields).Debug("cache_evicted")
	}
	return res, nil
}

// candidate 是淘汰候选，按 LastTouchedAt 升序、文件名升序排列。
type candidate struct {
	entry cache.Entry
}

// Less 实现 llrb.Item。
func (c *candidate) Less(than llrb.Item) bool {
	other := than.(*candidate) //nolint:forcetypeassert
	if !c.entry.LastTouchedAt.Equal(other.entry.LastTouchedAt) {
		return c.entry.LastTouchedAt.Before(other.entry.LastTouchedAt)
	}
	return c.entry.FileName < other.entry.FileName
}
