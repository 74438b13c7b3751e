package filecache

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/cache"
)

// FlushResult 报告 Flush 时每个存储区是否确实删除了内容。
type FlushResult struct {
	PermanentDirFlushed bool `json:"permanentDirFlushed"`
	CacheDirFlushed     bool `json:"cacheDirFlushed"`
}

// Prune 删除 (url, opts) 对应的文件，忽略锁状态，并通知该 URL 的全部 pruned
// 回调。opts 必须与缓存时一致，否则计算出的文件名不同。文件不存在返回 false。
func (e *Engine) Prune(ctx context.Context, rawURL string, opts ResolveOptions) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	name, err := e.FileName(rawURL, opts)
	if err != nil {
		return false, err
	}
	area := opts.Area()

	removed, err := e.store.Remove(area, name)
	if err != nil {
		return false, err
	}
	if removed {
		e.stats.pruned.Add(1)
	}

	notified := e.observers.Trigger(PruneEvent{
		URL:      rawURL,
		FileName: name,
		Area:     area,
		Removed:  removed,
	})
	e.logger.WithFields(entryFields("prune", area, name, rawURL)).WithFields(logrus.Fields{
		"removed":  removed,
		"notified": notified,
		"locked":   e.locks.IsLocked(name),
	}).Info("cache_pruned")
	return removed, nil
}

// Flush 整体删除 permanent 与 cache 两个存储区，锁状态不影响删除。
func (e *Engine) Flush(ctx context.Context) (FlushResult, error) {
	var res FlushResult
	if err := ctx.Err(); err != nil {
		return res, err
	}

	var err error
	if res.PermanentDirFlushed, err = e.store.RemoveArea(cache.AreaPermanent); err != nil {
		return res, err
	}
	if res.CacheDirFlushed, err = e.store.RemoveArea(cache.AreaCache); err != nil {
		return res, err
	}

	e.logger.WithFields(logrus.Fields{
		"action":                "flush",
		"permanent_dir_flushed": res.PermanentDirFlushed,
		"cache_dir_flushed":     res.CacheDirFlushed,
	}).Info("cache_flushed")
	return res, nil
}
