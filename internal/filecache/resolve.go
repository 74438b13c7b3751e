package filecache

import (
	"context"
	"errors"
	"io/fs"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/fetch"
)

// errResolveAborted 交给在首个调用方异常退出时仍在等待的调用方。
var errResolveAborted = errors.New("resolve aborted")

// Resolve 返回 (url, opts) 对应的本地文件路径。
//
// 先后在 permanent 区与 cache 区查找同名文件，任一命中即直接返回并刷新
// LastTouchedAt；两区均未命中时把远端资源下载到暂存目录，成功后原子地发布到
// opts 指定的存储区，写入 cache 区后同步执行一次淘汰检查。
// 同一 fileName 的并发调用（不论目标区）只会触发一次下载，后到者等待首个结果。
// 调用方需自行完成 URL 协议/主机校验；失败不会自动重试。
func (e *Engine) Resolve(ctx context.Context, rawURL string, opts ResolveOptions) (string, error) {
	e.stats.requested.Add(1)

	name, err := e.FileName(rawURL, opts)
	if err != nil {
		e.stats.failed.Add(1)
		return "", err
	}
	area := opts.Area()

	e.mu.Lock()
	if p, ok := e.inflight[name]; ok {
		e.mu.Unlock()
		e.stats.coalesced.Add(1)
		select {
		case <-p.done:
			return p.path, p.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	p := &pending{area: area, done: make(chan struct{}), err: errResolveAborted}
	e.inflight[name] = p
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inflight, name)
		e.mu.Unlock()
		close(p.done)
	}()

	p.path, p.err = e.resolve(ctx, rawURL, area, name, opts)
	if p.err != nil {
		e.stats.failed.Add(1)
	}
	return p.path, p.err
}

func (e *Engine) resolve(ctx context.Context, rawURL string, area cache.Area, name string, opts ResolveOptions) (string, error) {
	entry, found, err := e.lookup(name)
	if err != nil {
		return "", err
	}
	if found {
		e.stats.hits.Add(1)
		if touchErr := e.store.Touch(entry.Area, name, e.now()); touchErr != nil {
			e.logger.WithError(touchErr).WithFields(entryFields("resolve", entry.Area, name, rawURL)).
				Warn("cache_touch_failed")
		}
		e.logger.WithFields(entryFields("resolve", entry.Area, name, rawURL)).
			WithField("cache_hit", true).Debug("cache_hit")
		return entry.Path, nil
	}

	entry, err = e.download(ctx, rawURL, area, name, opts)
	if err != nil {
		e.logger.WithError(err).WithFields(entryFields("resolve", area, name, rawURL)).
			WithField("cache_hit", false).Warn("cache_fetch_failed")
		return "", err
	}
	e.stats.downloads.Add(1)
	e.logger.WithFields(entryFields("resolve", area, name, rawURL)).WithFields(logrus.Fields{
		"cache_hit":  false,
		"size_bytes": entry.SizeBytes,
	}).Info("cache_stored")

	if area == cache.AreaCache {
		e.evictAfterWrite(ctx, name)
	}
	return entry.Path, nil
}

// lookup 按 permanent、cache 的顺序查找 name，同一文件名只会存在于其中一个区。
func (e *Engine) lookup(name string) (cache.Entry, bool, error) {
	for _, area := range cache.Areas() {
		entry, err := e.store.Stat(area, name)
		if err == nil {
			return entry, true, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return cache.Entry{}, false, err
		}
	}
	return cache.Entry{}, false, nil
}

// download 流式写入暂存文件后再发布；任何失败都不会在最终文件名下留下部分内容。
func (e *Engine) download(ctx context.Context, rawURL string, area cache.Area, name string, opts ResolveOptions) (cache.Entry, error) {
	tmp, err := e.store.CreateTemp()
	if err != nil {
		return cache.Entry{}, err
	}
	tmpPath := tmp.Name()

	_, err = e.fetcher.Download(ctx, rawURL, opts.Headers, tmp)
	closeErr := tmp.Close()
	if err != nil {
		e.store.Discard(tmpPath)
		var fetchErr *fetch.FetchError
		if errors.As(err, &fetchErr) {
			return cache.Entry{}, err
		}
		return cache.Entry{}, &cache.StorageError{Op: "write", Path: tmpPath, Err: err}
	}
	if closeErr != nil {
		e.store.Discard(tmpPath)
		return cache.Entry{}, &cache.StorageError{Op: "close", Path: tmpPath, Err: closeErr}
	}

	return e.store.Commit(tmpPath, area, name)
}

// evictAfterWrite 在新文件落入 cache 区后执行淘汰。刚写入的文件与仍在下载中的
// 文件不参与本轮淘汰；淘汰失败只记录日志，不影响本次写入结果。
func (e *Engine) evictAfterWrite(ctx context.Context, written string) {
	e.evictMu.Lock()
	defer e.evictMu.Unlock()

	protect := append(e.inflightNames(cache.AreaCache), written)
	res, err := e.evictor.MaybeEvict(ctx, protect...)
	e.stats.evicted.Add(int64(len(res.Evicted)))
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"action":    "evict",
			"file_name": written,
		}).Warn("evict_failed")
	}
}

func (e *Engine) inflightNames(area cache.Area) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.inflight))
	for name, p := range e.inflight {
		if p.area == area {
			names = append(names, name)
		}
	}
	return names
}
