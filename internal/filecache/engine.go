package filecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tunabay/go-infounit"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/evict"
	"github.com/any-hub/any-cache/internal/fetch"
	"github.com/any-hub/any-cache/internal/locks"
	"github.com/any-hub/any-cache/internal/naming"
)

// Fetcher 把远端资源写入 dst。约定：写入端失败原样返回，其余失败返回
// *fetch.FetchError。
type Fetcher interface {
	Download(ctx context.Context, rawURL string, headers http.Header, dst io.Writer) (int64, error)
}

// Config 汇总构造 Engine 所需的依赖。
type Config struct {
	// StoragePath 是 FileDirName 的父目录。
	StoragePath string
	Options     Options
	// Fetcher 为空时使用 fetch.New(nil)。
	Fetcher Fetcher
	Logger  *logrus.Logger
	// Now 用于命中时刷新 LastTouchedAt，测试可注入。
	Now func() time.Time
}

// Engine 是文件缓存的顶层对象，持有目录管理器、锁表、淘汰策略、
// 进行中下载表与 pruned 回调表。整个进程创建一份并共享。
type Engine struct {
	store     *cache.Manager
	locks     *locks.Registry
	evictor   *evict.Policy
	fetcher   Fetcher
	observers *PruneObservers
	logger    *logrus.Logger
	now       func() time.Time
	fileDir   string

	opts atomic.Pointer[Options]

	mu       sync.Mutex
	inflight map[string]*pending

	// evictMu 串行化淘汰，避免并发写入后重复删除。
	evictMu sync.Mutex

	stats counters
}

// pending 是同一 fileName 上进行中的解析，后到的调用方等待 done。
type pending struct {
	area cache.Area
	done chan struct{}
	path string
	err  error
}

// New 创建 Engine，根目录为 StoragePath/FileDirName，并清理遗留的临时文件。
func New(cfg Config) (*Engine, error) {
	if cfg.StoragePath == "" {
		return nil, errors.New("storage path required")
	}
	opts := cfg.Options.withDefaults()

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	store, err := cache.NewManager(filepath.Join(cfg.StoragePath, opts.FileDirName))
	if err != nil {
		return nil, err
	}

	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = fetch.New(nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		store:     store,
		locks:     locks.New(),
		fetcher:   fetcher,
		observers: NewPruneObservers(),
		logger:    logger,
		now:       now,
		fileDir:   opts.FileDirName,
		inflight:  make(map[string]*pending),
	}
	e.opts.Store(&opts)
	e.evictor = evict.NewPolicy(store, e.locks, e.pruneTriggerLimit, logger)

	if removed, err := store.PurgeStaging(); err != nil {
		logger.WithError(err).WithField("action", "startup").Warn("staging_purge_failed")
	} else if removed > 0 {
		logger.WithFields(logrus.Fields{"action": "startup", "removed": removed}).Info("staging_purged")
	}

	return e, nil
}

// Options 返回当前配置快照。
func (e *Engine) Options() Options {
	return *e.opts.Load()
}

// SetOptions 整体替换配置。FileDirName 的变化只在下次启动生效。
func (e *Engine) SetOptions(opts Options) {
	next := opts.withDefaults()
	if next.FileDirName != e.fileDir {
		e.logger.WithFields(logrus.Fields{
			"action":  "options_reload",
			"current": e.fileDir,
			"request": next.FileDirName,
		}).Warn("file_dir_name_requires_restart")
		next.FileDirName = e.fileDir
	}
	e.opts.Store(&next)
	e.logger.WithFields(logrus.Fields{
		"action":          "options_reload",
		"prune_limit":     fmt.Sprintf("%.1S", next.CachePruneTriggerLimit),
		"valid_protocols": next.ValidProtocols,
		"host_whitelist":  next.FileHostWhitelist,
	}).Info("options_updated")
}

func (e *Engine) pruneTriggerLimit() infounit.ByteCount {
	return e.opts.Load().CachePruneTriggerLimit
}

// Root 返回缓存根目录（StoragePath/FileDirName）。
func (e *Engine) Root() string {
	return e.store.Root()
}

// Store 暴露目录管理器，供诊断接口读取。
func (e *Engine) Store() *cache.Manager {
	return e.store
}

// FileName 计算 (url, opts) 对应的本地文件名。
func (e *Engine) FileName(rawURL string, opts ResolveOptions) (string, error) {
	return naming.ComputeFileName(rawURL, opts.naming())
}

// Lock 声明 holder 依赖 name，加锁期间该文件不会被自动淘汰。
func (e *Engine) Lock(name, holder string) {
	e.locks.Lock(name, holder)
}

// Unlock 释放 holder 对 name 的依赖，未持有时静默返回 false。
func (e *Engine) Unlock(name, holder string) bool {
	return e.locks.Unlock(name, holder)
}

// IsLocked 报告 name 是否被任一 holder 锁定。
func (e *Engine) IsLocked(name string) bool {
	return e.locks.IsLocked(name)
}

// Holders 返回 name 的全部持有者。
func (e *Engine) Holders(name string) []string {
	return e.locks.Holders(name)
}

// ReleaseHolder 释放 holder 的全部锁，返回受影响的文件名。
func (e *Engine) ReleaseHolder(holder string) []string {
	return e.locks.ReleaseHolder(holder)
}

// OnPruned 注册 url 的 pruned 回调，返回取消函数。
func (e *Engine) OnPruned(url string, fn func(PruneEvent)) func() {
	return e.observers.OnPruned(url, fn)
}

// Entries 列出存储区当前的全部条目。
func (e *Engine) Entries(area cache.Area) ([]cache.Entry, error) {
	return e.store.Entries(area)
}

func entryFields(action string, area cache.Area, name, url string) logrus.Fields {
	return logrus.Fields{
		"action":    action,
		"area":      string(area),
		"file_name": name,
		"url":       url,
	}
}
