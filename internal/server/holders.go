package server

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/filecache"
)

// holderSubscriptions 记录 holder 对已加锁文件的 pruned 订阅。文件被显式清理后
// 自动释放该 holder 的锁并取消订阅，holder 不必再调用 DELETE /v1/locks。
type holderSubscriptions struct {
	engine *filecache.Engine
	logger *logrus.Logger

	mu   sync.Mutex
	subs map[string]map[string]func() // holder -> file name -> unsubscribe
}

func newHolderSubscriptions(engine *filecache.Engine, logger *logrus.Logger) *holderSubscriptions {
	return &holderSubscriptions{
		engine: engine,
		logger: logger,
		subs:   make(map[string]map[string]func()),
	}
}

// watch 为 (holder, name) 注册一次订阅，重复调用不会叠加。返回是否新建。
func (h *holderSubscriptions) watch(holder, rawURL, name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := h.subs[holder]
	if names == nil {
		names = make(map[string]func())
		h.subs[holder] = names
	}
	if _, ok := names[name]; ok {
		return false
	}
	names[name] = h.engine.OnPruned(rawURL, func(ev filecache.PruneEvent) {
		// 同一 URL 以不同参数清理时文件名不同，与本订阅无关
		if ev.FileName != name {
			return
		}
		h.forget(holder, name)
		released := h.engine.Unlock(name, holder)
		h.logger.WithFields(logrus.Fields{
			"action":    "lock",
			"holder":    holder,
			"file_name": name,
			"released":  released,
		}).Info("lock_released_on_prune")
	})
	return true
}

// forget 取消 (holder, name) 的订阅。
func (h *holderSubscriptions) forget(holder, name string) {
	h.mu.Lock()
	unsubscribe, ok := h.subs[holder][name]
	if ok {
		delete(h.subs[holder], name)
		if len(h.subs[holder]) == 0 {
			delete(h.subs, holder)
		}
	}
	h.mu.Unlock()
	if ok {
		unsubscribe()
	}
}

// forgetHolder 取消 holder 的全部订阅。
func (h *holderSubscriptions) forgetHolder(holder string) {
	h.mu.Lock()
	names := h.subs[holder]
	delete(h.subs, holder)
	h.mu.Unlock()
	for _, unsubscribe := range names {
		unsubscribe()
	}
}

func (h *holderSubscriptions) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, names := range h.subs {
		n += len(names)
	}
	return n
}
