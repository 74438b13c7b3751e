package filecache

import (
	"sync"

	"github.com/any-hub/any-cache/internal/cache"
)

// PruneEvent 是 pruned 通知的负载。
type PruneEvent struct {
	URL      string
	FileName string
	Area     cache.Area
	// Removed 表示本次清理是否确实删除了文件。
	Removed bool
}

// PruneObservers 按 URL 维护 pruned 回调。通知不持久化，错过即丢弃。
type PruneObservers struct {
	mu    sync.Mutex
	next  uint64
	byURL map[string]map[uint64]func(PruneEvent)
}

// NewPruneObservers 创建空的回调表。
func NewPruneObservers() *PruneObservers {
	return &PruneObservers{byURL: make(map[string]map[uint64]func(PruneEvent))}
}

// OnPruned 注册回调并返回取消函数，取消函数可重复调用。
func (o *PruneObservers) OnPruned(url string, fn func(PruneEvent)) func() {
	o.mu.Lock()
	o.next++
	id := o.next
	subs := o.byURL[url]
	if subs == nil {
		subs = make(map[uint64]func(PruneEvent))
		o.byURL[url] = subs
	}
	subs[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			subs, ok := o.byURL[url]
			if !ok {
				return
			}
			delete(subs, id)
			if len(subs) == 0 {
				delete(o.byURL, url)
			}
		})
	}
}

// Trigger 调用 ev.URL 上注册的全部回调各一次，返回调用数量。回调在锁外执行，
// 因此可以在回调内取消订阅。
func (o *PruneObservers) Trigger(ev PruneEvent) int {
	o.mu.Lock()
	subs := o.byURL[ev.URL]
	callbacks := make([]func(PruneEvent), 0, len(subs))
	for _, fn := range subs {
		callbacks = append(callbacks, fn)
	}
	o.mu.Unlock()

	for _, fn := range callbacks {
		fn(ev)
	}
	return len(callbacks)
}

// Len 返回当前订阅总数。
func (o *PruneObservers) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, subs := range o.byURL {
		n += len(subs)
	}
	return n
}
