// Package locks tracks which consumers currently depend on a cached file. A
// file with at least one holder is exempt from automatic eviction; explicit
// prune ignores locks. The registry is memory-resident and process-scoped.
package locks

import (
	"sort"
	"sync"
)

// Registry 维护 fileName → holder 集合的映射。集合为空时映射项会被删除，
// 因此“已加锁”恰好等价于“存在映射”。
type Registry struct {
	mu      sync.Mutex
	holders map[string]map[string]struct{}
}

// New 创建空的锁表，通常由缓存引擎持有一份并共享给调用方。
func New() *Registry {
	return &Registry{holders: make(map[string]map[string]struct{})}
}

// Lock 将 holder 加入 name 的持有者集合；重复加锁同一 holder 是幂等的。
func (r *Registry) Lock(name, holder string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.holders[name]
	if set == nil {
		set = make(map[string]struct{})
		r.holders[name] = set
	}
	set[holder] = struct{}{}
}

// Unlock 移除 holder，返回是否确实移除了一个持有者。解锁从未加锁的 holder
// 是静默的空操作，以容忍生命周期边界上的重复解锁。
func (r *Registry) Unlock(name, holder string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.holders[name]
	if !ok {
		return false
	}
	if _, held := set[holder]; !held {
		return false
	}
	delete(set, holder)
	if len(set) == 0 {
		delete(r.holders, name)
	}
	return true
}

// IsLocked 报告 name 是否至少有一个持有者。
func (r *Registry) IsLocked(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.holders[name]
	return ok
}

// Holders 返回 name 的持有者列表（已排序），未加锁时返回 nil。
func (r *Registry) Holders(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.holders[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for holder := range set {
		out = append(out, holder)
	}
	sort.Strings(out)
	return out
}

// ReleaseHolder 释放 holder 持有的全部锁，返回受影响的文件名（已排序）。
func (r *Registry) ReleaseHolder(holder string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var released []string
	for name, set := range r.holders {
		if _, held := set[holder]; !held {
			continue
		}
		delete(set, holder)
		if len(set) == 0 {
			delete(r.holders, name)
		}
		released = append(released, name)
	}
	sort.Strings(released)
	return released
}

// Snapshot 返回某一时刻 name → 持有者数量的一致性副本。
func (r *Registry) Snapshot() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.holders))
	for name, set := range r.holders {
		out[name] = len(set)
	}
	return out
}

// Len 返回当前被锁定的文件数量。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.holders)
}
