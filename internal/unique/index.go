// Package unique 按 URL 聚合网络请求
package unique

import (
	"sort"
	"sync"

	"minidebug/pkg/domain"
)

// Index 唯一请求索引，键为完整 URL
type Index struct {
	mu    sync.RWMutex
	items map[string]domain.UniqueRequest
}

// New 创建唯一请求索引
func New() *Index {
	return &Index{items: make(map[string]domain.UniqueRequest)}
}

// Observe 根据新日志条目更新索引，rule 为该 URL 当前的规则（可为 nil）
func (x *Index) Observe(e domain.LogEntry, rule *domain.InterceptRule) domain.UniqueRequest {
	x.mu.Lock()
	defer x.mu.Unlock()

	u, ok := x.items[e.URL]
	if !ok {
		u = domain.UniqueRequest{URL: e.URL, Method: e.Method}
	}
	u.OccurrenceCount++
	u.LastElapsedMs = e.ElapsedMs
	u.RequestIntercepted, u.ResponseIntercepted = flags(rule)

	x.items[e.URL] = u
	return u
}

// SyncRule 将规则开关同步到已存在的条目，返回该 URL 是否已有条目
func (x *Index) SyncRule(url string, rule *domain.InterceptRule) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	u, ok := x.items[url]
	if !ok {
		return false
	}
	u.RequestIntercepted, u.ResponseIntercepted = flags(rule)
	x.items[url] = u
	return true
}

func flags(rule *domain.InterceptRule) (bool, bool) {
	if rule == nil {
		return false, false
	}
	return rule.RequestLive, rule.ResponseLive
}

// Get 查询单个条目
func (x *Index) Get(url string) (domain.UniqueRequest, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	u, ok := x.items[url]
	return u, ok
}

// Snapshot 返回索引副本
func (x *Index) Snapshot() map[string]domain.UniqueRequest {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make(map[string]domain.UniqueRequest, len(x.items))
	for k, v := range x.items {
		out[k] = v
	}
	return out
}

// List 返回按 URL 排序的条目
func (x *Index) List() []domain.UniqueRequest {
	snap := x.Snapshot()
	out := make([]domain.UniqueRequest, 0, len(snap))
	for _, v := range snap {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Len 条目数量
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.items)
}

// Clear 清空索引
func (x *Index) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.items = make(map[string]domain.UniqueRequest)
}
