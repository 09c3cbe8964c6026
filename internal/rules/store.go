// Package rules 按精确 URL 保存拦截规则
package rules

import (
	"sort"
	"sync"

	"minidebug/pkg/domain"
	"minidebug/pkg/rulespec"
)

// Stats 规则查询统计
type Stats struct {
	Total   int64            `json:"total"`   // 查询总次数
	Matched int64            `json:"matched"` // 命中规则的次数
	ByURL   map[string]int64 `json:"byUrl"`   // 各 URL 命中次数
}

// Store 规则存储，键为完整 URL 字符串，不做归一化
type Store struct {
	mu      sync.RWMutex
	rules   map[string]domain.InterceptRule
	total   int64
	matched int64
	byURL   map[string]int64
}

// New 创建规则存储
func New() *Store {
	return &Store{
		rules: make(map[string]domain.InterceptRule),
		byURL: make(map[string]int64),
	}
}

// update 在锁内修改规则，修改后为空则删除
func (s *Store) update(url, method string, fn func(r *domain.InterceptRule)) domain.InterceptRule {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[url]
	if !ok {
		r = domain.InterceptRule{URL: url}
	}
	if method != "" {
		r.Method = method
	}
	fn(&r)

	if r.IsEmpty() {
		delete(s.rules, url)
	} else {
		s.rules[url] = r
	}
	return r
}

// SetRequestLive 开关请求实时拦截，返回更新后的规则
func (s *Store) SetRequestLive(url, method string, enabled bool) domain.InterceptRule {
	return s.update(url, method, func(r *domain.InterceptRule) { r.RequestLive = enabled })
}

// SetResponseLive 开关响应实时拦截，返回更新后的规则
func (s *Store) SetResponseLive(url, method string, enabled bool) domain.InterceptRule {
	return s.update(url, method, func(r *domain.InterceptRule) { r.ResponseLive = enabled })
}

// SetRequestTamper 设置静态请求篡改，nil 表示移除
func (s *Store) SetRequestTamper(url, method string, t *rulespec.RequestTamper) domain.InterceptRule {
	return s.update(url, method, func(r *domain.InterceptRule) { r.RequestTamper = t })
}

// SetResponseTamper 设置静态响应篡改，nil 表示移除
func (s *Store) SetResponseTamper(url, method string, t *rulespec.ResponseTamper) domain.InterceptRule {
	return s.update(url, method, func(r *domain.InterceptRule) { r.ResponseTamper = t })
}

// Lookup 查询规则并计入统计
func (s *Store) Lookup(url string) (domain.InterceptRule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	r, ok := s.rules[url]
	if ok {
		s.matched++
		s.byURL[url]++
	}
	return r, ok
}

// Get 查询规则，不计入统计
func (s *Store) Get(url string) (domain.InterceptRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[url]
	return r, ok
}

// Has 是否存在规则
func (s *Store) Has(url string) bool {
	_, ok := s.Get(url)
	return ok
}

// All 返回按 URL 排序的规则副本
func (s *Store) All() []domain.InterceptRule {
	s.mu.RLock()
	out := make([]domain.InterceptRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Len 规则数量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// Clear 清空所有规则
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = make(map[string]domain.InterceptRule)
}

// GetStats 获取查询统计
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byURL := make(map[string]int64, len(s.byURL))
	for k, v := range s.byURL {
		byURL[k] = v
	}
	return Stats{Total: s.total, Matched: s.matched, ByURL: byURL}
}

// ResetStats 重置统计
func (s *Store) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = 0
	s.matched = 0
	s.byURL = make(map[string]int64)
}
