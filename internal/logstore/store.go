// Package logstore 保存最近的网络日志，超出容量时淘汰最旧的条目
package logstore

import (
	"sync"

	"minidebug/pkg/domain"
)

// DefaultCapacity 默认日志容量
const DefaultCapacity = 200

// Store 固定容量的环形日志缓冲
type Store struct {
	mu         sync.RWMutex
	entries    []domain.LogEntry
	capacity   int
	head       int   // 下一次写入位置
	totalAdded int64 // 累计写入条数，单调递增
}

// New 创建日志缓冲，capacity <= 0 时使用默认容量
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		entries:  make([]domain.LogEntry, 0, capacity),
		capacity: capacity,
	}
}

// Append 写入一条日志，已满时淘汰最旧的一条
func (s *Store) Append(e domain.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) < s.capacity {
		s.entries = append(s.entries, e)
	} else {
		s.entries[s.head] = e
	}
	s.head = (s.head + 1) % s.capacity
	s.totalAdded++
}

// All 按写入顺序返回全部日志副本
func (s *Store) All() []domain.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderedLocked()
}

// Since 返回位置 pos 之后写入的日志以及当前位置；已被淘汰的部分会被跳过
func (s *Store) Since(pos int64) ([]domain.LogEntry, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pos >= s.totalAdded {
		return []domain.LogEntry{}, s.totalAdded
	}
	all := s.orderedLocked()
	oldest := s.totalAdded - int64(len(all))
	if pos < oldest {
		pos = oldest
	}
	return all[pos-oldest:], s.totalAdded
}

func (s *Store) orderedLocked() []domain.LogEntry {
	out := make([]domain.LogEntry, 0, len(s.entries))
	if len(s.entries) < s.capacity {
		return append(out, s.entries...)
	}
	out = append(out, s.entries[s.head:]...)
	return append(out, s.entries[:s.head]...)
}

// Len 当前日志条数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Capacity 容量
func (s *Store) Capacity() int { return s.capacity }

// Clear 清空日志，位置计数不回退
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make([]domain.LogEntry, 0, s.capacity)
	s.head = 0
}
