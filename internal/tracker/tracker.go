// Package tracker 待处理事务登记表，按 ID 存取并可按超时清理
package tracker

import (
	"sort"
	"sync"
	"time"

	"minidebug/internal/logger"
)

// Entry 事务追踪条目
type Entry[T any] struct {
	ID        string    // 事务唯一ID
	StartTime time.Time // 登记时间
	Data      T         // 关联的业务数据
}

// ExpireFunc 条目过期被清理时的回调
type ExpireFunc[T any] func(id string, data T)

// Options 追踪器配置
type Options[T any] struct {
	Timeout  time.Duration // <= 0 时不过期，也不启动清理协程
	Interval time.Duration // 清理周期，默认取 Timeout 与 30s 中较小者
	OnExpire ExpireFunc[T]
	Logger   logger.Logger
}

// Tracker 事务追踪器，保存等待外部决策的调用上下文
type Tracker[T any] struct {
	mu       sync.Mutex
	entries  map[string]*Entry[T]
	timeout  time.Duration
	onExpire ExpireFunc[T]
	log      logger.Logger
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New 创建追踪器
func New[T any](opts Options[T]) *Tracker[T] {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	t := &Tracker[T]{
		entries:  make(map[string]*Entry[T]),
		timeout:  opts.Timeout,
		onExpire: opts.OnExpire,
		log:      opts.Logger,
		done:     make(chan struct{}),
	}
	if t.timeout > 0 {
		interval := opts.Interval
		if interval <= 0 {
			interval = min(t.timeout, 30*time.Second)
		}
		t.wg.Add(1)
		go t.cleanupLoop(interval)
	}
	return t
}

// Set 存入事务数据，同 ID 覆盖
func (t *Tracker[T]) Set(id string, data T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[id] = &Entry[T]{ID: id, StartTime: time.Now(), Data: data}
}

// Get 获取并移除事务数据
func (t *Tracker[T]) Get(id string) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		var zero T
		return zero, false
	}
	delete(t.entries, id)
	return e.Data, true
}

// Peek 仅获取事务数据而不移除
func (t *Tracker[T]) Peek(id string) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		var zero T
		return zero, false
	}
	return e.Data, true
}

// Delete 删除事务数据
func (t *Tracker[T]) Delete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Len 当前条目数
func (t *Tracker[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// List 按登记时间升序返回条目快照
func (t *Tracker[T]) List() []Entry[T] {
	t.mu.Lock()
	out := make([]Entry[T], 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	t.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Range 遍历条目快照，fn 返回 false 时停止
func (t *Tracker[T]) Range(fn func(id string, data T) bool) {
	for _, e := range t.List() {
		if !fn(e.ID, e.Data) {
			return
		}
	}
}

// Stop 停止清理协程，可重复调用
func (t *Tracker[T]) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
	t.wg.Wait()
}

// cleanupLoop 定期清理过期事务
func (t *Tracker[T]) cleanupLoop(interval time.Duration) {
	defer t.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case now := <-ticker.C:
			t.expire(now)
		}
	}
}

// expire 移除超时条目，回调在锁外执行
func (t *Tracker[T]) expire(now time.Time) {
	var expired []*Entry[T]
	t.mu.Lock()
	for id, e := range t.entries {
		if now.Sub(e.StartTime) > t.timeout {
			delete(t.entries, id)
			expired = append(expired, e)
		}
	}
	t.mu.Unlock()

	for _, e := range expired {
		t.log.Debug("[Tracker] 清理过期事务", "id", e.ID, "startTime", e.StartTime)
		if t.onExpire != nil {
			t.onExpire(e.ID, e.Data)
		}
	}
}
