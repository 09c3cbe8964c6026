// Package bus 提供进程内的事件分发
package bus

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"minidebug/internal/logger"
)

// Listener 事件监听函数
type Listener func(payload any)

// ListenerID 监听器标识，用于移除监听
type ListenerID string

type listener struct {
	id ListenerID
	fn Listener
}

type pending struct {
	event   string
	payload any
}

// Bus 事件总线
//
// Enqueue 可以在调用方持有自身锁时调用，保证事件顺序与状态变更顺序一致；
// Drain 必须在释放锁之后调用，监听函数在总线锁之外执行。
// 同一时刻只有一个协程负责投递，其余协程入队后直接返回。
type Bus struct {
	mu        sync.Mutex
	listeners map[string][]listener
	queue     []pending
	draining  bool
	log       logger.Logger
}

// New 创建事件总线
func New(l logger.Logger) *Bus {
	if l == nil {
		l = logger.NewNop()
	}
	return &Bus{
		listeners: make(map[string][]listener),
		log:       l,
	}
}

// AddListener 注册监听器，按注册顺序投递
func (b *Bus) AddListener(event string, fn Listener) ListenerID {
	id := ListenerID(uuid.NewString())
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[event] = append(b.listeners[event], listener{id: id, fn: fn})
	return id
}

// RemoveListener 移除监听器，返回是否找到
func (b *Bus) RemoveListener(event string, id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ls := b.listeners[event]
	for i, l := range ls {
		if l.id != id {
			continue
		}
		// 复制一份，正在投递的快照不受影响
		next := make([]listener, 0, len(ls)-1)
		next = append(next, ls[:i]...)
		next = append(next, ls[i+1:]...)
		if len(next) == 0 {
			delete(b.listeners, event)
		} else {
			b.listeners[event] = next
		}
		return true
	}
	return false
}

// ListenerCount 指定事件的监听器数量
func (b *Bus) ListenerCount(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[event])
}

// Enqueue 事件入队，不投递
func (b *Bus) Enqueue(event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, pending{event: event, payload: payload})
}

// Drain 按入队顺序投递所有待处理事件
func (b *Bus) Drain() {
	b.mu.Lock()
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true

	for len(b.queue) > 0 {
		p := b.queue[0]
		b.queue[0] = pending{}
		b.queue = b.queue[1:]
		ls := b.listeners[p.event]
		b.mu.Unlock()

		for _, l := range ls {
			b.deliver(l, p)
		}

		b.mu.Lock()
	}

	b.queue = nil
	b.draining = false
	b.mu.Unlock()
}

// Emit 入队并立即投递
func (b *Bus) Emit(event string, payload any) {
	b.Enqueue(event, payload)
	b.Drain()
}

// Reset 移除所有监听器并丢弃未投递事件
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[string][]listener)
	b.queue = nil
}

func (b *Bus) deliver(l listener, p pending) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("事件监听器异常", "event", p.event, "listener", string(l.id), "panic", fmt.Sprint(r))
		}
	}()
	l.fn(p.payload)
}
