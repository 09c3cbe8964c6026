// Package audit 订阅日志事件，写入结构化日志并分发到观察通道
package audit

import (
	"sync"
	"sync/atomic"

	"minidebug/internal/bus"
	"minidebug/internal/logger"
	"minidebug/pkg/domain"
)

// Source 可订阅的事件源，通常为 inspector.Inspector
type Source interface {
	AddListener(event string, fn bus.Listener) bus.ListenerID
	RemoveListener(event string, id bus.ListenerID) bool
}

// Auditor 审计观察者，负责日志条目的记录与分发
type Auditor struct {
	enabled atomic.Bool
	events  chan domain.LogEntry
	dropped atomic.Int64
	log     logger.Logger

	mu  sync.Mutex
	src Source
	id  bus.ListenerID
}

// New 创建审计员，events 为 nil 时只写日志
func New(events chan domain.LogEntry, l logger.Logger) *Auditor {
	if l == nil {
		l = logger.NewNop()
	}
	a := &Auditor{events: events, log: l}
	a.enabled.Store(true)
	return a
}

// SetEnabled 设置是否启用审计
func (a *Auditor) SetEnabled(enabled bool) {
	a.enabled.Store(enabled)
}

// Attach 订阅事件源的 logAdded 事件，重复调用会先解除旧订阅
func (a *Auditor) Attach(src Source) {
	a.Detach()
	id := src.AddListener(domain.EventLogAdded, func(payload any) {
		if e, ok := payload.(domain.LogEntry); ok {
			a.Record(e)
		}
	})
	a.mu.Lock()
	a.src, a.id = src, id
	a.mu.Unlock()
}

// Detach 解除订阅
func (a *Auditor) Detach() {
	a.mu.Lock()
	src, id := a.src, a.id
	a.src, a.id = nil, ""
	a.mu.Unlock()
	if src != nil {
		src.RemoveListener(domain.EventLogAdded, id)
	}
}

// Record 记录一条日志条目
func (a *Auditor) Record(e domain.LogEntry) {
	if !a.enabled.Load() {
		a.log.Debug("[Auditor] 审计已禁用，跳过记录", "id", e.ID)
		return
	}

	fields := []any{
		"id", e.ID,
		"url", e.URL,
		"method", e.Method,
		"transport", string(e.Transport),
		"status", e.Status,
		"elapsedMs", e.ElapsedMs,
		"phase", string(e.Phase),
	}
	if e.ConcurrencyTag > 0 {
		fields = append(fields, "tag", e.ConcurrencyTag)
	}
	if e.Status == 0 {
		a.log.Warn("[Auditor] 调用失败", append(fields, "response", e.ResponsePayload.Raw)...)
	} else {
		a.log.Info("[Auditor] 调用完成", fields...)
	}

	a.dispatch(e)
}

// Dropped 因通道已满被丢弃的条目数
func (a *Auditor) Dropped() int64 { return a.dropped.Load() }

// dispatch 分发到观察通道，通道满时丢弃
func (a *Auditor) dispatch(e domain.LogEntry) {
	if a.events == nil {
		return
	}

	select {
	case a.events <- e:
	default:
		a.dropped.Add(1)
		a.log.Warn("[Auditor] 审计事件分发通道已满，丢弃事件", "id", e.ID)
	}
}
