package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"minidebug/internal/logger"
	"minidebug/pkg/domain"
	"minidebug/pkg/rulespec"

	"github.com/tidwall/gjson"
)

// RequestEditor 请求实时编辑器，必须且只能调用一次 confirm 或 cancel
// confirm(nil) 表示确认但不修改
type RequestEditor interface {
	OpenRequestEditor(info domain.RequestInfo, confirm func(*rulespec.RequestEdit), cancel func())
}

// ResponseEditor 响应实时编辑器，必须且只能调用一次 confirm 或 cancel
type ResponseEditor interface {
	OpenResponseEditor(rctx domain.ResponseContext, original domain.Payload, confirm func(json.RawMessage), cancel func())
}

// RequestEditorFunc 函数形式的请求编辑器
type RequestEditorFunc func(info domain.RequestInfo, confirm func(*rulespec.RequestEdit), cancel func())

// OpenRequestEditor 实现 RequestEditor
func (f RequestEditorFunc) OpenRequestEditor(info domain.RequestInfo, confirm func(*rulespec.RequestEdit), cancel func()) {
	f(info, confirm, cancel)
}

// ResponseEditorFunc 函数形式的响应编辑器
type ResponseEditorFunc func(rctx domain.ResponseContext, original domain.Payload, confirm func(json.RawMessage), cancel func())

// OpenResponseEditor 实现 ResponseEditor
func (f ResponseEditorFunc) OpenResponseEditor(rctx domain.ResponseContext, original domain.Payload, confirm func(json.RawMessage), cancel func()) {
	f(rctx, original, confirm, cancel)
}

// callbackGuard 保证编辑器回调只生效一次
type callbackGuard struct {
	once    sync.Once
	expired atomic.Bool
	log     logger.Logger
}

// fire 执行首次回调，之后的回调视为违反约定
func (g *callbackGuard) fire(kind string, fn func()) {
	fired := false
	g.once.Do(func() {
		fired = true
		fn()
	})
	if fired {
		return
	}
	if g.expired.Load() {
		g.log.Warn("[Processor] 调用已结束，忽略编辑器回调", "callback", kind)
		return
	}
	g.log.Error("[Processor] 编辑器重复回调，已忽略", "callback", kind, "error", domain.ErrEditorContract.Error())
}

// expire 调用方不再等待，后续回调全部忽略
func (g *callbackGuard) expire() {
	g.expired.Store(true)
	g.once.Do(func() {})
}

type requestDecision struct {
	edit      *rulespec.RequestEdit
	cancelled bool
}

// EditRequest 交给请求编辑器处理，取消时返回 ErrRequestCancelled
// 编辑器不存在时直接放行；编辑器不回调时阻塞到 ctx 结束
func (p *Processor) EditRequest(ctx context.Context, info domain.RequestInfo) (*rulespec.RequestEdit, error) {
	ed := p.requestEditor()
	if ed == nil {
		return nil, nil
	}

	ch := make(chan requestDecision, 1)
	g := &callbackGuard{log: p.log.With("url", info.URL, "stage", "request")}
	confirm := func(edit *rulespec.RequestEdit) {
		g.fire("confirm", func() { ch <- requestDecision{edit: edit} })
	}
	cancel := func() {
		g.fire("cancel", func() { ch <- requestDecision{cancelled: true} })
	}

	go p.openEditor("request", info.URL, func() { ed.OpenRequestEditor(info, confirm, cancel) }, cancel)

	select {
	case d := <-ch:
		if d.cancelled {
			p.log.Info("[Processor] 请求编辑已取消", "url", info.URL, "method", info.Method)
			return nil, fmt.Errorf("%s %s: %w", info.Method, info.URL, domain.ErrRequestCancelled)
		}
		p.log.Info("[Processor] 请求编辑已确认", "url", info.URL, "modified", !d.edit.IsEmpty())
		return d.edit, nil
	case <-ctx.Done():
		g.expire()
		p.log.Warn("[Processor] 等待请求编辑时调用结束", "url", info.URL, "error", ctx.Err().Error())
		return nil, ctx.Err()
	}
}

type responseDecision struct {
	body      json.RawMessage
	cancelled bool
}

// EditResponse 交给响应编辑器处理，返回编辑后的 JSON；取消或跳过时返回 nil
// 原始负载不是 JSON 时不打开编辑器
func (p *Processor) EditResponse(ctx context.Context, rctx domain.ResponseContext, original domain.Payload) (json.RawMessage, error) {
	ed := p.responseEditor()
	if ed == nil {
		return nil, nil
	}
	if !original.IsJSON() {
		p.log.Debug("[Processor] 响应不是 JSON，跳过编辑", "url", rctx.URL, "kind", string(original.Kind))
		return nil, nil
	}

	ch := make(chan responseDecision, 1)
	g := &callbackGuard{log: p.log.With("url", rctx.URL, "stage", "response")}
	confirm := func(body json.RawMessage) {
		g.fire("confirm", func() {
			if !gjson.ValidBytes(body) {
				p.log.Error("[Processor] 编辑器确认了非法 JSON，按取消处理", "url", rctx.URL, "error", domain.ErrEditorContract.Error())
				ch <- responseDecision{cancelled: true}
				return
			}
			ch <- responseDecision{body: append(json.RawMessage(nil), body...)}
		})
	}
	cancel := func() {
		g.fire("cancel", func() { ch <- responseDecision{cancelled: true} })
	}

	go p.openEditor("response", rctx.URL, func() { ed.OpenResponseEditor(rctx, original, confirm, cancel) }, cancel)

	select {
	case d := <-ch:
		if d.cancelled {
			p.log.Info("[Processor] 响应编辑已取消，返回原始响应", "url", rctx.URL)
			return nil, nil
		}
		p.log.Info("[Processor] 响应编辑已确认", "url", rctx.URL)
		return d.body, nil
	case <-ctx.Done():
		g.expire()
		p.log.Warn("[Processor] 等待响应编辑时调用结束", "url", rctx.URL, "error", ctx.Err().Error())
		return nil, ctx.Err()
	}
}

// openEditor 打开编辑器，编辑器 panic 时按取消处理
func (p *Processor) openEditor(stage, url string, open func(), cancel func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("[Processor] 编辑器异常，按取消处理", "stage", stage, "url", url, "panic", fmt.Sprint(r))
			cancel()
		}
	}()
	open()
}
