// Package approval 无界面的实时编辑器：编辑请求进入待审批队列，由控制接口确认或拒绝
package approval

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"minidebug/internal/logger"
	"minidebug/internal/processor"
	"minidebug/internal/tracker"
	"minidebug/internal/transformer"
	"minidebug/pkg/domain"
	"minidebug/pkg/rulespec"
)

// Stage 审批阶段
type Stage string

const (
	StageRequest  Stage = "request"
	StageResponse Stage = "response"
)

// DefaultCapacity 默认的待审批上限
const DefaultCapacity = 32

// PendingItem 一个等待审批的编辑
type PendingItem struct {
	ID        string            `json:"id"`
	Stage     Stage             `json:"stage"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Transport domain.Transport  `json:"transport"`
	Status    int               `json:"status,omitempty"` // 仅响应阶段
	Headers   map[string]string `json:"headers,omitempty"`
	Payload   domain.Payload    `json:"payload"`
	CreatedAt time.Time         `json:"createdAt"`
}

// ResponseDecision 响应审批内容：Body 整体替换，否则对原始响应执行 Patches；两者都为空时原样确认
type ResponseDecision struct {
	Body    json.RawMessage        `json:"body,omitempty"`
	Patches []rulespec.JSONPatchOp `json:"patches,omitempty"`
}

// Options 队列配置
type Options struct {
	Capacity int           // 待审批上限，超出时不修改直接放行
	Timeout  time.Duration // 审批超时，超时按拒绝处理；<= 0 不超时
	Logger   logger.Logger
}

type pending struct {
	item        PendingItem
	confirmReq  func(*rulespec.RequestEdit)
	confirmResp func(json.RawMessage)
	cancel      func()
}

// Queue 实现 processor.RequestEditor 和 processor.ResponseEditor
type Queue struct {
	items    *tracker.Tracker[*pending]
	notify   chan PendingItem
	capacity int
	log      logger.Logger
}

var (
	_ processor.RequestEditor  = (*Queue)(nil)
	_ processor.ResponseEditor = (*Queue)(nil)
)

// New 创建审批队列
func New(opts Options) *Queue {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	q := &Queue{
		notify:   make(chan PendingItem, opts.Capacity),
		capacity: opts.Capacity,
		log:      opts.Logger,
	}
	q.items = tracker.New(tracker.Options[*pending]{
		Timeout: opts.Timeout,
		Logger:  opts.Logger,
		OnExpire: func(id string, p *pending) {
			q.log.Warn("[Approval] 审批超时，按拒绝处理", "id", id, "url", p.item.URL, "stage", string(p.item.Stage))
			p.cancel()
		},
	})
	return q
}

// OpenRequestEditor 登记请求审批项
func (q *Queue) OpenRequestEditor(info domain.RequestInfo, confirm func(*rulespec.RequestEdit), cancel func()) {
	item := PendingItem{
		Stage:     StageRequest,
		URL:       info.URL,
		Method:    info.Method,
		Transport: info.Transport,
		Headers:   info.Headers,
		Payload:   info.Body,
	}
	if !q.enqueue(item, &pending{confirmReq: confirm, cancel: cancel}) {
		confirm(nil)
	}
}

// OpenResponseEditor 登记响应审批项
func (q *Queue) OpenResponseEditor(rctx domain.ResponseContext, original domain.Payload, confirm func(json.RawMessage), cancel func()) {
	item := PendingItem{
		Stage:     StageResponse,
		URL:       rctx.URL,
		Method:    rctx.Method,
		Transport: rctx.Transport,
		Status:    rctx.Status,
		Payload:   original,
	}
	// 响应阶段取消即返回原始响应
	if !q.enqueue(item, &pending{confirmResp: confirm, cancel: cancel}) {
		cancel()
	}
}

// enqueue 登记审批项，队列已满时返回 false
func (q *Queue) enqueue(item PendingItem, p *pending) bool {
	if q.items.Len() >= q.capacity {
		q.log.Warn("[Approval] 待审批队列已满，直接放行", "url", item.URL, "stage", string(item.Stage))
		return false
	}
	item.ID = uuid.New().String()
	item.CreatedAt = time.Now()
	p.item = item
	q.items.Set(item.ID, p)
	q.log.Info("[Approval] 新的待审批项", "id", item.ID, "url", item.URL, "stage", string(item.Stage))

	select {
	case q.notify <- item:
	default:
		q.log.Debug("[Approval] 通知通道已满，丢弃通知", "id", item.ID)
	}
	return true
}

// Notify 新审批项通知，通道满时丢弃
func (q *Queue) Notify() <-chan PendingItem { return q.notify }

// List 按创建时间返回全部待审批项
func (q *Queue) List() []PendingItem {
	entries := q.items.List()
	out := make([]PendingItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Data.item)
	}
	return out
}

// Len 待审批项数量
func (q *Queue) Len() int { return q.items.Len() }

// lookup 检查审批项存在且阶段匹配
func (q *Queue) lookup(id string, stage Stage) (*pending, error) {
	p, ok := q.items.Peek(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrPendingNotFound)
	}
	if p.item.Stage != stage {
		return nil, fmt.Errorf("%s is %s, not %s: %w", id, p.item.Stage, stage, domain.ErrStageMismatch)
	}
	return p, nil
}

// take 取出审批项，并发审批时只有一方成功
func (q *Queue) take(id string) (*pending, error) {
	p, ok := q.items.Get(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrPendingNotFound)
	}
	return p, nil
}

// ApproveRequest 确认请求审批项，edit 为 nil 表示不修改
func (q *Queue) ApproveRequest(id string, edit *rulespec.RequestEdit) error {
	if _, err := q.lookup(id, StageRequest); err != nil {
		return err
	}
	p, err := q.take(id)
	if err != nil {
		return err
	}
	q.log.Info("[Approval] 请求已确认", "id", id, "url", p.item.URL, "modified", !edit.IsEmpty())
	p.confirmReq(edit)
	return nil
}

// ApproveResponse 确认响应审批项；JSON 非法时返回 ErrInvalidJSON，审批项保持待处理
func (q *Queue) ApproveResponse(id string, d ResponseDecision) error {
	p, err := q.lookup(id, StageResponse)
	if err != nil {
		return err
	}

	body, err := q.resolveBody(p.item.Payload, d)
	if err != nil {
		q.log.Warn("[Approval] 响应内容非法，保持待审批", "id", id, "error", err.Error())
		return err
	}

	if p, err = q.take(id); err != nil {
		return err
	}
	q.log.Info("[Approval] 响应已确认", "id", id, "url", p.item.URL)
	p.confirmResp(body)
	return nil
}

func (q *Queue) resolveBody(original domain.Payload, d ResponseDecision) (json.RawMessage, error) {
	switch {
	case len(d.Body) > 0:
		if !gjson.ValidBytes(d.Body) {
			return nil, domain.ErrInvalidJSON
		}
		return d.Body, nil
	case len(d.Patches) > 0:
		patched, err := transformer.PatchJSON(original.Raw, d.Patches)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidJSON, err)
		}
		if !gjson.Valid(patched) {
			return nil, domain.ErrInvalidJSON
		}
		return json.RawMessage(patched), nil
	default:
		return json.RawMessage(original.Raw), nil
	}
}

// Reject 拒绝审批项：请求阶段取消调用，响应阶段返回原始响应
func (q *Queue) Reject(id string) error {
	p, err := q.take(id)
	if err != nil {
		return err
	}
	q.log.Info("[Approval] 已拒绝", "id", id, "url", p.item.URL, "stage", string(p.item.Stage))
	p.cancel()
	return nil
}

// Close 拒绝全部待审批项并停止超时清理
func (q *Queue) Close() {
	q.items.Stop()
	for _, e := range q.items.List() {
		if p, ok := q.items.Get(e.ID); ok {
			p.cancel()
		}
	}
}
