// Package processor 拦截决策与日志记录，fetch 和 XHR 两种传输形态共用
package processor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"minidebug/internal/logger"
	"minidebug/internal/mutation"
	"minidebug/internal/protocol"
	"minidebug/pkg/domain"
	"minidebug/pkg/rulespec"

	"github.com/google/uuid"
)

// Store 规则查询与日志记录
type Store interface {
	Rule(url string) (domain.InterceptRule, bool)
	Record(e domain.LogEntry)
}

// Mode 单次调用的处理模式
type Mode string

const (
	ModePass         Mode = "pass"
	ModeRequestLive  Mode = "requestLive"
	ModeResponseLive Mode = "responseLive"
	ModeTamper       Mode = "tamper"
)

// Plan 调用开始时的处理计划
type Plan struct {
	Mode          Mode
	Rule          domain.InterceptRule
	Matched       bool
	RequestTamper *rulespec.RequestTamper // 非请求实时模式下应用
	Replay        bool
	Tag           int
}

// Exchange 一次调用在具体传输形态上的操作
type Exchange interface {
	// Info 当前请求快照
	Info() domain.RequestInfo
	// ApplyEdit 应用编辑器确认的修改
	ApplyEdit(edit *rulespec.RequestEdit) error
	// ApplyTamper 应用静态请求篡改
	ApplyTamper(t *rulespec.RequestTamper) error
	// Do 发出真实请求并读取完整响应体
	Do(ctx context.Context) (*Response, error)
}

// Response 读取完毕的响应
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
	ReadErr    error // 响应体读取失败，不影响调用方
	Synthetic  bool  // 由编辑或静态篡改构造
	Binary     bool  // 调用方按二进制读取响应
}

// Payload 日志中的响应负载
func (r *Response) Payload() domain.Payload {
	if r.Binary && r.ReadErr == nil {
		return domain.BinaryPayload()
	}
	return protocol.ResponsePayload(r.Header.Get("Content-Type"), r.Body, r.ReadErr)
}

// Result 调用结果，出错时 Entry 仍为已记录的日志
type Result struct {
	Response   *Response
	Entry      domain.LogEntry
	Fabricated bool // 静态响应篡改，未发出网络请求
	Edited     bool // 响应已被编辑器替换
}

// Processor 决策与记录中心
type Processor struct {
	store      Store
	mu         sync.RWMutex
	reqEditor  RequestEditor
	respEditor ResponseEditor
	log        logger.Logger
}

// New 创建处理器
func New(store Store, l logger.Logger) *Processor {
	if l == nil {
		l = logger.NewNop()
	}
	return &Processor{store: store, log: l}
}

// SetRequestEditor 设置请求编辑器，nil 表示不提供
func (p *Processor) SetRequestEditor(e RequestEditor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqEditor = e
}

// SetResponseEditor 设置响应编辑器，nil 表示不提供
func (p *Processor) SetResponseEditor(e ResponseEditor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.respEditor = e
}

func (p *Processor) requestEditor() RequestEditor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reqEditor
}

func (p *Processor) responseEditor() ResponseEditor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.respEditor
}

// Plan 根据当前规则决定处理模式
func (p *Processor) Plan(ctx context.Context, url string) Plan {
	tag, replay := ReplayTag(ctx)
	rule, ok := p.store.Rule(url)
	plan := Plan{Mode: ModePass, Rule: rule, Matched: ok, Replay: replay, Tag: tag}
	if !ok {
		return plan
	}

	reqLive := !replay && rule.RequestLive && p.requestEditor() != nil
	respLive := !replay && rule.ResponseLive && p.responseEditor() != nil
	if (rule.RequestLive && !reqLive) || (rule.ResponseLive && !respLive) {
		p.log.Debug("[Processor] 实时拦截未生效", "url", url, "replay", replay)
	}

	switch {
	case reqLive:
		plan.Mode = ModeRequestLive
	case respLive:
		plan.Mode = ModeResponseLive
	case rule.ResponseTamper != nil:
		plan.Mode = ModeTamper
	}
	if plan.Mode != ModeRequestLive && mutation.HasRequestTamper(rule.RequestTamper) {
		plan.RequestTamper = rule.RequestTamper
	}
	return plan
}

// ResponseLiveNow 请求编辑结束后重新检查响应实时拦截
func (p *Processor) ResponseLiveNow(ctx context.Context, url string) bool {
	if _, replay := ReplayTag(ctx); replay {
		return false
	}
	rule, ok := p.store.Rule(url)
	return ok && rule.ResponseLive && p.responseEditor() != nil
}

// Run 按计划执行一次调用，恰好记录一条日志
func (p *Processor) Run(ctx context.Context, ex Exchange) (*Result, error) {
	info := ex.Info()
	plan := p.Plan(ctx, info.URL)
	call := p.Begin(ctx, info)
	p.log.Debug("[Processor] 开始处理调用", "url", info.URL, "method", info.Method, "transport", string(info.Transport), "mode", string(plan.Mode))

	phase := domain.PhaseNone
	respLive := plan.Mode == ModeResponseLive

	switch plan.Mode {
	case ModeTamper:
		resp, err := FabricateResponse(plan.Rule.ResponseTamper)
		if err != nil {
			p.log.Err(err, "[Processor] 构造静态响应失败", "url", info.URL)
			return &Result{Entry: call.Fail(err, domain.PhaseResponse)}, err
		}
		entry := call.Complete(resp.Status, resp.Payload(), domain.PhaseResponse)
		p.log.Info("[Processor] 已返回静态响应", "url", info.URL, "status", resp.Status)
		return &Result{Response: resp, Entry: entry, Fabricated: true}, nil

	case ModeRequestLive:
		edit, err := p.EditRequest(ctx, info)
		if err != nil {
			return &Result{Entry: call.Fail(err, domain.PhaseRequest)}, err
		}
		if err := ex.ApplyEdit(edit); err != nil {
			p.log.Err(err, "[Processor] 应用请求编辑失败", "url", info.URL)
			return &Result{Entry: call.Fail(err, domain.PhaseRequest)}, err
		}
		phase = domain.PhaseRequest
		respLive = p.ResponseLiveNow(ctx, info.URL)

	default:
		if plan.RequestTamper != nil {
			if err := ex.ApplyTamper(plan.RequestTamper); err != nil {
				p.log.Err(err, "[Processor] 应用静态请求篡改失败", "url", info.URL)
				return &Result{Entry: call.Fail(err, domain.PhaseRequest)}, err
			}
			phase = domain.PhaseRequest
		}
	}

	sent := ex.Info()
	call.SetRequest(sent)

	resp, err := ex.Do(ctx)
	if err != nil {
		p.log.Warn("[Processor] 请求失败", "url", info.URL, "error", err.Error())
		return &Result{Entry: call.Fail(err, phase)}, err
	}

	payload := resp.Payload()
	res := &Result{Response: resp}

	if respLive {
		rctx := domain.ResponseContext{URL: info.URL, Method: sent.Method, Transport: info.Transport, Status: resp.Status}
		edited, err := p.EditResponse(ctx, rctx, payload)
		if err != nil {
			res.Entry = call.Fail(err, phase)
			return res, err
		}
		if edited != nil {
			res.Response = EditedResponse(edited)
			res.Edited = true
			payload = domain.JSONPayload(edited)
			if phase == domain.PhaseRequest {
				phase = domain.PhaseBoth
			} else {
				phase = domain.PhaseResponse
			}
		}
	}

	res.Entry = call.Complete(res.Response.Status, payload, phase)
	return res, nil
}

// Call 单次调用的日志构造器，只记录一次
type Call struct {
	p         *Processor
	once      sync.Once
	start     time.Time
	url       string
	method    string
	transport domain.Transport
	tag       int
	request   domain.Payload
}

// Begin 开始计时；日志 URL 固定为调用方传入的原始 URL
func (p *Processor) Begin(ctx context.Context, info domain.RequestInfo) *Call {
	tag, _ := ReplayTag(ctx)
	return &Call{
		p:         p,
		start:     time.Now(),
		url:       info.URL,
		method:    info.Method,
		transport: info.Transport,
		tag:       tag,
		request:   info.Body,
	}
}

// SetRequest 以编辑或篡改后实际发出的方法和负载更新日志，URL 保持原值
func (c *Call) SetRequest(info domain.RequestInfo) {
	if info.Method != "" {
		c.method = info.Method
	}
	c.request = info.Body
}

// Complete 记录完成的调用
func (c *Call) Complete(status int, resp domain.Payload, phase domain.Phase) domain.LogEntry {
	return c.record(status, resp, phase)
}

// Fail 记录失败的调用，状态码为 0，响应负载为错误信息
func (c *Call) Fail(err error, phase domain.Phase) domain.LogEntry {
	return c.record(0, domain.ErrorPayload(errorMessage(err)), phase)
}

func (c *Call) record(status int, resp domain.Payload, phase domain.Phase) domain.LogEntry {
	var entry domain.LogEntry
	recorded := false
	c.once.Do(func() {
		recorded = true
		now := time.Now()
		entry = domain.LogEntry{
			ID:              uuid.NewString(),
			URL:             c.url,
			Method:          c.method,
			Transport:       c.transport,
			Status:          status,
			ElapsedMs:       now.Sub(c.start).Milliseconds(),
			RequestPayload:  c.request,
			ResponsePayload: resp,
			Intercepted:     phase != domain.PhaseNone,
			Phase:           phase,
			ConcurrencyTag:  c.tag,
			Timestamp:       now.UnixMilli(),
		}
		c.p.store.Record(entry)
	})
	if !recorded {
		c.p.log.Error("[Processor] 重复记录日志，已忽略", "url", c.url)
	}
	return entry
}

func errorMessage(err error) string {
	if errors.Is(err, domain.ErrRequestCancelled) {
		return domain.ErrRequestCancelled.Error()
	}
	return err.Error()
}
