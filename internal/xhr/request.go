package xhr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"minidebug/internal/mutation"
	"minidebug/internal/processor"
	"minidebug/internal/protocol"
	"minidebug/pkg/domain"
	"minidebug/pkg/rulespec"

	"github.com/tidwall/gjson"
)

// ReadyState 请求对象的就绪状态
type ReadyState int

const (
	Unsent ReadyState = 0
	Opened ReadyState = 1
	Done   ReadyState = 4
)

// Event 事件名称
type Event string

const (
	EventReadyStateChange Event = "readystatechange"
	EventLoad             Event = "load"
	EventError            Event = "error"
	EventAbort            Event = "abort"
	EventLoadEnd          Event = "loadend"
)

// ResponseType 响应读取方式
type ResponseType string

const (
	ResponseTypeDefault     ResponseType = ""
	ResponseTypeText        ResponseType = "text"
	ResponseTypeJSON        ResponseType = "json"
	ResponseTypeArrayBuffer ResponseType = "arraybuffer"
	ResponseTypeBlob        ResponseType = "blob"
)

func (t ResponseType) binary() bool {
	return t == ResponseTypeArrayBuffer || t == ResponseTypeBlob
}

// Listener 事件监听函数
type Listener func(r *Request)

// Request 单个请求对象，状态机: Unsent -> Opened -> (send) -> Done
type Request struct {
	ic *Interceptor

	mu           sync.Mutex
	state        ReadyState
	method       string
	url          string
	header       http.Header
	responseType ResponseType
	sent         bool
	cancel       context.CancelFunc

	status      int
	statusText  string
	respHeader  http.Header
	respBody    []byte
	responseURL string
	err         error

	listeners map[Event][]Listener
	once      sync.Once
	done      chan struct{}
}

// Open 设置方法和地址，重新打开会清空之前设置的请求头
func (r *Request) Open(method, url string) error {
	r.mu.Lock()
	if r.sent && r.state != Done {
		r.mu.Unlock()
		return domain.ErrAlreadySent
	}
	if r.state == Done {
		r.mu.Unlock()
		return fmt.Errorf("reopen completed request: %w", domain.ErrAlreadySent)
	}
	r.method = strings.ToUpper(method)
	if r.method == "" {
		r.method = http.MethodGet
	}
	r.url = url
	r.header = make(http.Header)
	r.state = Opened
	r.mu.Unlock()

	r.dispatch(EventReadyStateChange)
	return nil
}

// SetRequestHeader 追加请求头，必须在 Open 之后、Send 之前调用
func (r *Request) SetRequestHeader(key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Opened {
		return domain.ErrNotOpened
	}
	if r.sent {
		return domain.ErrAlreadySent
	}
	r.header.Add(key, value)
	return nil
}

// SetResponseType 设置响应读取方式
func (r *Request) SetResponseType(t ResponseType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responseType = t
}

// AddEventListener 注册事件监听
func (r *Request) AddEventListener(event Event, fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[event] = append(r.listeners[event], fn)
}

// Send 发出请求并立即返回，完成时派发 readystatechange 和 load/error/abort
func (r *Request) Send(ctx context.Context, body []byte) error {
	r.mu.Lock()
	if r.state != Opened {
		r.mu.Unlock()
		return domain.ErrNotOpened
	}
	if r.sent {
		r.mu.Unlock()
		return domain.ErrAlreadySent
	}
	r.sent = true
	ctx, r.cancel = context.WithCancel(ctx)
	ex := &exchange{
		ic:           r.ic,
		url:          r.url,
		method:       r.method,
		sendURL:      r.url,
		header:       r.header.Clone(),
		body:         append([]byte(nil), body...),
		responseType: r.responseType,
	}
	r.mu.Unlock()

	go r.run(ctx, ex)
	return nil
}

// Abort 中止请求；未发送时回到 Unsent
func (r *Request) Abort() {
	r.mu.Lock()
	cancel := r.cancel
	if !r.sent {
		r.state = Unsent
	}
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (r *Request) run(ctx context.Context, ex *exchange) {
	ic := r.ic
	if ic.destroyed.Load() {
		resp, err := ex.Do(ctx)
		r.complete(ctx, resp, ex.sendURL, err)
		return
	}

	res, err := ic.proc.Run(ctx, ex)
	if err != nil {
		r.complete(ctx, nil, ex.sendURL, err)
		return
	}

	if res.Fabricated && ic.tamperDelay > 0 {
		t := time.NewTimer(ic.tamperDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			r.complete(ctx, nil, ex.sendURL, ctx.Err())
			return
		}
	}
	r.complete(ctx, res.Response, ex.sendURL, nil)
}

// complete 进入 Done 状态，只执行一次
func (r *Request) complete(ctx context.Context, resp *processor.Response, finalURL string, err error) {
	r.once.Do(func() {
		r.mu.Lock()
		r.state = Done
		r.responseURL = finalURL
		if err != nil {
			r.err = err
			r.status = 0
			r.statusText = ""
		} else {
			r.status = resp.Status
			r.statusText = resp.StatusText
			r.respHeader = resp.Header.Clone()
			r.respBody = resp.Body
		}
		cancel := r.cancel
		r.mu.Unlock()

		close(r.done)
		r.dispatch(EventReadyStateChange)
		switch {
		case err == nil:
			r.dispatch(EventLoad)
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			r.dispatch(EventAbort)
		default:
			r.dispatch(EventError)
		}
		r.dispatch(EventLoadEnd)

		if cancel != nil {
			cancel()
		}
	})
}

func (r *Request) dispatch(event Event) {
	r.mu.Lock()
	ls := append([]Listener(nil), r.listeners[event]...)
	r.mu.Unlock()

	for _, fn := range ls {
		r.callListener(event, fn)
	}
}

func (r *Request) callListener(event Event, fn Listener) {
	defer func() {
		if rec := recover(); rec != nil {
			r.ic.log.Error("[XHR] 事件监听器异常", "event", string(event), "panic", fmt.Sprint(rec))
		}
	}()
	fn(r)
}

// Wait 等待请求完成
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DoneChan 完成时关闭
func (r *Request) DoneChan() <-chan struct{} { return r.done }

// ReadyState 当前状态
func (r *Request) ReadyState() ReadyState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Status 状态码，失败或未完成时为 0
func (r *Request) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// StatusText 状态文本
func (r *Request) StatusText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusText
}

// Err 传输错误或取消原因
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// ResponseURL 最终发出请求的地址
func (r *Request) ResponseURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.responseURL
}

// ResponseText 文本响应，仅在默认或 text 读取方式下可用
func (r *Request) ResponseText() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.responseType != ResponseTypeDefault && r.responseType != ResponseTypeText {
		return "", fmt.Errorf("responseText unavailable for responseType %q", r.responseType)
	}
	return string(r.respBody), nil
}

// Response 按读取方式返回响应：json 为解析后的值，二进制为 []byte，其余为字符串
func (r *Request) Response() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Done {
		return nil
	}
	switch r.responseType {
	case ResponseTypeJSON:
		if !gjson.ValidBytes(r.respBody) {
			return nil
		}
		return gjson.ParseBytes(r.respBody).Value()
	case ResponseTypeArrayBuffer, ResponseTypeBlob:
		return append([]byte(nil), r.respBody...)
	default:
		return string(r.respBody)
	}
}

// GetResponseHeader 读取响应头
func (r *Request) GetResponseHeader(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.respHeader.Get(key)
}

// GetAllResponseHeaders 以 "key: value\r\n" 形式返回全部响应头
func (r *Request) GetAllResponseHeaders() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.respHeader))
	for k := range r.respHeader {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(strings.ToLower(k))
		sb.WriteString(": ")
		sb.WriteString(strings.Join(r.respHeader[k], ", "))
		sb.WriteString("\r\n")
	}
	return sb.String()
}

// exchange XHR 形态下的一次调用
type exchange struct {
	ic           *Interceptor
	url          string // open 时的地址，用于规则匹配和日志
	method       string
	sendURL      string
	header       http.Header
	body         []byte
	responseType ResponseType
}

func (e *exchange) Info() domain.RequestInfo {
	return domain.RequestInfo{
		URL:       e.url,
		Method:    e.method,
		Transport: domain.TransportXHR,
		Headers:   protocol.HeaderMap(e.header),
		Body:      protocol.RequestPayload(e.method, e.sendURL, e.body),
	}
}

// reopen 以新的方法和地址重新打开，保留调用方设置的请求头
func (e *exchange) reopen(method, url string) {
	e.method = strings.ToUpper(method)
	e.sendURL = url
}

func (e *exchange) ApplyEdit(edit *rulespec.RequestEdit) error {
	if edit.IsEmpty() {
		return nil
	}
	req, err := e.httpRequest(context.Background())
	if err != nil {
		return err
	}
	if err := mutation.ApplyRequestEdit(req, edit); err != nil {
		return err
	}
	body, err := protocol.ReadRequestBody(req)
	if err != nil {
		return err
	}
	e.reopen(req.Method, req.URL.String())
	e.header = req.Header
	e.body = body
	return nil
}

func (e *exchange) ApplyTamper(t *rulespec.RequestTamper) error {
	req, err := e.httpRequest(context.Background())
	if err != nil {
		return err
	}
	if err := mutation.ApplyRequestTamper(req, t); err != nil {
		return err
	}
	body, err := protocol.ReadRequestBody(req)
	if err != nil {
		return err
	}
	e.header = req.Header
	e.body = body
	return nil
}

func (e *exchange) Do(ctx context.Context) (*processor.Response, error) {
	req, err := e.httpRequest(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := e.ic.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Binary = e.responseType.binary()
	return resp, nil
}

// httpRequest 构造真实请求
func (e *exchange) httpRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, e.method, e.sendURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header = e.header.Clone()
	protocol.SetRequestBody(req, e.body)
	return req, nil
}

func readResponse(resp *http.Response) *processor.Response {
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	text := resp.Status
	if cut, ok := strings.CutPrefix(text, fmt.Sprintf("%d ", resp.StatusCode)); ok {
		text = cut
	}
	return &processor.Response{
		Status:     resp.StatusCode,
		StatusText: text,
		Header:     resp.Header,
		Body:       data,
		ReadErr:    err,
	}
}
