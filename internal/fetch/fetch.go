// Package fetch 以 http.RoundTripper 装饰器的形式拦截 fetch 形态的调用
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"minidebug/internal/logger"
	"minidebug/internal/mutation"
	"minidebug/internal/processor"
	"minidebug/internal/protocol"
	"minidebug/pkg/domain"
	"minidebug/pkg/rulespec"
)

// Init 调用参数，对应 fetch 的 init
type Init struct {
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`
}

// Interceptor fetch 拦截器
type Interceptor struct {
	base      http.RoundTripper
	proc      *processor.Processor
	log       logger.Logger
	destroyed atomic.Bool
}

// New 创建拦截器，base 为 nil 时使用 http.DefaultTransport
func New(base http.RoundTripper, proc *processor.Processor, l logger.Logger) *Interceptor {
	if base == nil {
		base = http.DefaultTransport
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Interceptor{base: base, proc: proc, log: l}
}

// RoundTrip 实现 http.RoundTripper，不修改调用方传入的请求
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	if i.destroyed.Load() {
		return i.base.RoundTrip(req)
	}

	body, err := readBody(req)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}

	out := req.Clone(req.Context())
	protocol.SetRequestBody(out, body)
	ex := &exchange{base: i.base, req: out, url: req.URL.String(), body: body}

	res, err := i.proc.Run(req.Context(), ex)
	if err != nil {
		return nil, err
	}
	if res.Response.Synthetic {
		return res.Response.ToHTTP(req), nil
	}
	ex.raw.Request = req
	return ex.raw, nil
}

// Fetch 以 fetch 的调用方式发出请求，method 默认为 GET，不跟随重定向
func (i *Interceptor) Fetch(ctx context.Context, url string, init *Init) (*http.Response, error) {
	if init == nil {
		init = &Init{}
	}
	method := strings.ToUpper(init.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(init.Body) > 0 {
		body = bytes.NewReader(init.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range init.Headers {
		req.Header.Set(k, v)
	}
	return i.RoundTrip(req)
}

// Client 返回使用该拦截器的 http.Client
func (i *Interceptor) Client() *http.Client {
	return &http.Client{Transport: i}
}

// Base 被包装的原始传输
func (i *Interceptor) Base() http.RoundTripper { return i.base }

// Destroy 之后所有调用直接交给原始传输，不再记录
func (i *Interceptor) Destroy() {
	if i.destroyed.CompareAndSwap(false, true) {
		i.log.Info("[Fetch] 拦截器已销毁，恢复直连")
	}
}

func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

// exchange fetch 形态下的一次调用
type exchange struct {
	base http.RoundTripper
	req  *http.Request
	url  string // 调用方传入的原始 URL
	body []byte
	raw  *http.Response
}

func (e *exchange) Info() domain.RequestInfo {
	return domain.RequestInfo{
		URL:       e.url,
		Method:    e.req.Method,
		Transport: domain.TransportFetch,
		Headers:   protocol.HeaderMap(e.req.Header),
		Body:      protocol.RequestPayload(e.req.Method, e.req.URL.String(), e.body),
	}
}

func (e *exchange) ApplyEdit(edit *rulespec.RequestEdit) error {
	if err := mutation.ApplyRequestEdit(e.req, edit); err != nil {
		return err
	}
	if edit != nil && edit.Body != nil {
		e.body = []byte(*edit.Body)
	}
	return nil
}

func (e *exchange) ApplyTamper(t *rulespec.RequestTamper) error {
	if err := mutation.ApplyRequestTamper(e.req, t); err != nil {
		return err
	}
	body, err := protocol.ReadRequestBody(e.req)
	if err != nil {
		return err
	}
	e.body = body
	return nil
}

func (e *exchange) Do(ctx context.Context) (*processor.Response, error) {
	resp, err := e.base.RoundTrip(e.req.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	data, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	// 读取失败时调用方仍会在读取响应体时拿到同样的错误
	var rc io.Reader = bytes.NewReader(data)
	if readErr != nil {
		rc = io.MultiReader(rc, errReader{readErr})
	}
	resp.Body = io.NopCloser(rc)
	e.raw = resp

	return &processor.Response{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Header:     resp.Header,
		Body:       data,
		ReadErr:    readErr,
	}, nil
}

func statusText(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, fmt.Sprintf("%d ", resp.StatusCode)); ok {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
