// Package httpapi 以 POST JSON {method, id, params} 的形式暴露控制接口
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"minidebug/internal/approval"
	"minidebug/internal/fetch"
	"minidebug/internal/logger"
	"minidebug/internal/protocol"
	"minidebug/internal/replay"
	api "minidebug/pkg/api"
	"minidebug/pkg/errx"
	"minidebug/pkg/rulespec"
)

// Server 控制接口的 HTTP 入口
type Server struct {
	svc api.Service
	log logger.Logger
}

// NewServer 创建 HTTP 接口服务
func NewServer(svc api.Service, l logger.Logger) *Server {
	if l == nil {
		l = logger.NewNop()
	}
	return &Server{svc: svc, log: l}
}

// ServeHTTP 处理所有控制请求
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, &Response{Error: toErrorObject(ErrInvalidRequest.withError(err))})
		return
	}
	res := s.dispatch(r.Context(), &req)
	if res.Error != nil {
		s.log.Debug("[HTTPAPI] 请求失败", "method", req.Method, "code", res.Error.Code, "message", res.Error.Message)
	}
	writeResponse(w, res)
}

// Request 通用请求结构
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id,omitempty"`
	Params json.RawMessage `json:"params"`
}

// Response 通用响应结构
type Response struct {
	ID     string       `json:"id,omitempty"`
	Result any          `json:"result,omitempty"`
	Error  *ErrorObject `json:"error,omitempty"`
}

// ErrorObject 错误信息
type ErrorObject struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ApiError 接口层错误
type ApiError struct {
	Code errx.Code
	Err  error
}

func (e ApiError) withError(err error) ApiError {
	return ApiError{Code: e.Code, Err: err}
}

var (
	// ErrInvalidRequest 无效请求
	ErrInvalidRequest = ApiError{Code: "INVALID_REQUEST"}
	// ErrMethodNotFound 方法不存在
	ErrMethodNotFound = ApiError{Code: "METHOD_NOT_FOUND"}
	// ErrInvalidParams 参数错误
	ErrInvalidParams = ApiError{Code: "INVALID_PARAMS"}
)

type handlerFunc func(ctx context.Context, params json.RawMessage) (any, *ErrorObject)

// dispatch 根据 method 分发请求
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	handlers := map[string]handlerFunc{
		"rules.list":                 s.handleRulesList,
		"rules.stats":                s.handleRulesStats,
		"rules.setRequestIntercept":  s.handleSetRequestIntercept,
		"rules.setResponseIntercept": s.handleSetResponseIntercept,
		"rules.setRequestTamper":     s.handleSetRequestTamper,
		"rules.setResponseTamper":    s.handleSetResponseTamper,
		"logs.list":                  s.handleLogsList,
		"logs.clear":                 s.handleLogsClear,
		"unique.list":                s.handleUniqueList,
		"unique.clear":               s.handleUniqueClear,
		"pending.list":               s.handlePendingList,
		"pending.approveRequest":     s.handleApproveRequest,
		"pending.approveResponse":    s.handleApproveResponse,
		"pending.reject":             s.handleReject,
		"replay.start":               s.handleReplayStart,
		"fetch.do":                   s.handleFetch,
		"settings.get":               s.handleSettingsGet,
		"settings.set":               s.handleSettingsSet,
		"pool.stats":                 s.handlePoolStats,
	}

	h, ok := handlers[req.Method]
	if !ok {
		return &Response{ID: req.ID, Error: toErrorObject(ErrMethodNotFound.withError(errors.New(req.Method)))}
	}
	result, err := h(ctx, req.Params)
	return &Response{ID: req.ID, Result: result, Error: err}
}

// writeResponse 写出统一响应
func writeResponse(w http.ResponseWriter, res *Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(res)
}

// toErrorObject 转换错误为响应错误对象
func toErrorObject(e ApiError) *ErrorObject {
	msg := string(e.Code)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return &ErrorObject{Code: string(e.Code), Message: msg}
}

// serviceError 按领域错误映射错误码
func serviceError(err error) *ErrorObject {
	return toErrorObject(ApiError{Code: errx.CodeOf(err), Err: err})
}

// decode 解析参数，params 为空时保持零值
func decode(params json.RawMessage, v any) *ErrorObject {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return toErrorObject(ErrInvalidParams.withError(err))
	}
	return nil
}

func required(name string) *ErrorObject {
	return toErrorObject(ErrInvalidParams.withError(errors.New(name + " is required")))
}

type interceptParams struct {
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

type requestTamperParams struct {
	URL    string                  `json:"url"`
	Tamper *rulespec.RequestTamper `json:"tamper"`
}

type responseTamperParams struct {
	URL    string                   `json:"url"`
	Tamper *rulespec.ResponseTamper `json:"tamper"`
}

type idParams struct {
	ID string `json:"id"`
}

type approveRequestParams struct {
	ID   string                `json:"id"`
	Edit *rulespec.RequestEdit `json:"edit"`
}

type approveResponseParams struct {
	ID string `json:"id"`
	approval.ResponseDecision
}

type fetchParams struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

type fetchResult struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

type settingsParams struct {
	Values map[string]string `json:"values"`
}

func (s *Server) handleRulesList(_ context.Context, _ json.RawMessage) (any, *ErrorObject) {
	return s.svc.Rules(), nil
}

func (s *Server) handleRulesStats(_ context.Context, _ json.RawMessage) (any, *ErrorObject) {
	return s.svc.RuleStats(), nil
}

func (s *Server) handlePoolStats(_ context.Context, _ json.RawMessage) (any, *ErrorObject) {
	return s.svc.PoolStats(), nil
}

func (s *Server) handleSetRequestIntercept(_ context.Context, params json.RawMessage) (any, *ErrorObject) {
	var p interceptParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	if p.URL == "" {
		return nil, required("url")
	}
	return s.svc.SetRequestIntercept(p.URL, p.Enabled), nil
}

func (s *Server) handleSetResponseIntercept(_ context.Context, params json.RawMessage) (any, *ErrorObject) {
	var p interceptParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	if p.URL == "" {
		return nil, required("url")
	}
	return s.svc.SetResponseIntercept(p.URL, p.Enabled), nil
}

func (s *Server) handleSetRequestTamper(_ context.Context, params json.RawMessage) (any, *ErrorObject) {
	var p requestTamperParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	if p.URL == "" {
		return nil, required("url")
	}
	return s.svc.SetRequestTamper(p.URL, p.Tamper), nil
}

func (s *Server) handleSetResponseTamper(_ context.Context, params json.RawMessage) (any, *ErrorObject) {
	var p responseTamperParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	if p.URL == "" {
		return nil, required("url")
	}
	return s.svc.SetResponseTamper(p.URL, p.Tamper), nil
}

func (s *Server) handleLogsList(_ context.Context, _ json.RawMessage) (any, *ErrorObject) {
	return s.svc.GetLogs(), nil
}

func (s *Server) handleLogsClear(_ context.Context, _ json.RawMessage) (any, *ErrorObject) {
	s.svc.ClearLogs()
	return nil, nil
}

func (s *Server) handleUniqueList(_ context.Context, _ json.RawMessage) (any, *ErrorObject) {
	return s.svc.GetUniqueRequests(), nil
}

func (s *Server) handleUniqueClear(_ context.Context, _ json.RawMessage) (any, *ErrorObject) {
	s.svc.ClearUniqueRequests()
	return nil, nil
}

func (s *Server) handlePendingList(_ context.Context, _ json.RawMessage) (any, *ErrorObject) {
	return s.svc.Pending(), nil
}

func (s *Server) handleApproveRequest(_ context.Context, params json.RawMessage) (any, *ErrorObject) {
	var p approveRequestParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	if p.ID == "" {
		return nil, required("id")
	}
	if err := s.svc.ApproveRequest(p.ID, p.Edit); err != nil {
		return nil, serviceError(err)
	}
	return nil, nil
}

func (s *Server) handleApproveResponse(_ context.Context, params json.RawMessage) (any, *ErrorObject) {
	var p approveResponseParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	if p.ID == "" {
		return nil, required("id")
	}
	if err := s.svc.ApproveResponse(p.ID, p.ResponseDecision); err != nil {
		return nil, serviceError(err)
	}
	return nil, nil
}

func (s *Server) handleReject(_ context.Context, params json.RawMessage) (any, *ErrorObject) {
	var p idParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	if p.ID == "" {
		return nil, required("id")
	}
	if err := s.svc.Reject(p.ID); err != nil {
		return nil, serviceError(err)
	}
	return nil, nil
}

func (s *Server) handleReplayStart(ctx context.Context, params json.RawMessage) (any, *ErrorObject) {
	var p replay.Params
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	sum, err := s.svc.Replay(ctx, p)
	if err != nil {
		return nil, serviceError(err)
	}
	return sum, nil
}

func (s *Server) handleFetch(ctx context.Context, params json.RawMessage) (any, *ErrorObject) {
	var p fetchParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	if p.URL == "" {
		return nil, required("url")
	}

	init := &fetch.Init{Method: p.Method, Headers: p.Headers}
	if p.Body != "" {
		init.Body = []byte(p.Body)
	}
	resp, err := s.svc.Fetch(ctx, p.URL, init)
	if err != nil {
		return nil, serviceError(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, serviceError(err)
	}
	return fetchResult{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    protocol.HeaderMap(resp.Header),
		Body:       string(body),
	}, nil
}

func (s *Server) handleSettingsGet(ctx context.Context, _ json.RawMessage) (any, *ErrorObject) {
	all, err := s.svc.Settings(ctx)
	if err != nil {
		return nil, serviceError(err)
	}
	return all, nil
}

func (s *Server) handleSettingsSet(ctx context.Context, params json.RawMessage) (any, *ErrorObject) {
	var p settingsParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	if len(p.Values) == 0 {
		return nil, required("values")
	}
	if err := s.svc.SetSettings(ctx, p.Values); err != nil {
		return nil, serviceError(err)
	}
	return nil, nil
}
