package domain

import "minidebug/pkg/rulespec"

// Transport 网络调用的传输形态
type Transport string

const (
	TransportFetch Transport = "fetch"
	TransportXHR   Transport = "xhr"
)

// Phase 日志条目记录的拦截阶段
type Phase string

const (
	PhaseNone     Phase = "none"
	PhaseRequest  Phase = "request"
	PhaseResponse Phase = "response"
	PhaseBoth     Phase = "both"
)

// InterceptRule 按精确 URL 存储的拦截规则
type InterceptRule struct {
	URL            string                   `json:"url"`
	Method         string                   `json:"method"` // 仅用于展示
	RequestLive    bool                     `json:"requestLive"`
	ResponseLive   bool                     `json:"responseLive"`
	RequestTamper  *rulespec.RequestTamper  `json:"requestTamper,omitempty"`
	ResponseTamper *rulespec.ResponseTamper `json:"responseTamper,omitempty"`
}

// IsEmpty 规则不带任何开关或篡改内容时视为空规则
func (r InterceptRule) IsEmpty() bool {
	return !r.RequestLive && !r.ResponseLive && r.RequestTamper == nil && r.ResponseTamper == nil
}

// LogEntry 一次网络调用尝试对应的日志记录，创建后不再修改
type LogEntry struct {
	ID              string    `json:"id"`
	URL             string    `json:"url"`
	Method          string    `json:"method"`
	Transport       Transport `json:"transport"`
	Status          int       `json:"status"` // 0 表示传输层失败或被取消
	ElapsedMs       int64     `json:"elapsedMs"`
	RequestPayload  Payload   `json:"requestPayload"`
	ResponsePayload Payload   `json:"responsePayload"`
	Intercepted     bool      `json:"intercepted"`
	Phase           Phase     `json:"interceptedPhase"`
	ConcurrencyTag  int       `json:"concurrencyTag,omitempty"` // 并发重放序号，从 1 开始
	Timestamp       int64     `json:"timestamp"`
}

// UniqueRequest 按 URL 聚合的唯一请求摘要
type UniqueRequest struct {
	URL                 string `json:"url"`
	Method              string `json:"method"` // 首次观察到的方法
	OccurrenceCount     int    `json:"occurrenceCount"`
	LastElapsedMs       int64  `json:"lastElapsedMs"`
	RequestIntercepted  bool   `json:"requestIntercepted"`
	ResponseIntercepted bool   `json:"responseIntercepted"`
}

// RequestInfo 交给请求编辑器的请求快照
type RequestInfo struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Transport Transport         `json:"transport"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      Payload           `json:"body"`
}

// ResponseContext 交给响应编辑器的调用上下文
type ResponseContext struct {
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	Transport Transport `json:"transport"`
	Status    int       `json:"status"`
}

// 事件名称
const (
	EventLogAdded              = "logAdded"
	EventUniqueRequestsUpdated = "uniqueRequestsUpdated"
)
