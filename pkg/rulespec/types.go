// Package rulespec 定义人工编辑与静态篡改的类型规范
package rulespec

import "encoding/json"

// RequestEdit 请求编辑器确认后返回的修改内容，nil 字段表示保持原值
type RequestEdit struct {
	URL     *string           `json:"url,omitempty"`     // 新 URL
	Method  *string           `json:"method,omitempty"`  // 新方法
	Headers map[string]string `json:"headers,omitempty"` // 覆盖的请求头
	Body    *string           `json:"body,omitempty"`    // 新请求体
}

// IsEmpty 判断编辑是否没有任何实际修改
func (e *RequestEdit) IsEmpty() bool {
	if e == nil {
		return true
	}
	return e.URL == nil && e.Method == nil && len(e.Headers) == 0 && e.Body == nil
}

// BodyEncoding Body 编码方式
type BodyEncoding string

const (
	BodyEncodingText   BodyEncoding = "text"   // 文本编码
	BodyEncodingBase64 BodyEncoding = "base64" // Base64 编码
)

// RequestTamper 静态请求篡改：请求头覆盖和请求体替换
type RequestTamper struct {
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	Patches []JSONPatchOp     `json:"patches,omitempty"` // 对原请求体做 JSON Patch
}

// ResponseTamper 静态伪造响应，命中时不发出真实网络调用
type ResponseTamper struct {
	Status       int               `json:"status,omitempty"`     // 默认 200
	StatusText   string            `json:"statusText,omitempty"` // 默认 OK
	Headers      map[string]string `json:"headers,omitempty"`
	Data         json.RawMessage   `json:"data,omitempty"` // JSON 响应体，优先于 Body
	Body         string            `json:"body,omitempty"`
	BodyEncoding BodyEncoding      `json:"bodyEncoding,omitempty"`
}

// GetStatus 获取状态码，默认 200
func (t *ResponseTamper) GetStatus() int {
	if t.Status <= 0 {
		return 200
	}
	return t.Status
}

// GetStatusText 获取状态文本，默认 OK
func (t *ResponseTamper) GetStatusText() string {
	if t.StatusText == "" {
		return "OK"
	}
	return t.StatusText
}

// GetBodyEncoding 获取 Body 编码方式，默认为 text
func (t *ResponseTamper) GetBodyEncoding() BodyEncoding {
	if t.BodyEncoding == "" {
		return BodyEncodingText
	}
	return t.BodyEncoding
}

// JSONPatchOp JSON Patch 操作
type JSONPatchOp struct {
	Op    string `json:"op"`              // 操作类型: add, remove, replace
	Path  string `json:"path"`            // JSON 路径
	Value any    `json:"value,omitempty"` // 值
}
