// Package protocol 读取 HTTP 请求与响应体，并保证读取后原对象仍可被再次读取
package protocol

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"minidebug/internal/transformer"
	"minidebug/pkg/domain"
)

// ReadRequestBody 读取请求体并回填，GetBody 同步更新
func ReadRequestBody(req *http.Request) ([]byte, error) {
	if req == nil || req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	SetRequestBody(req, data)
	return data, nil
}

// SetRequestBody 替换请求体
func SetRequestBody(req *http.Request, data []byte) {
	if len(data) == 0 {
		req.Body = http.NoBody
		req.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
		req.ContentLength = 0
		return
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.ContentLength = int64(len(data))
}

// ReadResponseBody 读取响应体并回填
func ReadResponseBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil || resp.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return data, err
	}
	return data, nil
}

// RequestPayload 构造日志中的请求负载：GET 取查询串，其余解析请求体
func RequestPayload(method, rawURL string, body []byte) domain.Payload {
	if strings.EqualFold(method, http.MethodGet) {
		if q := transformer.QueryString(rawURL); q != "" {
			return domain.TextPayload(q)
		}
		return domain.Payload{Kind: domain.PayloadEmpty}
	}
	return domain.ParsePayload(body, false)
}

// ResponsePayload 构造日志中的响应负载：优先 JSON，其次文本，二进制类型返回占位
func ResponsePayload(contentType string, body []byte, readErr error) domain.Payload {
	if readErr != nil {
		return domain.TextPayload(domain.MarkerUnparseable)
	}
	return domain.ParsePayload(body, transformer.IsBinaryContentType(contentType))
}

// HeaderMap 将多值请求头压平为单值映射，多个值以逗号连接
func HeaderMap(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
