// Package mutation 将人工编辑和静态篡改应用到 HTTP 请求
package mutation

import (
	"fmt"
	"net/http"
	"strings"

	"minidebug/internal/protocol"
	"minidebug/internal/transformer"
	"minidebug/pkg/rulespec"
)

// ApplyRequestEdit 应用编辑器确认的请求修改，nil 字段保持原值
func ApplyRequestEdit(req *http.Request, edit *rulespec.RequestEdit) error {
	if edit.IsEmpty() {
		return nil
	}

	if edit.URL != nil && *edit.URL != req.URL.String() {
		// 相对地址按原请求地址解析
		u, err := req.URL.Parse(*edit.URL)
		if err != nil {
			return fmt.Errorf("invalid edited url %q: %w", *edit.URL, err)
		}
		req.URL = u
		req.Host = u.Host
	}
	if edit.Method != nil && *edit.Method != "" {
		req.Method = strings.ToUpper(*edit.Method)
	}
	for k, v := range edit.Headers {
		req.Header.Set(k, v)
	}
	if edit.Body != nil {
		protocol.SetRequestBody(req, []byte(*edit.Body))
	}
	return nil
}

// ApplyRequestTamper 应用静态请求篡改：先替换请求体，再执行 JSON Patch，最后覆盖请求头
func ApplyRequestTamper(req *http.Request, t *rulespec.RequestTamper) error {
	if t == nil {
		return nil
	}

	if t.Body != "" || len(t.Patches) > 0 {
		body := t.Body
		if body == "" {
			orig, err := protocol.ReadRequestBody(req)
			if err != nil {
				return fmt.Errorf("read request body: %w", err)
			}
			body = string(orig)
		}
		patched, err := transformer.PatchJSON(body, t.Patches)
		if err != nil {
			return fmt.Errorf("patch request body: %w", err)
		}
		protocol.SetRequestBody(req, []byte(patched))
	}

	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	return nil
}

// HasRequestTamper 检查静态请求篡改是否有效
func HasRequestTamper(t *rulespec.RequestTamper) bool {
	return t != nil && (len(t.Headers) > 0 || t.Body != "" || len(t.Patches) > 0)
}
