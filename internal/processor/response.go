package processor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"minidebug/internal/transformer"
	"minidebug/pkg/rulespec"
)

// EditedResponse 由编辑后的 JSON 构造的响应，状态码固定为 200
func EditedResponse(body json.RawMessage) *Response {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &Response{
		Status:     http.StatusOK,
		StatusText: http.StatusText(http.StatusOK),
		Header:     h,
		Body:       []byte(body),
		Synthetic:  true,
	}
}

// FabricateResponse 根据静态响应篡改构造响应，Data 优先于 Body
func FabricateResponse(t *rulespec.ResponseTamper) (*Response, error) {
	if t == nil {
		return nil, errors.New("nil response tamper")
	}

	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	for k, v := range t.Headers {
		h.Set(k, v)
	}

	var body []byte
	switch {
	case len(t.Data) > 0:
		body = append([]byte(nil), t.Data...)
	case t.Body != "":
		decoded, err := transformer.DecodeBody(t.Body, t.GetBodyEncoding())
		if err != nil {
			return nil, fmt.Errorf("decode tamper body: %w", err)
		}
		body = []byte(decoded)
	}

	return &Response{
		Status:     t.GetStatus(),
		StatusText: t.GetStatusText(),
		Header:     h,
		Body:       body,
		Synthetic:  true,
	}, nil
}

// ToHTTP 转为 *http.Response，req 为对应的请求
func (r *Response) ToHTTP(req *http.Request) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", r.Status, r.StatusText),
		StatusCode:    r.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        r.Header.Clone(),
		Body:          newBody(r.Body),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}

func newBody(b []byte) io.ReadCloser {
	if len(b) == 0 {
		return http.NoBody
	}
	return io.NopCloser(bytes.NewReader(b))
}
