package protocol_test

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"minidebug/internal/protocol"
	"minidebug/pkg/domain"
)

func TestReadRequestBody(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "http://h/api", strings.NewReader(`{"a":1}`))

	data, err := protocol.ReadRequestBody(req)
	if err != nil {
		t.Fatalf("ReadRequestBody error: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("data = %s", data)
	}

	again, _ := io.ReadAll(req.Body)
	if string(again) != `{"a":1}` {
		t.Errorf("body not restored: %s", again)
	}
	rc, _ := req.GetBody()
	fromGetBody, _ := io.ReadAll(rc)
	if string(fromGetBody) != `{"a":1}` {
		t.Errorf("GetBody not restored: %s", fromGetBody)
	}
}

func TestReadRequestBodyEmpty(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://h/api", nil)
	data, err := protocol.ReadRequestBody(req)
	if err != nil || data != nil {
		t.Errorf("got %v, %v; want nil, nil", data, err)
	}
}

func TestReadResponseBody(t *testing.T) {
	resp := &http.Response{Body: io.NopCloser(strings.NewReader("hello"))}
	data, err := protocol.ReadResponseBody(resp)
	if err != nil || string(data) != "hello" {
		t.Fatalf("got %q, %v", data, err)
	}
	again, _ := io.ReadAll(resp.Body)
	if string(again) != "hello" {
		t.Errorf("body not restored: %q", again)
	}
}

func TestRequestPayload(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		url      string
		body     string
		wantKind domain.PayloadKind
		wantRaw  string
	}{
		{"GET 取查询串", "GET", "http://h/api?a=1", "", domain.PayloadText, "?a=1"},
		{"GET 无查询串", "get", "http://h/api", "", domain.PayloadEmpty, ""},
		{"POST JSON", "POST", "http://h/api?a=1", `{"a":1}`, domain.PayloadJSON, `{"a":1}`},
		{"POST 文本", "POST", "http://h/api", "a=1&b=2", domain.PayloadText, "a=1&b=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := protocol.RequestPayload(tt.method, tt.url, []byte(tt.body))
			if got.Kind != tt.wantKind || got.Raw != tt.wantRaw {
				t.Errorf("got %+v, want %s %q", got, tt.wantKind, tt.wantRaw)
			}
		})
	}
}

func TestResponsePayload(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		err         error
		wantKind    domain.PayloadKind
		wantRaw     string
	}{
		{"JSON", "application/json", `{"ok":true}`, nil, domain.PayloadJSON, `{"ok":true}`},
		{"文本", "text/plain", "hi", nil, domain.PayloadText, "hi"},
		{"二进制", "image/png", "\x89PNG", nil, domain.PayloadBinary, domain.MarkerNonText},
		{"读取失败", "application/json", "", errors.New("reset"), domain.PayloadText, domain.MarkerUnparseable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := protocol.ResponsePayload(tt.contentType, []byte(tt.body), tt.err)
			if got.Kind != tt.wantKind || got.Raw != tt.wantRaw {
				t.Errorf("got %+v, want %s %q", got, tt.wantKind, tt.wantRaw)
			}
		})
	}
}
