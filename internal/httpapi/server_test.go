package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minidebug/internal/httpapi"
	"minidebug/internal/service"
	"minidebug/pkg/domain"
	"minidebug/pkg/errx"
)

type rpcResponse struct {
	ID     string               `json:"id"`
	Result json.RawMessage      `json:"result"`
	Error  *httpapi.ErrorObject `json:"error"`
}

type env struct {
	api      *httptest.Server
	upstream *httptest.Server
	svc      *service.Service
}

func newEnv(t *testing.T) *env {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(up.Close)

	svc := service.New(service.Options{Base: up.Client().Transport, Headless: true})
	t.Cleanup(svc.Destroy)

	api := httptest.NewServer(httpapi.NewServer(svc, nil))
	t.Cleanup(api.Close)
	return &env{api: api, upstream: up, svc: svc}
}

func (e *env) call(t *testing.T, method string, params any) rpcResponse {
	t.Helper()
	body, err := json.Marshal(map[string]any{"method": method, "id": "1", "params": params})
	require.NoError(t, err)

	resp, err := http.Post(e.api.URL, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "1", out.ID)
	return out
}

func TestMethodNotAllowed(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.api.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestInvalidRequest(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Post(e.api.URL, "application/json", bytes.NewReader([]byte(`{`)))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Error)
	assert.Equal(t, "INVALID_REQUEST", out.Error.Code)
}

func TestDispatchErrors(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name     string
		method   string
		params   any
		wantCode string
	}{
		{"未知方法", "nope.nothing", nil, "METHOD_NOT_FOUND"},
		{"缺少 url", "rules.setRequestIntercept", map[string]any{"enabled": true}, "INVALID_PARAMS"},
		{"参数类型错误", "rules.setRequestIntercept", map[string]any{"url": 1}, "INVALID_PARAMS"},
		{"审批项不存在", "pending.reject", map[string]any{"id": "missing"}, string(errx.CodePendingNotFound)},
		{"重放参数非法", "replay.start", map[string]any{"url": "/a", "count": 0}, string(errx.CodeInvalidReplay)},
		{"未配置存储", "settings.get", nil, string(errx.CodeDatabase)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.call(t, tt.method, tt.params)
			require.NotNil(t, out.Error)
			assert.Equal(t, tt.wantCode, out.Error.Code)
		})
	}
}

func TestRulesAndLogs(t *testing.T) {
	e := newEnv(t)
	url := e.upstream.URL + "/api/t"

	out := e.call(t, "rules.setResponseTamper", map[string]any{
		"url":    url,
		"tamper": map[string]any{"status": 201, "data": map[string]any{"fake": true}},
	})
	require.Nil(t, out.Error)
	var rule domain.InterceptRule
	require.NoError(t, json.Unmarshal(out.Result, &rule))
	assert.Equal(t, 201, rule.ResponseTamper.Status)

	out = e.call(t, "fetch.do", map[string]any{"url": url})
	require.Nil(t, out.Error)
	var fr struct {
		Status int    `json:"status"`
		Body   string `json:"body"`
	}
	require.NoError(t, json.Unmarshal(out.Result, &fr))
	assert.Equal(t, 201, fr.Status)
	assert.JSONEq(t, `{"fake":true}`, fr.Body)

	out = e.call(t, "logs.list", nil)
	var logs []domain.LogEntry
	require.NoError(t, json.Unmarshal(out.Result, &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, url, logs[0].URL)

	out = e.call(t, "unique.list", nil)
	var uniq map[string]domain.UniqueRequest
	require.NoError(t, json.Unmarshal(out.Result, &uniq))
	assert.Contains(t, uniq, url)

	require.Nil(t, e.call(t, "logs.clear", nil).Error)
	require.Nil(t, e.call(t, "unique.clear", nil).Error)
	assert.Empty(t, e.svc.GetLogs())
	assert.Empty(t, e.svc.Rules())
}

func TestPendingFlow(t *testing.T) {
	e := newEnv(t)
	url := e.upstream.URL + "/api/x"
	require.Nil(t, e.call(t, "rules.setResponseIntercept", map[string]any{"url": url, "enabled": true}).Error)

	done := make(chan rpcResponse, 1)
	go func() { done <- e.call(t, "fetch.do", map[string]any{"url": url}) }()

	var items []map[string]any
	require.Eventually(t, func() bool {
		out := e.call(t, "pending.list", nil)
		items = nil
		_ = json.Unmarshal(out.Result, &items)
		return len(items) == 1
	}, 5*time.Second, 10*time.Millisecond)
	id := items[0]["id"].(string)

	out := e.call(t, "pending.approveResponse", map[string]any{"id": id, "body": json.RawMessage(`{"broken":`)})
	require.NotNil(t, out.Error)
	assert.Equal(t, string(errx.CodeInvalidJSON), out.Error.Code)

	out = e.call(t, "pending.approveRequest", map[string]any{"id": id})
	require.NotNil(t, out.Error)
	assert.Equal(t, string(errx.CodeStageMismatch), out.Error.Code)

	require.Nil(t, e.call(t, "pending.approveResponse", map[string]any{"id": id, "body": map[string]any{"edited": 1}}).Error)

	res := <-done
	require.Nil(t, res.Error)
	var fr struct {
		Status int    `json:"status"`
		Body   string `json:"body"`
	}
	require.NoError(t, json.Unmarshal(res.Result, &fr))
	assert.Equal(t, 200, fr.Status)
	assert.JSONEq(t, `{"edited":1}`, fr.Body)
}

func TestReplayStart(t *testing.T) {
	e := newEnv(t)
	out := e.call(t, "replay.start", map[string]any{
		"url":    e.upstream.URL + "/api/z",
		"method": "POST",
		"params": map[string]any{"a": 1},
		"count":  4,
	})
	require.Nil(t, out.Error)

	var sum struct {
		Total     int `json:"total"`
		Succeeded int `json:"succeeded"`
	}
	require.NoError(t, json.Unmarshal(out.Result, &sum))
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 4, sum.Succeeded)
	assert.Len(t, e.svc.GetLogs(), 4)
}

func TestPoolStats(t *testing.T) {
	e := newEnv(t)

	out := e.call(t, "pool.stats", nil)
	require.Nil(t, out.Error)

	var st struct {
		QueueCap  int   `json:"queueCap"`
		Submitted int64 `json:"submitted"`
	}
	require.NoError(t, json.Unmarshal(out.Result, &st))
	assert.Equal(t, 64, st.QueueCap)
	assert.Zero(t, st.Submitted)
}
