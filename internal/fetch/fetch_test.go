package fetch_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minidebug/internal/fetch"
	"minidebug/internal/inspector"
	"minidebug/internal/logger"
	"minidebug/internal/processor"
	"minidebug/pkg/domain"
	"minidebug/pkg/rulespec"
)

// upstream 记录真实请求次数和最后一次请求
type upstream struct {
	srv        *httptest.Server
	calls      atomic.Int32
	lastMethod atomic.Value
	lastBody   atomic.Value
}

func newUpstream(t *testing.T) *upstream {
	u := &upstream{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		u.lastMethod.Store(r.Method)
		u.lastBody.Store(string(body))

		switch r.URL.Path {
		case "/api/y":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ok":true}`))
		case "/img":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("\x89PNG"))
		case "/missing":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
		}
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func setup(t *testing.T) (*upstream, *inspector.Inspector, *processor.Processor, *fetch.Interceptor) {
	u := newUpstream(t)
	ins := inspector.New(inspector.Config{})
	proc := processor.New(ins, logger.NewNop())
	return u, ins, proc, fetch.New(u.srv.Client().Transport, proc, logger.NewNop())
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestFetchPassThrough(t *testing.T) {
	u, ins, _, fi := setup(t)

	direct, err := u.srv.Client().Get(u.srv.URL + "/missing")
	require.NoError(t, err)
	directBody := readAll(t, direct)

	resp, err := fi.Fetch(context.Background(), u.srv.URL+"/missing", nil)
	require.NoError(t, err)

	assert.Equal(t, direct.StatusCode, resp.StatusCode)
	assert.Equal(t, directBody, readAll(t, resp))

	logs := ins.GetLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, 404, logs[0].Status)
	assert.False(t, logs[0].Intercepted)
	assert.Equal(t, domain.TransportFetch, logs[0].Transport)
}

func TestFetchRequestPayload(t *testing.T) {
	u, ins, _, fi := setup(t)

	_, err := fi.Fetch(context.Background(), u.srv.URL+"/q?a=1&b=2", nil)
	require.NoError(t, err)
	_, err = fi.Fetch(context.Background(), u.srv.URL+"/p", &fetch.Init{Method: "post", Body: []byte(`{"x":1}`)})
	require.NoError(t, err)

	logs := ins.GetLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, "?a=1&b=2", logs[0].RequestPayload.Raw)
	assert.Equal(t, "POST", logs[1].Method)
	assert.True(t, logs[1].RequestPayload.IsJSON())
	assert.Equal(t, `{"x":1}`, u.lastBody.Load())
}

func TestFetchRequestEditScenario(t *testing.T) {
	u, ins, proc, fi := setup(t)
	url := u.srv.URL + "/api/x"
	ins.SetRequestIntercept(url, true)

	post, body := "POST", `{"a":1}`
	proc.SetRequestEditor(processor.RequestEditorFunc(func(info domain.RequestInfo, confirm func(*rulespec.RequestEdit), _ func()) {
		assert.Equal(t, "GET", info.Method)
		confirm(&rulespec.RequestEdit{Method: &post, Body: &body})
	}))

	resp, err := fi.Fetch(context.Background(), url, nil)
	require.NoError(t, err)
	readAll(t, resp)

	assert.Equal(t, "POST", u.lastMethod.Load())
	assert.Equal(t, `{"a":1}`, u.lastBody.Load())

	logs := ins.GetLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.PhaseRequest, logs[0].Phase)
	assert.Equal(t, url, logs[0].URL)
	assert.Equal(t, "POST", logs[0].Method)
	assert.JSONEq(t, `{"a":1}`, logs[0].RequestPayload.Raw)
}

func TestFetchRequestEditRelativeURL(t *testing.T) {
	u, ins, proc, fi := setup(t)
	url := u.srv.URL + "/api/x"
	ins.SetRequestIntercept(url, true)

	moved := "/api/y"
	proc.SetRequestEditor(processor.RequestEditorFunc(func(_ domain.RequestInfo, confirm func(*rulespec.RequestEdit), _ func()) {
		confirm(&rulespec.RequestEdit{URL: &moved})
	}))

	resp, err := fi.Fetch(context.Background(), url, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, readAll(t, resp))

	logs := ins.GetLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, url, logs[0].URL)
	assert.Equal(t, 200, logs[0].Status)
}

func TestFetchResponseEditScenario(t *testing.T) {
	u, ins, proc, fi := setup(t)
	url := u.srv.URL + "/api/y"
	ins.SetResponseIntercept(url, true)

	proc.SetResponseEditor(processor.ResponseEditorFunc(func(_ domain.ResponseContext, orig domain.Payload, confirm func(json.RawMessage), _ func()) {
		assert.JSONEq(t, `{"ok":true}`, orig.Raw)
		confirm(json.RawMessage(`{"ok":false}`))
	}))

	resp, err := fi.Fetch(context.Background(), url, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, `{"ok":false}`, readAll(t, resp))

	logs := ins.GetLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.PhaseResponse, logs[0].Phase)
	assert.JSONEq(t, `{"ok":false}`, logs[0].ResponsePayload.Raw)
}

func TestFetchBothPhasesSingleEntry(t *testing.T) {
	u, ins, proc, fi := setup(t)
	url := u.srv.URL + "/api/y"
	ins.SetRequestIntercept(url, true)
	ins.SetResponseIntercept(url, true)

	proc.SetRequestEditor(processor.RequestEditorFunc(func(_ domain.RequestInfo, confirm func(*rulespec.RequestEdit), _ func()) {
		confirm(nil)
	}))
	proc.SetResponseEditor(processor.ResponseEditorFunc(func(_ domain.ResponseContext, _ domain.Payload, confirm func(json.RawMessage), _ func()) {
		confirm(json.RawMessage(`{"both":true}`))
	}))

	resp, err := fi.Fetch(context.Background(), url, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"both":true}`, readAll(t, resp))

	logs := ins.GetLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.PhaseBoth, logs[0].Phase)
}

func TestFetchCancelShortCircuits(t *testing.T) {
	u, ins, proc, fi := setup(t)
	url := u.srv.URL + "/api/x"
	ins.SetRequestIntercept(url, true)
	proc.SetRequestEditor(processor.RequestEditorFunc(func(_ domain.RequestInfo, _ func(*rulespec.RequestEdit), cancel func()) {
		cancel()
	}))

	resp, err := fi.Fetch(context.Background(), url, nil)
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, domain.ErrRequestCancelled))
	assert.Equal(t, int32(0), u.calls.Load())

	logs := ins.GetLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, 0, logs[0].Status)
}

func TestFetchTransportError(t *testing.T) {
	u, ins, _, fi := setup(t)
	url := u.srv.URL + "/api/x"
	u.srv.Close()

	_, err := fi.Fetch(context.Background(), url, nil)
	require.Error(t, err)

	logs := ins.GetLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, 0, logs[0].Status)
	assert.Equal(t, domain.PayloadError, logs[0].ResponsePayload.Kind)
	assert.NotEmpty(t, logs[0].ResponsePayload.Raw)
}

func TestFetchBinaryResponse(t *testing.T) {
	u, ins, _, fi := setup(t)

	resp, err := fi.Fetch(context.Background(), u.srv.URL+"/img", nil)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", readAll(t, resp))
	assert.Equal(t, domain.PayloadBinary, ins.GetLogs()[0].ResponsePayload.Kind)
}

func TestFetchTamper(t *testing.T) {
	u, ins, _, fi := setup(t)
	url := u.srv.URL + "/api/t"
	ins.SetResponseTamper(url, &rulespec.ResponseTamper{Status: 202, Data: json.RawMessage(`{"mock":true}`)})

	resp, err := fi.Fetch(context.Background(), url, nil)
	require.NoError(t, err)
	assert.Equal(t, 202, resp.StatusCode)
	assert.Equal(t, `{"mock":true}`, readAll(t, resp))
	assert.Equal(t, int32(0), u.calls.Load())
	assert.Equal(t, domain.PhaseResponse, ins.GetLogs()[0].Phase)
}

func TestFetchClientAndDestroy(t *testing.T) {
	u, ins, _, fi := setup(t)

	resp, err := fi.Client().Get(u.srv.URL + "/c")
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"/c"}`, readAll(t, resp))
	require.Len(t, ins.GetLogs(), 1)

	fi.Destroy()
	resp, err = fi.Client().Get(u.srv.URL + "/c")
	require.NoError(t, err)
	readAll(t, resp)
	assert.Len(t, ins.GetLogs(), 1, "销毁后不再记录")
}
