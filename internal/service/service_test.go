package service_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minidebug/internal/approval"
	"minidebug/internal/config"
	"minidebug/internal/fetch"
	"minidebug/internal/logger"
	"minidebug/internal/replay"
	"minidebug/internal/service"
	"minidebug/internal/storage/db"
	"minidebug/internal/storage/model"
	"minidebug/internal/storage/repo"
	"minidebug/pkg/domain"
	"minidebug/pkg/rulespec"
)

func upstream(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Method", r.Method)
		if len(body) > 0 {
			_, _ = w.Write(body)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newService(t *testing.T, srv *httptest.Server, audit chan domain.LogEntry) *service.Service {
	s := service.New(service.Options{
		Config:   config.NewConfig(),
		Logger:   logger.NewNop(),
		Base:     srv.Client().Transport,
		Audit:    audit,
		Headless: true,
	})
	t.Cleanup(s.Destroy)
	return s
}

func waitPending(t *testing.T, s *service.Service) approval.PendingItem {
	t.Helper()
	select {
	case item := <-s.PendingNotify():
		return item
	case <-time.After(5 * time.Second):
		t.Fatal("没有等到待审批项")
		return approval.PendingItem{}
	}
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestHeadlessRequestApproval(t *testing.T) {
	srv := upstream(t)
	s := newService(t, srv, nil)
	url := srv.URL + "/api/x"
	s.SetRequestIntercept(url, true)

	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := s.Fetch(context.Background(), url, &fetch.Init{Method: "POST", Body: []byte(`{"a":1}`)})
		done <- result{resp, err}
	}()

	item := waitPending(t, s)
	assert.Equal(t, approval.StageRequest, item.Stage)
	assert.Equal(t, url, item.URL)
	require.Len(t, s.Pending(), 1)

	body := `{"a":2}`
	require.NoError(t, s.ApproveRequest(item.ID, &rulespec.RequestEdit{Body: &body}))

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, `{"a":2}`, readAll(t, r.resp))
	assert.Empty(t, s.Pending())

	logs := s.GetLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.PhaseRequest, logs[0].Phase)
	assert.Equal(t, `{"a":2}`, logs[0].RequestPayload.Raw)
}

func TestHeadlessResponseApprovalXHR(t *testing.T) {
	srv := upstream(t)
	s := newService(t, srv, nil)
	url := srv.URL + "/api/y"
	s.SetResponseIntercept(url, true)

	req := s.NewXHR()
	require.NoError(t, req.Open("GET", url))
	require.NoError(t, req.Send(context.Background(), nil))

	item := waitPending(t, s)
	assert.Equal(t, approval.StageResponse, item.Stage)
	assert.Equal(t, domain.TransportXHR, item.Transport)

	require.NoError(t, s.ApproveResponse(item.ID, approval.ResponseDecision{
		Patches: []rulespec.JSONPatchOp{{Op: "add", Path: "/edited", Value: true}},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, req.Wait(ctx))
	text, err := req.ResponseText()
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"edited":true}`, text)
	assert.Equal(t, 200, req.Status())
}

func TestHeadlessReject(t *testing.T) {
	srv := upstream(t)
	s := newService(t, srv, nil)
	url := srv.URL + "/api/x"
	s.SetRequestIntercept(url, true)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Fetch(context.Background(), url, nil)
		errc <- err
	}()

	item := waitPending(t, s)
	require.NoError(t, s.Reject(item.ID))
	assert.ErrorIs(t, <-errc, domain.ErrRequestCancelled)
	assert.Equal(t, 0, s.GetLogs()[0].Status)
}

func TestAuditStream(t *testing.T) {
	srv := upstream(t)
	audit := make(chan domain.LogEntry, 4)
	s := newService(t, srv, audit)

	resp, err := s.Client().Get(srv.URL + "/api/a")
	require.NoError(t, err)
	readAll(t, resp)

	select {
	case e := <-audit:
		assert.Equal(t, srv.URL+"/api/a", e.URL)
		assert.Equal(t, 200, e.Status)
	case <-time.After(time.Second):
		t.Fatal("审计通道没有收到日志")
	}
}

func TestReplay(t *testing.T) {
	srv := upstream(t)
	s := newService(t, srv, nil)
	url := srv.URL + "/api/z"
	// 重放调用不进入审批队列
	s.SetRequestIntercept(url, true)

	sum, err := s.Replay(context.Background(), replay.Params{URL: url, Method: "POST", Params: json.RawMessage(`{"n":1}`), Count: 3})
	require.NoError(t, err)
	assert.Equal(t, replay.Summary{Total: 3, Succeeded: 3}, sum)
	assert.Empty(t, s.Pending())
	assert.Len(t, s.GetLogs(), 3)

	_, err = s.Replay(context.Background(), replay.Params{URL: url, Count: 101})
	assert.ErrorIs(t, err, domain.ErrInvalidReplay)
}

func TestRulesAndUnique(t *testing.T) {
	srv := upstream(t)
	s := newService(t, srv, nil)
	url := srv.URL + "/api/t"

	s.SetResponseTamper(url, &rulespec.ResponseTamper{Data: json.RawMessage(`{"fake":1}`)})
	resp, err := s.Fetch(context.Background(), url, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"fake":1}`, readAll(t, resp))

	require.Len(t, s.Rules(), 1)
	assert.GreaterOrEqual(t, s.RuleStats().Matched, int64(1))
	assert.Contains(t, s.GetUniqueRequests(), url)

	s.ClearUniqueRequests()
	assert.Empty(t, s.Rules())
	assert.Empty(t, s.GetUniqueRequests())
	assert.Len(t, s.GetLogs(), 1, "清空唯一请求不影响日志")

	s.ClearLogs()
	assert.Empty(t, s.GetLogs())
}

func TestListeners(t *testing.T) {
	srv := upstream(t)
	s := newService(t, srv, nil)

	got := make(chan any, 4)
	id := s.AddListener(domain.EventLogAdded, func(p any) { got <- p })

	resp, err := s.Fetch(context.Background(), srv.URL+"/api/l", nil)
	require.NoError(t, err)
	readAll(t, resp)

	select {
	case p := <-got:
		e, ok := p.(domain.LogEntry)
		require.True(t, ok)
		assert.Equal(t, srv.URL+"/api/l", e.URL)
	case <-time.After(time.Second):
		t.Fatal("监听器没有收到 logAdded")
	}

	assert.True(t, s.RemoveListener(domain.EventLogAdded, id))
	assert.False(t, s.RemoveListener(domain.EventLogAdded, id))
}

func TestSettings(t *testing.T) {
	srv := upstream(t)

	t.Run("未配置存储", func(t *testing.T) {
		s := newService(t, srv, nil)
		_, err := s.Settings(context.Background())
		assert.ErrorIs(t, err, domain.ErrDatabaseNotInitialized)
		assert.ErrorIs(t, s.SetSettings(context.Background(), map[string]string{"a": "b"}), domain.ErrDatabaseNotInitialized)
	})

	t.Run("内存存储", func(t *testing.T) {
		gdb, err := db.New(db.Options{Name: db.MemoryName})
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close(gdb) })
		require.NoError(t, db.Migrate(gdb, model.AllModels()...))

		s := service.New(service.Options{Settings: repo.NewSettingsRepo(gdb)})
		t.Cleanup(s.Destroy)

		ctx := context.Background()
		all, err := s.Settings(ctx)
		require.NoError(t, err)
		assert.Equal(t, "bottom-right", all[model.SettingKeyPanelPosition])

		require.NoError(t, s.SetSettings(ctx, map[string]string{model.SettingKeyTheme: "dark", "custom": "1"}))
		all, err = s.Settings(ctx)
		require.NoError(t, err)
		assert.Equal(t, "dark", all[model.SettingKeyTheme])
		assert.Equal(t, "1", all["custom"])
	})
}

func TestDestroy(t *testing.T) {
	srv := upstream(t)
	s := newService(t, srv, nil)
	url := srv.URL + "/api/x"
	s.SetRequestIntercept(url, true)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Fetch(context.Background(), url, nil)
		errc <- err
	}()
	waitPending(t, s)

	s.Destroy()
	assert.ErrorIs(t, <-errc, domain.ErrRequestCancelled, "销毁时待审批项被拒绝")

	resp, err := s.Fetch(context.Background(), url, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, readAll(t, resp))
	assert.Empty(t, s.GetLogs())
	s.Destroy()
}
