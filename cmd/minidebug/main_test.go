package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute 以给定参数运行根命令，返回标准输出
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	fetchMethod, fetchData, fetchHeaders = "GET", "", nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--log-level", "disabled"}, args...))
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "minidebug "+version+"\n", out)
}

func TestFetchCommand(t *testing.T) {
	var gotMethod, gotHeader string
	var gotBody []byte
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Trace")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer up.Close()

	tests := []struct {
		name       string
		args       []string
		wantMethod string
		wantBody   string
	}{
		{"默认 GET", []string{"fetch", up.URL + "/a?x=1"}, http.MethodGet, ""},
		{"POST 带请求体和请求头", []string{"fetch", up.URL + "/b", "-X", "POST", "-d", `{"n":1}`, "-H", "X-Trace: abc"}, http.MethodPost, `{"n":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.NoError(t, err)

			var resp struct {
				Success bool `json:"success"`
				Data    struct {
					URL             string          `json:"url"`
					Method          string          `json:"method"`
					Status          int             `json:"status"`
					ResponsePayload json.RawMessage `json:"responsePayload"`
				} `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.True(t, resp.Success)
			assert.Equal(t, tt.args[1], resp.Data.URL)
			assert.Equal(t, tt.wantMethod, resp.Data.Method)
			assert.Equal(t, 200, resp.Data.Status)
			assert.JSONEq(t, `{"ok":true}`, string(resp.Data.ResponsePayload))

			assert.Equal(t, tt.wantMethod, gotMethod)
			assert.Equal(t, tt.wantBody, string(gotBody))
		})
	}
	assert.Equal(t, "abc", gotHeader)
}

func TestFetchCommandTransportError(t *testing.T) {
	up := httptest.NewServer(http.NotFoundHandler())
	url := up.URL
	up.Close()

	out, err := execute(t, "fetch", url)
	require.Error(t, err)

	var resp struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
		Data    struct {
			Status int `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "INTERNAL", resp.Code)
	assert.Zero(t, resp.Data.Status)
}

func TestFetchCommandRequiresURL(t *testing.T) {
	_, err := execute(t, "fetch")
	assert.Error(t, err)
}
