package api_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minidebug/pkg/api"
	"minidebug/pkg/domain"
)

func TestResponseEnvelope(t *testing.T) {
	entry := domain.LogEntry{ID: "e1", URL: "/api/x", Status: 0}

	tests := []struct {
		name string
		resp any
		want string
	}{
		{"成功携带数据", api.OK(map[string]int{"n": 1}), `{"success":true,"data":{"n":1}}`},
		{"失败不带数据", api.Fail(fmt.Errorf("edit: %w", domain.ErrRequestCancelled)), `{"success":false,"code":"REQUEST_CANCELLED","message":"edit: request cancelled by user"}`},
		{"未知错误映射为内部错误", api.Fail(errors.New("dial tcp: refused")), `{"success":false,"code":"INTERNAL","message":"dial tcp: refused"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.resp)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}

	t.Run("失败携带日志条目", func(t *testing.T) {
		r := api.FailWith(errors.New("boom"), entry)
		assert.False(t, r.Success)
		assert.Equal(t, "INTERNAL", string(r.Code))
		require.NotNil(t, r.Data)
		assert.Equal(t, "e1", r.Data.ID)
	})
}
