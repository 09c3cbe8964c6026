package rules_test

import (
	"testing"

	"minidebug/internal/rules"
	"minidebug/pkg/domain"
	"minidebug/pkg/rulespec"
)

func TestStoreToggle(t *testing.T) {
	tests := []struct {
		name    string
		ops     func(s *rules.Store)
		wantHas bool
		want    domain.InterceptRule
	}{
		{
			name:    "开启请求拦截",
			ops:     func(s *rules.Store) { s.SetRequestLive("/api/x", "GET", true) },
			wantHas: true,
			want:    domain.InterceptRule{URL: "/api/x", Method: "GET", RequestLive: true},
		},
		{
			name: "两个开关同时开启",
			ops: func(s *rules.Store) {
				s.SetRequestLive("/api/x", "POST", true)
				s.SetResponseLive("/api/x", "", true)
			},
			wantHas: true,
			want:    domain.InterceptRule{URL: "/api/x", Method: "POST", RequestLive: true, ResponseLive: true},
		},
		{
			name: "全部关闭后删除规则",
			ops: func(s *rules.Store) {
				s.SetRequestLive("/api/x", "GET", true)
				s.SetResponseLive("/api/x", "GET", true)
				s.SetRequestLive("/api/x", "GET", false)
				s.SetResponseLive("/api/x", "GET", false)
			},
			wantHas: false,
		},
		{
			name: "关闭不存在的规则不创建",
			ops: func(s *rules.Store) {
				s.SetResponseLive("/api/x", "GET", false)
			},
			wantHas: false,
		},
		{
			name: "篡改内容使规则保持存在",
			ops: func(s *rules.Store) {
				s.SetResponseTamper("/api/x", "GET", &rulespec.ResponseTamper{Status: 201})
				s.SetRequestLive("/api/x", "GET", false)
			},
			wantHas: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := rules.New()
			tt.ops(s)

			got, ok := s.Get("/api/x")
			if ok != tt.wantHas {
				t.Fatalf("Has = %v, want %v", ok, tt.wantHas)
			}
			if tt.want.URL != "" && (got.URL != tt.want.URL || got.Method != tt.want.Method ||
				got.RequestLive != tt.want.RequestLive || got.ResponseLive != tt.want.ResponseLive) {
				t.Errorf("rule = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStoreExactURL(t *testing.T) {
	s := rules.New()
	s.SetRequestLive("/api/x?a=1", "GET", true)

	if s.Has("/api/x") {
		t.Error("URL without query should not match")
	}
	if !s.Has("/api/x?a=1") {
		t.Error("exact URL should match")
	}
}

func TestStoreAllAndClear(t *testing.T) {
	s := rules.New()
	s.SetRequestLive("/b", "GET", true)
	s.SetResponseLive("/a", "GET", true)

	all := s.All()
	if len(all) != 2 || all[0].URL != "/a" || all[1].URL != "/b" {
		t.Fatalf("All() = %+v", all)
	}

	all[0].RequestLive = true
	if r, _ := s.Get("/a"); r.RequestLive {
		t.Error("All() should return a copy")
	}

	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len() = %d after Clear", s.Len())
	}
}

func TestStoreStats(t *testing.T) {
	s := rules.New()
	s.SetRequestLive("/a", "GET", true)

	s.Lookup("/a")
	s.Lookup("/a")
	s.Lookup("/missing")

	st := s.GetStats()
	if st.Total != 3 || st.Matched != 2 || st.ByURL["/a"] != 2 {
		t.Errorf("stats = %+v", st)
	}

	s.ResetStats()
	if st := s.GetStats(); st.Total != 0 || len(st.ByURL) != 0 {
		t.Errorf("stats after reset = %+v", st)
	}
}
