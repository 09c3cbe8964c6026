// Package replay 并发重放：以相同参数重新发出 N 次调用，每次调用带独立的重放序号
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"

	"minidebug/internal/fetch"
	"minidebug/internal/logger"
	"minidebug/internal/processor"
	"minidebug/internal/transformer"
	"minidebug/pkg/domain"
)

const (
	DefaultMaxCount      = 100
	DefaultMaxIntervalMS = 5000
)

// Fetcher 发出 fetch 形态调用，通常为 fetch.Interceptor
type Fetcher interface {
	Fetch(ctx context.Context, url string, init *fetch.Init) (*http.Response, error)
}

// Params 重放参数
type Params struct {
	URL        string          `json:"url"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params,omitempty"` // JSON 对象，GET 作为查询参数，其余作为请求体
	Count      int             `json:"count"`
	IntervalMS int             `json:"intervalMs"`
}

// Summary 重放结果，未产生传输错误即为成功
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Options 重放限制
type Options struct {
	MaxCount      int
	MaxIntervalMS int
	Logger        logger.Logger
}

// Runner 重放执行器
type Runner struct {
	fetcher       Fetcher
	maxCount      int
	maxIntervalMS int
	log           logger.Logger
}

// New 创建重放执行器
func New(f Fetcher, opts Options) *Runner {
	if opts.MaxCount <= 0 {
		opts.MaxCount = DefaultMaxCount
	}
	if opts.MaxIntervalMS <= 0 {
		opts.MaxIntervalMS = DefaultMaxIntervalMS
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Runner{fetcher: f, maxCount: opts.MaxCount, maxIntervalMS: opts.MaxIntervalMS, log: opts.Logger}
}

// Validate 校验重放参数
func (r *Runner) Validate(p Params) error {
	if p.URL == "" {
		return fmt.Errorf("url is required: %w", domain.ErrInvalidReplay)
	}
	if p.Count < 1 || p.Count > r.maxCount {
		return fmt.Errorf("count %d out of range 1..%d: %w", p.Count, r.maxCount, domain.ErrInvalidReplay)
	}
	if p.IntervalMS < 0 || p.IntervalMS > r.maxIntervalMS {
		return fmt.Errorf("interval %dms out of range 0..%d: %w", p.IntervalMS, r.maxIntervalMS, domain.ErrInvalidReplay)
	}
	if len(p.Params) > 0 && !transformer.IsEmptyJSON(p.Params) {
		if res := gjson.ParseBytes(p.Params); !gjson.ValidBytes(p.Params) || !res.IsObject() {
			return fmt.Errorf("params must be a JSON object: %w", domain.ErrInvalidReplay)
		}
	}
	return nil
}

// Build 构造单次调用的地址和参数
func Build(p Params) (string, *fetch.Init, error) {
	method := strings.ToUpper(p.Method)
	if method == "" {
		method = http.MethodGet
	}
	init := &fetch.Init{
		Method:  method,
		Headers: map[string]string{"Content-Type": "application/json"},
	}

	if method == http.MethodGet {
		u, err := transformer.BuildQueryURL(p.URL, p.Params)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", domain.ErrInvalidReplay, err)
		}
		return u, init, nil
	}

	if !transformer.IsEmptyJSON(p.Params) {
		init.Body = append([]byte(nil), p.Params...)
	}
	return p.URL, init, nil
}

// Run 按间隔依次发出 Count 次调用并等待全部完成
func (r *Runner) Run(ctx context.Context, p Params) (Summary, error) {
	if err := r.Validate(p); err != nil {
		return Summary{}, err
	}
	target, init, err := Build(p)
	if err != nil {
		return Summary{}, err
	}

	r.log.Info("[Replay] 开始并发重放", "url", target, "method", init.Method, "count", p.Count, "intervalMs", p.IntervalMS)

	var succeeded atomic.Int32
	var g errgroup.Group
	interval := time.Duration(p.IntervalMS) * time.Millisecond

	launched := 0
	for i := 1; i <= p.Count; i++ {
		if i > 1 && interval > 0 {
			t := time.NewTimer(interval)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
			}
			if ctx.Err() != nil {
				break
			}
		}

		tag := i
		launched++
		g.Go(func() error {
			if err := r.once(processor.WithReplay(ctx, tag), target, init); err != nil {
				r.log.Warn("[Replay] 重放调用失败", "tag", tag, "error", err.Error())
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	s := Summary{Total: p.Count, Succeeded: int(succeeded.Load())}
	s.Failed = s.Total - s.Succeeded
	r.log.Info("[Replay] 并发重放完成", "url", target, "succeeded", s.Succeeded, "failed", s.Failed, "launched", launched)
	if launched < p.Count {
		return s, ctx.Err()
	}
	return s, nil
}

// once 发出一次调用并读完响应体
func (r *Runner) once(ctx context.Context, target string, init *fetch.Init) error {
	resp, err := r.fetcher.Fetch(ctx, target, init)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// ParamsFromEntry 从日志条目提取可重放的参数：GET 取查询参数，其余取 JSON 请求体
func ParamsFromEntry(e domain.LogEntry) json.RawMessage {
	if strings.EqualFold(e.Method, http.MethodGet) {
		q, err := url.ParseQuery(strings.TrimPrefix(transformer.QueryString(e.URL), "?"))
		if err != nil || len(q) == 0 {
			return json.RawMessage(`{}`)
		}
		obj := "{}"
		for k, vs := range q {
			if len(vs) == 0 {
				continue
			}
			// 键名中的 . * ? 需要转义
			obj, _ = sjson.Set(obj, escapeKey(k), vs[0])
		}
		return json.RawMessage(obj)
	}
	if e.RequestPayload.IsJSON() && gjson.Parse(e.RequestPayload.Raw).IsObject() {
		return json.RawMessage(e.RequestPayload.Raw)
	}
	return json.RawMessage(`{}`)
}

func escapeKey(k string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)
	return r.Replace(k)
}
