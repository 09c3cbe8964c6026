// Package xhr 事件驱动形态的请求对象：open 设置方法和地址，send 发出请求，完成时派发事件
package xhr

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"minidebug/internal/logger"
	"minidebug/internal/pool"
	"minidebug/internal/processor"
)

// DefaultTamperDelay 静态响应篡改的默认完成延迟
const DefaultTamperDelay = 10 * time.Millisecond

// Options 拦截器配置
type Options struct {
	Base        http.RoundTripper // 真实传输，nil 时使用 http.DefaultTransport
	Pool        *pool.Pool        // 真实请求的工作池，nil 时每个请求单独起协程
	TamperDelay time.Duration     // < 0 时为 0
	Logger      logger.Logger
}

// Interceptor XHR 拦截器，NewRequest 是替代的构造函数
type Interceptor struct {
	base        http.RoundTripper
	proc        *processor.Processor
	pool        *pool.Pool
	tamperDelay time.Duration
	log         logger.Logger
	destroyed   atomic.Bool
}

// New 创建 XHR 拦截器
func New(proc *processor.Processor, opts Options) *Interceptor {
	if opts.Base == nil {
		opts.Base = http.DefaultTransport
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Pool == nil {
		opts.Pool = pool.New(0, 0)
	}
	if opts.TamperDelay < 0 {
		opts.TamperDelay = 0
	}
	return &Interceptor{
		base:        opts.Base,
		proc:        proc,
		pool:        opts.Pool,
		tamperDelay: opts.TamperDelay,
		log:         opts.Logger,
	}
}

// NewRequest 创建请求对象，初始状态为 Unsent
func (i *Interceptor) NewRequest() *Request {
	return &Request{
		ic:        i,
		state:     Unsent,
		header:    make(http.Header),
		listeners: make(map[Event][]Listener),
		done:      make(chan struct{}),
	}
}

// Destroy 之后发出的请求直接走原始传输，不再记录
func (i *Interceptor) Destroy() {
	if i.destroyed.CompareAndSwap(false, true) {
		i.log.Info("[XHR] 拦截器已销毁，恢复直连")
	}
}

// submit 将真实请求交给工作池，工作池拒绝时单独起协程
func (i *Interceptor) submit(fn func()) {
	if !i.pool.Submit(fn) {
		i.log.Warn("[XHR] 工作池拒绝任务，单独执行请求")
		go fn()
	}
}

// roundTrip 在工作池中发出真实请求并读取完整响应体
func (i *Interceptor) roundTrip(ctx context.Context, req *http.Request) (*processor.Response, error) {
	type result struct {
		resp *processor.Response
		err  error
	}
	ch := make(chan result, 1)

	i.submit(func() {
		resp, err := i.base.RoundTrip(req)
		if err != nil {
			ch <- result{err: err}
			return
		}
		ch <- result{resp: readResponse(resp)}
	})

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
