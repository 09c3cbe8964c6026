// Package service 组装拦截子系统、两种拦截器、审批队列与并发重放，对外提供统一的控制接口
package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"minidebug/internal/approval"
	"minidebug/internal/audit"
	"minidebug/internal/bus"
	"minidebug/internal/config"
	"minidebug/internal/fetch"
	"minidebug/internal/inspector"
	"minidebug/internal/logger"
	"minidebug/internal/pool"
	"minidebug/internal/processor"
	"minidebug/internal/replay"
	"minidebug/internal/rules"
	"minidebug/internal/storage/repo"
	"minidebug/internal/xhr"
	"minidebug/pkg/domain"
	"minidebug/pkg/rulespec"
)

// Options 服务依赖
type Options struct {
	Config   *config.Config
	Logger   logger.Logger
	Base     http.RoundTripper    // 真实传输，nil 时使用 http.DefaultTransport
	Settings *repo.SettingsRepo   // 面板设置存储，可为空
	Audit    chan domain.LogEntry // 审计通道，可为空
	Headless bool                 // 使用审批队列作为实时编辑器
}

// Service 控制接口实现
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	ins      *inspector.Inspector
	proc     *processor.Processor
	fetch    *fetch.Interceptor
	xhr      *xhr.Interceptor
	pool     *pool.Pool
	queue    *approval.Queue
	replay   *replay.Runner
	auditor  *audit.Auditor
	settings *repo.SettingsRepo

	destroyOnce sync.Once
}

// New 创建服务并启动 XHR 工作池
func New(opts Options) *Service {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}
	l := opts.Logger
	if l == nil {
		l = logger.NewNop()
	}
	ic := cfg.Inspector

	ins := inspector.New(inspector.Config{LogCapacity: ic.LogCapacity, Logger: l})
	proc := processor.New(ins, l)

	p := pool.New(ic.XHRConcurrency, ic.XHRQueue)
	p.SetLogger(l)
	p.Start(context.Background())

	fi := fetch.New(opts.Base, proc, l)
	xi := xhr.New(proc, xhr.Options{
		Base:        opts.Base,
		Pool:        p,
		TamperDelay: time.Duration(ic.TamperDelayMS) * time.Millisecond,
		Logger:      l,
	})

	queue := approval.New(approval.Options{
		Capacity: ic.PendingCapacity,
		Timeout:  time.Duration(ic.PendingTimeoutMS) * time.Millisecond,
		Logger:   l,
	})
	if opts.Headless {
		proc.SetRequestEditor(queue)
		proc.SetResponseEditor(queue)
	}

	aud := audit.New(opts.Audit, l)
	aud.Attach(ins)

	s := &Service{
		cfg:      cfg,
		log:      l,
		ins:      ins,
		proc:     proc,
		fetch:    fi,
		xhr:      xi,
		pool:     p,
		queue:    queue,
		auditor:  aud,
		settings: opts.Settings,
		replay: replay.New(fi, replay.Options{
			MaxCount:      cfg.Replay.MaxCount,
			MaxIntervalMS: cfg.Replay.MaxIntervalMS,
			Logger:        l,
		}),
	}
	l.Info("[Service] 服务已启动", "headless", opts.Headless, "logCapacity", ic.LogCapacity)
	return s
}

// SetRequestEditor 设置请求编辑器，覆盖审批队列
func (s *Service) SetRequestEditor(e processor.RequestEditor) { s.proc.SetRequestEditor(e) }

// SetResponseEditor 设置响应编辑器，覆盖审批队列
func (s *Service) SetResponseEditor(e processor.ResponseEditor) { s.proc.SetResponseEditor(e) }

// SetRequestIntercept 开关请求实时拦截
func (s *Service) SetRequestIntercept(url string, enabled bool) domain.InterceptRule {
	return s.ins.SetRequestIntercept(url, enabled)
}

// SetResponseIntercept 开关响应实时拦截
func (s *Service) SetResponseIntercept(url string, enabled bool) domain.InterceptRule {
	return s.ins.SetResponseIntercept(url, enabled)
}

// SetRequestTamper 设置静态请求篡改，nil 清除
func (s *Service) SetRequestTamper(url string, t *rulespec.RequestTamper) domain.InterceptRule {
	return s.ins.SetRequestTamper(url, t)
}

// SetResponseTamper 设置静态响应篡改，nil 清除
func (s *Service) SetResponseTamper(url string, t *rulespec.ResponseTamper) domain.InterceptRule {
	return s.ins.SetResponseTamper(url, t)
}

// Rules 全部规则
func (s *Service) Rules() []domain.InterceptRule { return s.ins.Rules() }

// RuleStats 规则查询统计
func (s *Service) RuleStats() rules.Stats { return s.ins.RuleStats() }

// GetLogs 日志快照
func (s *Service) GetLogs() []domain.LogEntry { return s.ins.GetLogs() }

// ClearLogs 清空日志
func (s *Service) ClearLogs() { s.ins.ClearLogs() }

// GetUniqueRequests 唯一请求快照
func (s *Service) GetUniqueRequests() map[string]domain.UniqueRequest {
	return s.ins.GetUniqueRequests()
}

// ClearUniqueRequests 清空唯一请求和全部规则
func (s *Service) ClearUniqueRequests() { s.ins.ClearUniqueRequests() }

// AddListener 注册事件监听
func (s *Service) AddListener(event string, fn bus.Listener) bus.ListenerID {
	return s.ins.AddListener(event, fn)
}

// RemoveListener 移除事件监听
func (s *Service) RemoveListener(event string, id bus.ListenerID) bool {
	return s.ins.RemoveListener(event, id)
}

// Client 经过拦截的 http.Client
func (s *Service) Client() *http.Client { return s.fetch.Client() }

// Fetch 以 fetch 形态发出调用
func (s *Service) Fetch(ctx context.Context, url string, init *fetch.Init) (*http.Response, error) {
	return s.fetch.Fetch(ctx, url, init)
}

// NewXHR 创建 XHR 形态的请求对象
func (s *Service) NewXHR() *xhr.Request { return s.xhr.NewRequest() }

// Replay 并发重放
func (s *Service) Replay(ctx context.Context, p replay.Params) (replay.Summary, error) {
	return s.replay.Run(ctx, p)
}

// Pending 待审批项
func (s *Service) Pending() []approval.PendingItem { return s.queue.List() }

// PendingNotify 新审批项通知
func (s *Service) PendingNotify() <-chan approval.PendingItem { return s.queue.Notify() }

// ApproveRequest 确认请求审批项
func (s *Service) ApproveRequest(id string, edit *rulespec.RequestEdit) error {
	return s.queue.ApproveRequest(id, edit)
}

// ApproveResponse 确认响应审批项
func (s *Service) ApproveResponse(id string, d approval.ResponseDecision) error {
	return s.queue.ApproveResponse(id, d)
}

// Reject 拒绝审批项
func (s *Service) Reject(id string) error { return s.queue.Reject(id) }

// Settings 面板设置，未保存的项取默认值
func (s *Service) Settings(ctx context.Context) (map[string]string, error) {
	if s.settings == nil {
		return nil, domain.ErrDatabaseNotInitialized
	}
	out, err := s.settings.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	for k, v := range s.settings.Panel(ctx) {
		out[k] = v
	}
	return out, nil
}

// SetSettings 批量保存面板设置
func (s *Service) SetSettings(ctx context.Context, kvs map[string]string) error {
	if s.settings == nil {
		return domain.ErrDatabaseNotInitialized
	}
	return s.settings.SetMultiple(ctx, kvs)
}

// PoolStats XHR 工作池统计
func (s *Service) PoolStats() pool.Stats {
	return s.pool.Stats()
}

// Destroy 恢复直连并释放资源：拦截器转为直连，待审批项全部拒绝，工作池停止
func (s *Service) Destroy() {
	s.destroyOnce.Do(func() {
		s.fetch.Destroy()
		s.xhr.Destroy()
		s.queue.Close()
		s.auditor.Detach()
		s.ins.Destroy()
		s.pool.Stop()
		s.log.Info("[Service] 服务已销毁")
	})
}
