// Package inspector 拦截子系统：持有规则、日志与唯一请求索引，并发布变更事件
package inspector

import (
	"sync"

	"minidebug/internal/bus"
	"minidebug/internal/logger"
	"minidebug/internal/logstore"
	"minidebug/internal/rules"
	"minidebug/internal/unique"
	"minidebug/pkg/domain"
	"minidebug/pkg/rulespec"
)

// Inspector 拦截子系统实例
//
// 所有复合变更（追加日志并更新索引、切换规则并刷新索引、清空）在同一把锁内完成，
// 事件在锁内按变更顺序入队，释放锁后再投递。
type Inspector struct {
	mu        sync.Mutex
	destroyed bool

	rules  *rules.Store
	logs   *logstore.Store
	unique *unique.Index
	bus    *bus.Bus
	log    logger.Logger
}

// Config 拦截子系统配置
type Config struct {
	LogCapacity int
	Logger      logger.Logger
}

// New 创建拦截子系统
func New(cfg Config) *Inspector {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Inspector{
		rules:  rules.New(),
		logs:   logstore.New(cfg.LogCapacity),
		unique: unique.New(),
		bus:    bus.New(cfg.Logger),
		log:    cfg.Logger,
	}
}

// SetRequestIntercept 开关请求实时拦截
func (i *Inspector) SetRequestIntercept(url string, enabled bool) domain.InterceptRule {
	return i.mutateRule(url, func(method string) domain.InterceptRule {
		return i.rules.SetRequestLive(url, method, enabled)
	})
}

// SetResponseIntercept 开关响应实时拦截
func (i *Inspector) SetResponseIntercept(url string, enabled bool) domain.InterceptRule {
	return i.mutateRule(url, func(method string) domain.InterceptRule {
		return i.rules.SetResponseLive(url, method, enabled)
	})
}

// SetRequestTamper 设置静态请求篡改，nil 表示移除
func (i *Inspector) SetRequestTamper(url string, t *rulespec.RequestTamper) domain.InterceptRule {
	return i.mutateRule(url, func(method string) domain.InterceptRule {
		return i.rules.SetRequestTamper(url, method, t)
	})
}

// SetResponseTamper 设置静态响应篡改，nil 表示移除
func (i *Inspector) SetResponseTamper(url string, t *rulespec.ResponseTamper) domain.InterceptRule {
	return i.mutateRule(url, func(method string) domain.InterceptRule {
		return i.rules.SetResponseTamper(url, method, t)
	})
}

// mutateRule 修改规则并在已有唯一请求条目时发出刷新事件
func (i *Inspector) mutateRule(url string, fn func(method string) domain.InterceptRule) domain.InterceptRule {
	i.mu.Lock()
	if i.destroyed {
		i.mu.Unlock()
		i.log.Warn("拦截子系统已销毁，忽略规则变更", "url", url)
		return domain.InterceptRule{URL: url}
	}

	// 规则的方法取自首次观察到的请求，仅用于展示
	method := ""
	if u, ok := i.unique.Get(url); ok {
		method = u.Method
	}
	rule := fn(method)

	var current *domain.InterceptRule
	if !rule.IsEmpty() {
		current = &rule
	}
	if i.unique.SyncRule(url, current) {
		i.bus.Enqueue(domain.EventUniqueRequestsUpdated, i.unique.Snapshot())
	}
	i.mu.Unlock()

	i.bus.Drain()
	i.log.Debug("规则已更新", "url", url, "requestLive", rule.RequestLive, "responseLive", rule.ResponseLive)
	return rule
}

// Rule 查询当前规则，计入规则命中统计
func (i *Inspector) Rule(url string) (domain.InterceptRule, bool) {
	return i.rules.Lookup(url)
}

// HasRule 是否存在规则
func (i *Inspector) HasRule(url string) bool {
	return i.rules.Has(url)
}

// Rules 返回全部规则
func (i *Inspector) Rules() []domain.InterceptRule {
	return i.rules.All()
}

// RuleStats 返回规则命中统计
func (i *Inspector) RuleStats() rules.Stats {
	return i.rules.GetStats()
}

// Record 追加一条日志，同步更新唯一请求索引并发出事件
func (i *Inspector) Record(e domain.LogEntry) {
	i.mu.Lock()
	if i.destroyed {
		i.mu.Unlock()
		return
	}

	i.logs.Append(e)
	var current *domain.InterceptRule
	if r, ok := i.rules.Get(e.URL); ok {
		current = &r
	}
	i.unique.Observe(e, current)

	i.bus.Enqueue(domain.EventLogAdded, e)
	i.bus.Enqueue(domain.EventUniqueRequestsUpdated, i.unique.Snapshot())
	i.mu.Unlock()

	i.bus.Drain()
}

// GetLogs 按完成顺序返回日志副本
func (i *Inspector) GetLogs() []domain.LogEntry {
	return i.logs.All()
}

// LogsSince 返回位置 pos 之后的日志和当前位置
func (i *Inspector) LogsSince(pos int64) ([]domain.LogEntry, int64) {
	return i.logs.Since(pos)
}

// ClearLogs 清空日志，不影响规则和唯一请求索引
func (i *Inspector) ClearLogs() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.logs.Clear()
}

// GetUniqueRequests 返回唯一请求索引副本
func (i *Inspector) GetUniqueRequests() map[string]domain.UniqueRequest {
	return i.unique.Snapshot()
}

// ClearUniqueRequests 清空唯一请求索引，同时清空全部规则
func (i *Inspector) ClearUniqueRequests() {
	i.mu.Lock()
	if i.destroyed {
		i.mu.Unlock()
		return
	}
	i.unique.Clear()
	i.rules.Clear()
	i.bus.Enqueue(domain.EventUniqueRequestsUpdated, i.unique.Snapshot())
	i.mu.Unlock()

	i.bus.Drain()
	i.log.Info("唯一请求与规则已清空")
}

// AddListener 订阅事件
func (i *Inspector) AddListener(event string, fn bus.Listener) bus.ListenerID {
	return i.bus.AddListener(event, fn)
}

// RemoveListener 取消订阅，返回是否找到
func (i *Inspector) RemoveListener(event string, id bus.ListenerID) bool {
	return i.bus.RemoveListener(event, id)
}

// Destroy 清空全部状态和监听器，之后的记录与规则变更都被忽略
func (i *Inspector) Destroy() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.destroyed {
		return
	}
	i.destroyed = true
	i.rules.Clear()
	i.logs.Clear()
	i.unique.Clear()
	i.bus.Reset()
	i.log.Info("[Inspector] 拦截子系统已销毁")
}

// Destroyed 是否已销毁
func (i *Inspector) Destroyed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.destroyed
}
