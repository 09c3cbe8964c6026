package api

import (
	"context"
	"fmt"
	"net/http"

	"minidebug/internal/approval"
	"minidebug/internal/bus"
	"minidebug/internal/config"
	"minidebug/internal/fetch"
	"minidebug/internal/logger"
	"minidebug/internal/pool"
	"minidebug/internal/replay"
	"minidebug/internal/rules"
	"minidebug/internal/service"
	"minidebug/internal/storage/db"
	"minidebug/internal/storage/model"
	"minidebug/internal/storage/repo"
	"minidebug/internal/xhr"
	"minidebug/pkg/domain"
	"minidebug/pkg/rulespec"
)

// Service 拦截子系统的公共控制接口
type Service interface {
	// SetRequestIntercept 开关请求实时拦截
	SetRequestIntercept(url string, enabled bool) domain.InterceptRule

	// SetResponseIntercept 开关响应实时拦截
	SetResponseIntercept(url string, enabled bool) domain.InterceptRule

	// SetRequestTamper 设置静态请求篡改，nil 清除
	SetRequestTamper(url string, t *rulespec.RequestTamper) domain.InterceptRule

	// SetResponseTamper 设置静态响应篡改，nil 清除
	SetResponseTamper(url string, t *rulespec.ResponseTamper) domain.InterceptRule

	// Rules 全部规则
	Rules() []domain.InterceptRule

	// RuleStats 规则查询统计
	RuleStats() rules.Stats

	// GetLogs 日志快照，按时间升序
	GetLogs() []domain.LogEntry

	// ClearLogs 清空日志
	ClearLogs()

	// GetUniqueRequests 唯一请求快照
	GetUniqueRequests() map[string]domain.UniqueRequest

	// ClearUniqueRequests 清空唯一请求和全部规则
	ClearUniqueRequests()

	// AddListener 注册事件监听
	AddListener(event string, fn bus.Listener) bus.ListenerID

	// RemoveListener 移除事件监听
	RemoveListener(event string, id bus.ListenerID) bool

	// Client 经过拦截的 http.Client
	Client() *http.Client

	// Fetch 以 fetch 形态发出调用
	Fetch(ctx context.Context, url string, init *fetch.Init) (*http.Response, error)

	// NewXHR 创建 XHR 形态的请求对象
	NewXHR() *xhr.Request

	// Replay 并发重放
	Replay(ctx context.Context, p replay.Params) (replay.Summary, error)

	// Pending 待审批项
	Pending() []approval.PendingItem

	// ApproveRequest 确认请求审批项
	ApproveRequest(id string, edit *rulespec.RequestEdit) error

	// ApproveResponse 确认响应审批项
	ApproveResponse(id string, d approval.ResponseDecision) error

	// Reject 拒绝审批项
	Reject(id string) error

	// Settings 面板设置
	Settings(ctx context.Context) (map[string]string, error)

	// SetSettings 批量保存面板设置
	SetSettings(ctx context.Context, kvs map[string]string) error

	// PoolStats XHR 工作池统计
	PoolStats() pool.Stats

	// Destroy 恢复直连并释放资源
	Destroy()
}

// Options 服务创建选项
type Options struct {
	Config   *config.Config
	Logger   logger.Logger
	Base     http.RoundTripper
	Audit    chan domain.LogEntry
	Headless bool
	// NoStorage 为 true 时不打开设置数据库
	NoStorage bool
}

// NewService 创建并返回服务接口实现
func NewService(opts Options) (Service, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}

	var settings *repo.SettingsRepo
	if !opts.NoStorage {
		gdb, err := db.New(db.Options{
			Name:   cfg.Sqlite.Db,
			Prefix: cfg.Sqlite.Prefix,
			Logger: db.NewLogger(opts.Logger),
		})
		if err != nil {
			return nil, fmt.Errorf("open settings db: %w", err)
		}
		if err := db.Migrate(gdb, model.AllModels()...); err != nil {
			return nil, fmt.Errorf("migrate settings db: %w", err)
		}
		settings = repo.NewSettingsRepo(gdb)
	}

	return service.New(service.Options{
		Config:   cfg,
		Logger:   opts.Logger,
		Base:     opts.Base,
		Settings: settings,
		Audit:    opts.Audit,
		Headless: opts.Headless,
	}), nil
}
