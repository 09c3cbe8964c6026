package db

import (
	"context"
	"time"

	glog "gorm.io/gorm/logger"

	"minidebug/internal/logger"
)

// SlowThreshold 慢查询阈值
const SlowThreshold = 200 * time.Millisecond

// Logger 将 GORM 日志接入项目统一日志
type Logger struct {
	internal logger.Logger
	LogLevel glog.LogLevel
}

// NewLogger 创建 GORM 日志桥接，默认只记录警告和错误
func NewLogger(l logger.Logger) *Logger {
	if l == nil {
		l = logger.NewNop()
	}
	return &Logger{internal: l, LogLevel: glog.Warn}
}

// LogMode 实现 glog.Interface
func (l *Logger) LogMode(level glog.LogLevel) glog.Interface {
	n := *l
	n.LogLevel = level
	return &n
}

// Info 打印 info 级别日志
func (l *Logger) Info(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Info {
		l.internal.Info("[DB] "+msg, "data", data)
	}
}

// Warn 打印 warn 级别日志
func (l *Logger) Warn(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Warn {
		l.internal.Warn("[DB] "+msg, "data", data)
	}
}

// Error 打印 error 级别日志
func (l *Logger) Error(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Error {
		l.internal.Error("[DB] "+msg, "data", data)
	}
}

// Trace 记录 SQL 执行详情
func (l *Logger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= glog.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []any{
		"sql", sql,
		"rows", rows,
		"timeMs", float64(elapsed.Nanoseconds()) / 1e6,
	}

	switch {
	case err != nil && l.LogLevel >= glog.Error:
		l.internal.Err(err, "[DB] SQL执行错误", fields...)
	case elapsed > SlowThreshold && l.LogLevel >= glog.Warn:
		l.internal.Warn("[DB] 慢SQL查询", append(fields, "threshold", SlowThreshold.String())...)
	case l.LogLevel == glog.Info:
		l.internal.Debug("[DB] SQL执行", fields...)
	}
}
