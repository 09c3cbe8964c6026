package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SqliteConfig 设置存储配置
type SqliteConfig struct {
	Db     string `yaml:"db"`
	Prefix string `yaml:"prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string   `yaml:"level"`
	Writer []string `yaml:"writer"`
	File   string   `yaml:"file"`
}

// ServerConfig 控制接口配置
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// InspectorConfig 拦截器配置
type InspectorConfig struct {
	LogCapacity      int `yaml:"logCapacity"`      // 日志环形缓冲容量
	XHRConcurrency   int `yaml:"xhrConcurrency"`   // XHR 真实请求并发数
	XHRQueue         int `yaml:"xhrQueue"`         // XHR 任务队列容量
	TamperDelayMS    int `yaml:"tamperDelayMs"`    // XHR 静态响应篡改的回调延迟
	PendingCapacity  int `yaml:"pendingCapacity"`  // 审批队列容量，超出时不修改直接放行
	PendingTimeoutMS int `yaml:"pendingTimeoutMs"` // 审批项过期时间，0 表示不过期
}

// ReplayConfig 并发重放限制
type ReplayConfig struct {
	MaxCount      int `yaml:"maxCount"`
	MaxIntervalMS int `yaml:"maxIntervalMs"`
}

// Config 配置文件结构体
type Config struct {
	Version   string          `yaml:"version"`
	Sqlite    SqliteConfig    `yaml:"sqlite"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Inspector InspectorConfig `yaml:"inspector"`
	Replay    ReplayConfig    `yaml:"replay"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Version: "0.3.0",
		Sqlite: SqliteConfig{
			Db:     "minidebug.db",
			Prefix: "minidebug_",
		},
		Log: LogConfig{
			Level: "info",
			// file 需要在 console 之前，控制台不可写时不影响文件日志
			Writer: []string{"file", "console"},
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:9527",
		},
		Inspector: InspectorConfig{
			LogCapacity:     200,
			XHRConcurrency:  8,
			XHRQueue:        64,
			TamperDelayMS:   10,
			PendingCapacity: 32,
		},
		Replay: ReplayConfig{
			MaxCount:      100,
			MaxIntervalMS: 5000,
		},
	}
}

// Load 读取 YAML 配置，文件不存在时返回默认配置；未填写的字段保留默认值
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置取值范围
func (c *Config) Validate() error {
	if c.Inspector.LogCapacity <= 0 {
		return fmt.Errorf("inspector.logCapacity must be positive, got %d", c.Inspector.LogCapacity)
	}
	if c.Inspector.TamperDelayMS < 0 {
		return fmt.Errorf("inspector.tamperDelayMs must not be negative, got %d", c.Inspector.TamperDelayMS)
	}
	if c.Replay.MaxCount <= 0 {
		return fmt.Errorf("replay.maxCount must be positive, got %d", c.Replay.MaxCount)
	}
	if c.Replay.MaxIntervalMS < 0 {
		return fmt.Errorf("replay.maxIntervalMs must not be negative, got %d", c.Replay.MaxIntervalMS)
	}
	return nil
}
