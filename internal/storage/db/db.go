// Package db 面板设置存储的数据库连接
package db

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// MemoryName 内存数据库，用于测试和无需持久化的场景
const MemoryName = ":memory:"

// Options 数据库配置选项
type Options struct {
	Name     string         // 数据库文件名，放在平台默认数据目录下
	FullPath string         // 完整路径，优先于 Name
	Prefix   string         // 表前缀
	Logger   glog.Interface // GORM 日志实现，nil 时静默
}

// New 创建并初始化数据库连接
func New(opts Options) (*gorm.DB, error) {
	dsn, memory, err := resolvePath(opts)
	if err != nil {
		return nil, err
	}
	if !memory {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, err
		}
	}

	gl := opts.Logger
	if gl == nil {
		gl = glog.Discard
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gl,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   opts.Prefix,
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err == nil {
		if memory {
			// 每个连接是独立的内存库
			sqlDB.SetMaxOpenConns(1)
		} else {
			sqlDB.SetMaxIdleConns(2)
			sqlDB.SetMaxOpenConns(4)
		}
	}
	return db, nil
}

func resolvePath(opts Options) (string, bool, error) {
	switch {
	case opts.FullPath == MemoryName || (opts.FullPath == "" && opts.Name == MemoryName):
		return MemoryName, true, nil
	case opts.FullPath != "":
		return opts.FullPath, false, nil
	default:
		p, err := GetDefaultPath(opts.Name)
		return p, false, err
	}
}

// Migrate 执行数据库自动迁移
func Migrate(db *gorm.DB, models ...any) error {
	return db.AutoMigrate(models...)
}

// Close 关闭底层连接
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDefaultPath 获取平台相关的默认数据库文件路径
func GetDefaultPath(dbName string) (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			baseDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(home, "Library", "Application Support")
	default:
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(home, ".local", "share")
		}
	}

	return filepath.Join(baseDir, "minidebug", dbName), nil
}
