// Package repo 面板设置的数据访问层
package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"minidebug/pkg/domain"
)

// Filter 筛选器接口
type Filter interface {
	Apply(db *gorm.DB) *gorm.DB
}

// Where 以条件表达式构造的筛选器
type Where struct {
	Query string
	Args  []any
}

// Apply 实现 Filter
func (w Where) Apply(db *gorm.DB) *gorm.DB {
	return db.Where(w.Query, w.Args...)
}

// Order 排序参数
type Order struct {
	Field string
	Desc  bool
}

// Orders 排序参数切片
type Orders []Order

// TxConfig 事务配置
type TxConfig struct {
	tx *gorm.DB
}

// SetTx 设置事务
func (c *TxConfig) SetTx(tx *gorm.DB) { c.tx = tx }

// GetTx 获取事务
func (c *TxConfig) GetTx() *gorm.DB { return c.tx }

// Option 读写选项
type Option func(*TxConfig)

// WithTx 在指定事务内执行
func WithTx(tx *gorm.DB) Option {
	return func(c *TxConfig) { c.SetTx(tx) }
}

// BaseRepository 基础DAO层
type BaseRepository[T any] struct {
	Db *gorm.DB
}

// NewBaseRepository 创建基础DAO层
func NewBaseRepository[T any](db *gorm.DB) *BaseRepository[T] {
	return &BaseRepository[T]{Db: db}
}

// Save 按主键写入，存在则覆盖
func (r *BaseRepository[T]) Save(ctx context.Context, item *T, opts ...Option) error {
	return r.getDb(opts).WithContext(ctx).Save(item).Error
}

// Delete 删除满足筛选条件的记录
func (r *BaseRepository[T]) Delete(ctx context.Context, filter Filter, opts ...Option) error {
	if filter == nil {
		return errors.New("delete requires a filter")
	}
	return filter.Apply(r.getDb(opts).WithContext(ctx)).Delete(new(T)).Error
}

// FindOne 查询单条记录，不存在时返回 domain.ErrRecordNotFound
func (r *BaseRepository[T]) FindOne(ctx context.Context, filter Filter, opts ...Option) (*T, error) {
	item := new(T)
	query := r.getDb(opts).WithContext(ctx)
	if filter != nil {
		query = filter.Apply(query)
	}
	if err := query.First(item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrRecordNotFound, err)
		}
		return nil, err
	}
	return item, nil
}

// FindAll 查询满足条件的全部记录
func (r *BaseRepository[T]) FindAll(ctx context.Context, filter Filter, orders Orders, opts ...Option) ([]*T, error) {
	list := make([]*T, 0)
	query := r.getDb(opts).WithContext(ctx).Model(new(T))
	if filter != nil {
		query = filter.Apply(query)
	}
	for _, o := range orders {
		if o.Desc {
			query = query.Order(o.Field + " DESC")
		} else {
			query = query.Order(o.Field + " ASC")
		}
	}
	if err := query.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Count 统计记录数量
func (r *BaseRepository[T]) Count(ctx context.Context, filter Filter, opts ...Option) (int64, error) {
	var count int64
	query := r.getDb(opts).WithContext(ctx).Model(new(T))
	if filter != nil {
		query = filter.Apply(query)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Transaction 在事务内执行 fn
func (r *BaseRepository[T]) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.Db.WithContext(ctx).Transaction(fn)
}

// getDb 获取数据库连接
func (r *BaseRepository[T]) getDb(opts []Option) *gorm.DB {
	cfg := &TxConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if tx := cfg.GetTx(); tx != nil {
		return tx
	}
	return r.Db
}
