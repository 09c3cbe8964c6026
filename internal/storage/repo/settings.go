package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"minidebug/internal/config"
	"minidebug/internal/storage/model"
)

// SettingsRepo 面板设置仓库
type SettingsRepo struct {
	BaseRepository[model.Setting]
	defaults config.DefaultSettings
}

// NewSettingsRepo 创建设置仓库实例
func NewSettingsRepo(db *gorm.DB) *SettingsRepo {
	return &SettingsRepo{
		BaseRepository: *NewBaseRepository[model.Setting](db),
		defaults:       config.GetDefaultSettings(),
	}
}

func byKey(key string) Filter {
	return Where{Query: "key = ?", Args: []any{key}}
}

// Get 获取设置值，不存在时返回 domain.ErrRecordNotFound
func (r *SettingsRepo) Get(ctx context.Context, key string) (string, error) {
	s, err := r.FindOne(ctx, byKey(key))
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

// GetWithDefault 获取设置值，不存在时返回默认值
func (r *SettingsRepo) GetWithDefault(ctx context.Context, key, defaultValue string) string {
	val, err := r.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	return val
}

// Set 设置值（存在则更新，不存在则创建）
func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	return r.Save(ctx, &model.Setting{Key: key, Value: value, UpdatedAt: time.Now()})
}

// DeleteByKey 根据 key 删除设置
func (r *SettingsRepo) DeleteByKey(ctx context.Context, key string) error {
	return r.Delete(ctx, byKey(key))
}

// GetAll 获取所有设置
func (r *SettingsRepo) GetAll(ctx context.Context) (map[string]string, error) {
	list, err := r.FindAll(ctx, nil, Orders{{Field: "key"}})
	if err != nil {
		return nil, err
	}
	result := make(map[string]string, len(list))
	for _, s := range list {
		result[s.Key] = s.Value
	}
	return result, nil
}

// SetMultiple 批量设置，全部成功或全部失败
func (r *SettingsRepo) SetMultiple(ctx context.Context, kvs map[string]string) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		now := time.Now()
		for key, value := range kvs {
			if err := r.Save(ctx, &model.Setting{Key: key, Value: value, UpdatedAt: now}, WithTx(tx)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Panel 返回面板设置，未保存的项取默认值
func (r *SettingsRepo) Panel(ctx context.Context) map[string]string {
	return map[string]string{
		model.SettingKeyPanelPosition: r.GetPanelPosition(ctx),
		model.SettingKeyTheme:         r.GetTheme(ctx),
		model.SettingKeyActiveTab:     r.GetActiveTab(ctx),
	}
}

// GetPanelPosition 获取面板位置
func (r *SettingsRepo) GetPanelPosition(ctx context.Context) string {
	return r.GetWithDefault(ctx, model.SettingKeyPanelPosition, r.defaults.PanelPosition)
}

// SetPanelPosition 设置面板位置
func (r *SettingsRepo) SetPanelPosition(ctx context.Context, pos string) error {
	return r.Set(ctx, model.SettingKeyPanelPosition, pos)
}

// GetTheme 获取主题
func (r *SettingsRepo) GetTheme(ctx context.Context) string {
	return r.GetWithDefault(ctx, model.SettingKeyTheme, r.defaults.Theme)
}

// SetTheme 设置主题
func (r *SettingsRepo) SetTheme(ctx context.Context, theme string) error {
	return r.Set(ctx, model.SettingKeyTheme, theme)
}

// GetActiveTab 获取当前标签页
func (r *SettingsRepo) GetActiveTab(ctx context.Context) string {
	return r.GetWithDefault(ctx, model.SettingKeyActiveTab, r.defaults.ActiveTab)
}

// SetActiveTab 设置当前标签页
func (r *SettingsRepo) SetActiveTab(ctx context.Context, tab string) error {
	return r.Set(ctx, model.SettingKeyActiveTab, tab)
}
