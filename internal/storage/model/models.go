// Package model 面板设置的持久化模型
package model

import "time"

// Setting 面板设置表，键值形式
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// 预定义的设置 Key
const (
	SettingKeyPanelPosition = "panel_position" // 面板位置
	SettingKeyTheme         = "theme"          // 主题
	SettingKeyActiveTab     = "active_tab"     // 当前标签页
)

// AllModels 需要迁移的模型
func AllModels() []any {
	return []any{&Setting{}}
}
