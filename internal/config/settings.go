package config

// DefaultSettings 定义面板设置的默认值
type DefaultSettings struct {
	PanelPosition string
	Theme         string
	ActiveTab     string
}

// GetDefaultSettings 返回默认设置
func GetDefaultSettings() DefaultSettings {
	return DefaultSettings{
		PanelPosition: "bottom-right",
		Theme:         "auto",
		ActiveTab:     "logs",
	}
}
