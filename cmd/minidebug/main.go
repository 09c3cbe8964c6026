package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"minidebug/internal/config"
	"minidebug/internal/logger"
)

// version 构建时通过 -ldflags 注入
var version = "dev"

var (
	configPath string
	logLevel   string

	cfg *config.Config
	log logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "minidebug",
	Short: "minidebug - 网络调用检查与实时篡改工具",
	Long: `minidebug 拦截进程内的 fetch / XHR 形态调用，记录日志与唯一请求，
支持按 URL 开启请求/响应实时编辑、静态篡改以及并发重放。`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = c
		log = logger.New(logger.Options{Level: c.Log.Level, Writers: c.Log.Writer, Filename: c.Log.File})
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "打印版本号",
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "minidebug", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML 配置文件路径")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (debug/info/warn/error/disabled)")

	rootCmd.AddCommand(versionCmd, serveCmd, fetchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
