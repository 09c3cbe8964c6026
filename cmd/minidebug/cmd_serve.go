package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"minidebug/internal/httpapi"
	"minidebug/pkg/api"
	"minidebug/pkg/domain"
)

var (
	serveAddr   string
	serveStream bool
	serveNoDB   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动控制接口，实时编辑通过待审批队列完成",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "监听地址，默认取配置 server.addr")
	serveCmd.Flags().BoolVar(&serveStream, "stream", false, "将每条日志以 JSON 行输出到标准输出")
	serveCmd.Flags().BoolVar(&serveNoDB, "no-db", false, "不打开面板设置数据库")
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	var auditCh chan domain.LogEntry
	if serveStream {
		auditCh = make(chan domain.LogEntry, cfg.Inspector.LogCapacity)
	}

	svc, err := api.NewService(api.Options{
		Config:    cfg,
		Logger:    log,
		Audit:     auditCh,
		Headless:  true,
		NoStorage: serveNoDB,
	})
	if err != nil {
		return err
	}
	defer svc.Destroy()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if auditCh != nil {
		go streamEntries(ctx, cmd, auditCh)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewServer(svc, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("[Serve] 控制接口已启动", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("[Serve] 正在关闭控制接口")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// streamEntries 按 JSON 行输出审计通道中的日志条目
func streamEntries(ctx context.Context, cmd *cobra.Command, ch <-chan domain.LogEntry) {
	enc := json.NewEncoder(cmd.OutOrStdout())
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			if err := enc.Encode(e); err != nil {
				log.Err(err, "[Serve] 输出日志条目失败", "id", e.ID)
			}
		}
	}
}
