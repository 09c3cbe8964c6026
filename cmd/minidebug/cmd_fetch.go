package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"minidebug/internal/fetch"
	"minidebug/pkg/api"
)

var (
	fetchMethod  string
	fetchData    string
	fetchHeaders []string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch URL",
	Short: "经拦截器发出一次调用并输出日志条目",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchMethod, "method", "X", "GET", "请求方法")
	fetchCmd.Flags().StringVarP(&fetchData, "data", "d", "", "请求体")
	fetchCmd.Flags().StringArrayVarP(&fetchHeaders, "header", "H", nil, `请求头，格式 "Key: Value"`)
}

func runFetch(cmd *cobra.Command, args []string) error {
	svc, err := api.NewService(api.Options{Config: cfg, Logger: log, NoStorage: true})
	if err != nil {
		return err
	}
	defer svc.Destroy()

	opts := &fetch.Init{Method: fetchMethod, Headers: make(map[string]string)}
	for _, h := range fetchHeaders {
		k, v, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q", h)
		}
		opts.Headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if fetchData != "" {
		opts.Body = []byte(fetchData)
	}

	out := json.NewEncoder(cmd.OutOrStdout())
	out.SetIndent("", "  ")

	resp, err := svc.Fetch(cmd.Context(), args[0], opts)
	if err == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	logs := svc.GetLogs()
	if len(logs) == 0 {
		if err == nil {
			err = fmt.Errorf("no log entry recorded for %s", args[0])
		}
		_ = out.Encode(api.Fail(err))
		return err
	}
	entry := logs[len(logs)-1]
	if err != nil {
		_ = out.Encode(api.FailWith(err, entry))
		return err
	}
	return out.Encode(api.OK(entry))
}
