package api

import "minidebug/pkg/errx"

// Response 命令行输出的统一信封，失败时 Code 取自 errx.CodeOf
type Response[T any] struct {
	Success bool      `json:"success"`
	Code    errx.Code `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
	Data    *T        `json:"data,omitempty"`
}

// OK 构造成功响应
func OK[T any](data T) Response[T] {
	return Response[T]{Success: true, Data: &data}
}

// Fail 构造不带数据的失败响应
func Fail(err error) Response[any] {
	return Response[any]{Code: errx.CodeOf(err), Message: errMessage(err)}
}

// FailWith 构造附带数据的失败响应，例如失败调用对应的日志条目
func FailWith[T any](err error, data T) Response[T] {
	return Response[T]{Code: errx.CodeOf(err), Message: errMessage(err), Data: &data}
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
