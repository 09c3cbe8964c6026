package errx

import (
	"errors"
	"fmt"

	"minidebug/pkg/domain"
)

type Code string

type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, msg string) *Error { return &Error{Code: code, Msg: msg} }

func Wrap(code Code, err error, msg string) *Error { return &Error{Code: code, Msg: msg, Err: err} }

func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

const (
	CodeInternal         Code = "INTERNAL"
	CodeRequestCancelled Code = "REQUEST_CANCELLED"
	CodePendingNotFound  Code = "PENDING_NOT_FOUND"
	CodeStageMismatch    Code = "STAGE_MISMATCH"
	CodeInvalidJSON      Code = "INVALID_JSON"
	CodeInvalidReplay    Code = "INVALID_REPLAY"
	CodeDestroyed        Code = "DESTROYED"
	CodeRecordNotFound   Code = "RECORD_NOT_FOUND"
	CodeDatabase         Code = "DATABASE_NOT_INITIALIZED"
)

// sentinelCodes 领域错误到错误码的映射
var sentinelCodes = []struct {
	err  error
	code Code
}{
	{domain.ErrRequestCancelled, CodeRequestCancelled},
	{domain.ErrPendingNotFound, CodePendingNotFound},
	{domain.ErrStageMismatch, CodeStageMismatch},
	{domain.ErrInvalidJSON, CodeInvalidJSON},
	{domain.ErrInvalidReplay, CodeInvalidReplay},
	{domain.ErrDestroyed, CodeDestroyed},
	{domain.ErrRecordNotFound, CodeRecordNotFound},
	{domain.ErrDatabaseNotInitialized, CodeDatabase},
}

// CodeOf 返回错误对应的错误码，优先取显式 Code，其次按领域错误映射
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	return CodeInternal
}
