package domain

import "errors"

// 拦截相关错误
var (
	ErrRequestCancelled = errors.New("request cancelled by user")
	ErrEditorContract   = errors.New("live editor contract violation")
	ErrDestroyed        = errors.New("interceptor destroyed")
)

// XHR 相关错误
var (
	ErrNotOpened   = errors.New("request not opened")
	ErrAlreadySent = errors.New("request already sent")
	ErrAborted     = errors.New("request aborted")
)

// 审批相关错误
var (
	ErrPendingNotFound = errors.New("pending item not found")
	ErrStageMismatch   = errors.New("pending item stage mismatch")
	ErrInvalidJSON     = errors.New("invalid json")
)

// 重放相关错误
var (
	ErrInvalidReplay = errors.New("invalid replay params")
)

// 数据库相关错误
var (
	ErrDatabaseNotInitialized = errors.New("database not initialized")
	ErrRecordNotFound         = errors.New("record not found")
)
