package apperr

import (
	"errors"
	"fmt"
)

// 错误码
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeStorage      = "STORAGE_ERROR"
	CodeExternalSync = "EXTERNAL_SYNC_ERROR"
	CodeSyncInFlight = "SYNC_IN_FLIGHT"
)

// AppError 带错误码的业务错误
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，便于 errors.Is(err, ErrSyncInFlight)
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Code == e.Code
}

// Retryable 存储错误可以由调用方安全重试（依赖幂等键）
func (e *AppError) Retryable() bool {
	return e.Code == CodeStorage
}

func New(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// ErrSyncInFlight 同一实体已有推送在进行
var ErrSyncInFlight = &AppError{Code: CodeSyncInFlight}

func Validation(format string, args ...any) *AppError {
	return New(CodeValidation, fmt.Sprintf(format, args...), nil)
}

func NotFound(format string, args ...any) *AppError {
	return New(CodeNotFound, fmt.Sprintf(format, args...), nil)
}

func Storage(message string, err error) *AppError {
	return New(CodeStorage, message, err)
}

func ExternalSync(message string, err error) *AppError {
	return New(CodeExternalSync, message, err)
}

// CodeOf 提取错误码，非 AppError 返回空串
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func IsValidation(err error) bool   { return CodeOf(err) == CodeValidation }
func IsNotFound(err error) bool     { return CodeOf(err) == CodeNotFound }
func IsExternalSync(err error) bool { return CodeOf(err) == CodeExternalSync }

// IsRetryable 调用方是否可以重试
func IsRetryable(err error) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	return false
}
