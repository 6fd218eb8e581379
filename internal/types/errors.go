package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode 错误码,同时作为 HTTP 错误响应中的 error_code
type ErrorCode string

const (
	CodeValidation          ErrorCode = "VALIDATION_ERROR"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeInvalidState        ErrorCode = "INVALID_STATE"
	CodeForbidden           ErrorCode = "FORBIDDEN"
	CodeMissingVariable     ErrorCode = "MISSING_VARIABLE"
	CodeUnknownVariable     ErrorCode = "UNKNOWN_VARIABLE"
	CodeProviderRejected    ErrorCode = "PROVIDER_REJECTED"
	CodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	CodePublishTarget       ErrorCode = "PUBLISH_TARGET_ERROR"
)

// Error 业务错误
// 通过 errors.Is 与同 Code 的哨兵错误匹配
type Error struct {
	Code    ErrorCode
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.ToLower(strings.ReplaceAll(string(e.Code), "_", " "))
	}
	if len(e.Details) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Details, ", "))
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 哨兵错误(Message 为空)按 Code 匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Code == e.Code
}

// 哨兵错误
var (
	ErrValidation          = &Error{Code: CodeValidation}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrInvalidState        = &Error{Code: CodeInvalidState}
	ErrForbidden           = &Error{Code: CodeForbidden}
	ErrMissingVariable     = &Error{Code: CodeMissingVariable}
	ErrUnknownVariable     = &Error{Code: CodeUnknownVariable}
	ErrProviderRejected    = &Error{Code: CodeProviderRejected}
	ErrProviderUnavailable = &Error{Code: CodeProviderUnavailable}
	ErrPublishTarget       = &Error{Code: CodePublishTarget}
)

// NewValidationError 创建校验错误
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(resource, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", resource, id)}
}

// NewInvalidStateError 创建非法状态错误
func NewInvalidStateError(format string, args ...interface{}) *Error {
	return &Error{Code: CodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

// NewForbiddenError 创建权限错误
func NewForbiddenError(format string, args ...interface{}) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

// NewMissingVariableError 列出所有缺失的模板变量
func NewMissingVariableError(names []string) *Error {
	return &Error{Code: CodeMissingVariable, Message: "missing template variables", Details: names}
}

// NewUnknownVariableError 列出未声明的模板变量,仅作为警告使用
func NewUnknownVariableError(names []string) *Error {
	return &Error{Code: CodeUnknownVariable, Message: "unknown template variables ignored", Details: names}
}

// NewProviderRejectedError 保留 provider 原始响应
func NewProviderRejectedError(status int, body string) *Error {
	return &Error{Code: CodeProviderRejected, Message: fmt.Sprintf("provider rejected request with status %d: %s", status, body)}
}

// NewProviderUnavailableError 重试耗尽后的错误
func NewProviderUnavailableError(err error) *Error {
	return &Error{Code: CodeProviderUnavailable, Message: "provider unavailable", Err: err}
}

// NewPublishTargetError 发布目标返回的错误
func NewPublishTargetError(target string, err error) *Error {
	return &Error{Code: CodePublishTarget, Message: fmt.Sprintf("publish to %s failed", target), Err: err}
}

// CodeOf 返回错误对应的错误码,非业务错误返回空字符串
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
