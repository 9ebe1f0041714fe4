// Package apperr 定义SOS服务对调用方可见的错误分类
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别
type Kind int

const (
	KindUnknown Kind = iota
	KindConflict
	KindNotFound
	KindValidation
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindDependency:
		return "dependency_failure"
	}
	return "unknown"
}

// Error 带分类的业务错误
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"` // 原始错误，不序列化
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Dependency 存储等依赖不可用
func Dependency(err error, message string) *Error {
	return &Error{Kind: KindDependency, Message: message, Err: err}
}

// KindOf 取错误链上第一个 *Error 的类别
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is 判断错误是否属于某个类别
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message 面向调用方的错误信息，依赖错误不暴露内部细节
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal server error"
}

// HTTPStatus 错误类别对应的HTTP状态码
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindDependency:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
