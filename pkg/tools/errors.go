package tools

import (
	"context"
	"errors"
	"fmt"

	"imagent/pkg/imagesvc"
)

// Kind classifies a failed tool call.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindValidation    Kind = "validation"
	KindUpstream      Kind = "upstream"
	KindTransient     Kind = "transient"
	KindUnknownTool   Kind = "unknown_tool"
	KindInternal      Kind = "internal" // recovered handler panic
)

// Error is a tool failure. Message is shown to the model; Err is the cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a tool failure of the given kind.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

const msgNotConfigured = "未设置环境变量 OPENAI_BASE_URL 或 OPENAI_API_KEY"

// classify maps image service errors to tool error kinds.
func classify(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}

	var se *imagesvc.StatusError
	switch {
	case errors.Is(err, imagesvc.ErrNotConfigured):
		return NewError(KindConfiguration, msgNotConfigured, nil)
	case errors.As(err, &se):
		return NewError(KindUpstream, fmt.Sprintf("图片服务返回错误 (HTTP %d): %s", se.Code, se.Body), nil)
	case errors.Is(err, imagesvc.ErrBodyTooLarge):
		return NewError(KindUpstream, "图片服务返回的数据过大", err)
	case errors.Is(err, imagesvc.ErrUnsupportedURI):
		return NewError(KindValidation, "不支持的图片地址", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(KindTransient, "请求图片服务超时", err)
	default:
		return NewError(KindTransient, "请求图片服务失败", err)
	}
}
