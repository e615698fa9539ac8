package mediator

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-natt/pkg/types"
)

var (
	// ErrUnknownMessage 未知的方法或类别
	ErrUnknownMessage = errors.New("mediator: unknown message")

	// ErrMalformedMessage 属性格式错误
	ErrMalformedMessage = errors.New("mediator: malformed message")

	// ErrChannelClosed 通道已关闭
	ErrChannelClosed = errors.New("mediator: channel closed")
)

// 错误码
const (
	CodeBadRequest     = 400
	CodeUnknownPeer    = 404
	CodeUnsupported    = 420
	CodeBusy           = 486
	CodeTechniqueError = 500
)

// ResponseError 对端返回的错误响应
type ResponseError struct {
	Kind   types.MessageKind
	Code   int
	Reason string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("mediator: %s failed: %d %s", e.Kind, e.Code, e.Reason)
}
