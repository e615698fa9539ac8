package classifier

import (
	"errors"
	"fmt"
)

var (
	// ErrNoServer 未配置探测服务器
	ErrNoServer = errors.New("classifier: no probe server configured")

	// ErrNoOtherAddress 服务器响应中没有 OTHER-ADDRESS
	ErrNoOtherAddress = errors.New("classifier: server did not provide OTHER-ADDRESS")

	// ErrServerClosed 探测服务器已关闭
	ErrServerClosed = errors.New("classifier: probe server closed")
)

// ProbeError 单次探测失败
type ProbeError struct {
	Op     string
	Server string
	Cause  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("classifier: %s %s: %v", e.Op, e.Server, e.Cause)
}

func (e *ProbeError) Unwrap() error {
	return e.Cause
}
