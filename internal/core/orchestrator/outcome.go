package orchestrator

import (
	"net"
)

// OutcomeKind 单次技术尝试的结果类别
type OutcomeKind int

const (
	// Connected 已建立连接
	Connected OutcomeKind = iota
	// TimedOut 超过技术超时被取消
	TimedOut
	// Failed 技术返回错误或空连接
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome 单次技术尝试的结果
type Outcome struct {
	Kind OutcomeKind
	Conn net.Conn
	Err  error
}
