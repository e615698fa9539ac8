package holepunch

import (
	"errors"
)

var (
	// ErrNoCandidates 没有可用的候选端点
	ErrNoCandidates = errors.New("holepunch: no candidate endpoints")

	// ErrNoListener 未提供本地监听器
	ErrNoListener = errors.New("holepunch: no local listener")

	// ErrNoEndpoints 无法获得本地端点
	ErrNoEndpoints = errors.New("holepunch: local endpoints unavailable")

	// ErrPeerRejected 对端拒绝了连接请求
	ErrPeerRejected = errors.New("holepunch: peer rejected connect request")
)
