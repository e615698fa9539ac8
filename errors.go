package natt

import "errors"

var (
	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("natt: node not started")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("natt: node already started")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("natt: node closed")

	// ErrNoTechniques 没有启用任何穿透技术
	ErrNoTechniques = errors.New("natt: no technique enabled")

	// ErrClassifierDisabled 未配置探测服务器
	ErrClassifierDisabled = errors.New("natt: classifier disabled")
)
