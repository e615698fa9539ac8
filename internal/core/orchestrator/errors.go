package orchestrator

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-natt/pkg/types"
)

var (
	// ErrNoSupportedTechnique 排名后的技术都不在目标支持集合中
	ErrNoSupportedTechnique = errors.New("orchestrator: no supported technique")

	// ErrNotRegistered 目标端未注册
	ErrNotRegistered = errors.New("orchestrator: not registered")

	// ErrAlreadyRegistered 目标端已注册
	ErrAlreadyRegistered = errors.New("orchestrator: already registered")

	// ErrInvalidPort 端口超出范围
	ErrInvalidPort = errors.New("orchestrator: invalid port")

	// ErrNoConnection 技术返回了空连接
	ErrNoConnection = errors.New("orchestrator: technique returned no connection")
)

// NotEstablishedError 所有候选技术都未建立连接
type NotEstablishedError struct {
	Target types.PeerID

	// LastTechnique 最后尝试的技术名称，没有可用技术时为空
	LastTechnique string

	// Err 最后一次尝试的错误，或 ErrNoSupportedTechnique
	Err error
}

func (e *NotEstablishedError) Error() string {
	if e.LastTechnique == "" {
		return fmt.Sprintf("orchestrator: connection to %s not established: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("orchestrator: connection to %s not established (last technique %s): %v",
		e.Target, e.LastTechnique, e.Err)
}

func (e *NotEstablishedError) Unwrap() error {
	return e.Err
}

// AttemptError 单个技术尝试失败
type AttemptError struct {
	Technique string
	Kind      OutcomeKind
	Err       error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Technique, e.Kind, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}
