package orchestrator

import (
	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-natt/pkg/interfaces"
	"github.com/dep2p/go-natt/pkg/types"
)

type options struct {
	clock      clock.Clock
	metrics    MetricsTracer
	classifier interfaces.BehaviorClassifier
	behavior   *types.NATBehavior
}

func defaultOptions() options {
	return options{
		clock:   clock.New(),
		metrics: noopTracer{},
	}
}

// Option 编排器选项
type Option func(*options)

// WithClock 指定时钟，测试中使用 clock.NewMock
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMetrics 指定指标追踪器
func WithMetrics(m MetricsTracer) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClassifier 指定本地 NAT 行为分类器
func WithClassifier(c interfaces.BehaviorClassifier) Option {
	return func(o *options) {
		o.classifier = c
	}
}

// WithBehavior 固定本地 NAT 行为，不再调用分类器
func WithBehavior(b types.NATBehavior) Option {
	return func(o *options) {
		o.behavior = &b
	}
}

// ConnectOption 单次连接选项
type ConnectOption func(*connectOptions)

type connectOptions struct {
	behavior *types.NATBehavior
}

// WithLocalBehavior 本次连接使用调用方缓存的本地 NAT 行为
func WithLocalBehavior(b types.NATBehavior) ConnectOption {
	return func(o *connectOptions) {
		o.behavior = &b
	}
}
