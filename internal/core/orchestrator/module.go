package orchestrator

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-natt/internal/core/decision"
	"github.com/dep2p/go-natt/pkg/interfaces"
)

// TargetFactory 为一条控制通道创建目标端编排器
type TargetFactory func(ch interfaces.ControlChannel) (*Target, error)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config     *Config                       `optional:"true"`
	Registry   *decision.Registry
	Classifier interfaces.BehaviorClassifier `optional:"true"`
	Metrics    MetricsTracer                 `optional:"true"`
}

// ModuleOutput 模块输出服务
type ModuleOutput struct {
	fx.Out

	Source  *Source
	Targets TargetFactory
}

// ProvideServices 提供源端编排器与目标端工厂
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	cfg := DefaultConfig()
	if input.Config != nil {
		cfg = *input.Config
	}

	var opts []Option
	if input.Classifier != nil {
		opts = append(opts, WithClassifier(input.Classifier))
	}
	if input.Metrics != nil {
		opts = append(opts, WithMetrics(input.Metrics))
	}

	source, err := NewSource(cfg, input.Registry, opts...)
	if err != nil {
		return ModuleOutput{}, err
	}

	targets := func(ch interfaces.ControlChannel) (*Target, error) {
		return NewTarget(cfg, input.Registry, ch, opts...)
	}
	return ModuleOutput{Source: source, Targets: targets}, nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("natt.orchestrator",
		fx.Provide(ProvideServices),
	)
}
