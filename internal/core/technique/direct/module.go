package direct

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-natt/internal/core/decision"
	"github.com/dep2p/go-natt/pkg/interfaces"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	LC         fx.Lifecycle
	Config     *Config                       `optional:"true"`
	Discoverer interfaces.EndpointDiscoverer `optional:"true"`
}

// ProvideTechnique 提供直连技术，应用停止时关闭残留的监听器
func ProvideTechnique(input ModuleInput) *Technique {
	cfg := DefaultConfig()
	if input.Config != nil {
		cfg = *input.Config
	}
	t := New(cfg, input.Discoverer)
	input.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return t.DeregisterAtMediator(ctx, nil)
		},
	})
	return t
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("natt.technique.direct",
		fx.Provide(decision.AsTechnique(ProvideTechnique)),
	)
}
