package holepunch

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-natt/internal/core/decision"
	"github.com/dep2p/go-natt/pkg/interfaces"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config     *Config                       `optional:"true"`
	Discoverer interfaces.EndpointDiscoverer `optional:"true"`
}

// ProvideTechnique 提供打洞技术
func ProvideTechnique(input ModuleInput) *Technique {
	cfg := DefaultConfig()
	if input.Config != nil {
		cfg = *input.Config
	}
	return NewTechnique(cfg, input.Discoverer)
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("natt.holepunch",
		fx.Provide(decision.AsTechnique(ProvideTechnique)),
	)
}
