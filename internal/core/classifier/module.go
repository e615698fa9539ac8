package classifier

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-natt/pkg/interfaces"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *Config `optional:"true"`
	Prober Prober  `optional:"true"`
}

// ModuleOutput 模块输出服务
type ModuleOutput struct {
	fx.Out

	Classifier *Classifier
	Behavior   interfaces.BehaviorClassifier
	Discoverer interfaces.EndpointDiscoverer
}

// ProvideServices 提供分类器
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	cfg := DefaultConfig()
	if input.Config != nil {
		cfg = *input.Config
	}

	var opts []Option
	if input.Prober != nil {
		opts = append(opts, WithProber(input.Prober))
	}

	c, err := New(cfg, opts...)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Classifier: c, Behavior: c, Discoverer: c}, nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("natt.classifier",
		fx.Provide(ProvideServices),
	)
}
