package natt

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-natt/internal/core/classifier"
	"github.com/dep2p/go-natt/internal/core/decision"
	"github.com/dep2p/go-natt/internal/core/holepunch"
	"github.com/dep2p/go-natt/internal/core/orchestrator"
	"github.com/dep2p/go-natt/internal/core/technique/direct"
	"github.com/dep2p/go-natt/internal/core/technique/reversal"
	"github.com/dep2p/go-natt/internal/util/logger"
	"github.com/dep2p/go-natt/pkg/interfaces"
)

// nodeDeps 节点从 fx 容器取出的服务
type nodeDeps struct {
	fx.In

	Source     *orchestrator.Source
	Targets    orchestrator.TargetFactory
	Registry   *decision.Registry
	Classifier interfaces.BehaviorClassifier `optional:"true"`
}

// buildFxApp 构建 fx 应用
//
// 加载顺序（按依赖）：
//  1. 分类器（配置了探测服务器时）
//  2. 穿透技术（按配置开关），以值组汇入注册表
//  3. 决策注册表
//  4. 编排器
func buildFxApp(o *options, n *Node) (*fx.App, error) {
	cfg := o.config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	orchCfg := cfg.Orchestrator.Build()
	modules := []fx.Option{
		fx.WithLogger(logger.FxEventLogger),
		fx.Supply(&orchCfg),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 1. 分类器
	// ════════════════════════════════════════════════════════════════════════
	if cfg.Classifier.Enabled() {
		classifierCfg := cfg.Classifier.Build()
		modules = append(modules,
			fx.Supply(&classifierCfg),
			classifier.Module(),
		)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 穿透技术
	// ════════════════════════════════════════════════════════════════════════
	techniques := len(o.techniques)
	if cfg.Direct.Enable {
		directCfg := cfg.Direct.Build()
		modules = append(modules, fx.Supply(&directCfg), direct.Module())
		techniques++
	}
	if cfg.Reversal.Enable {
		reversalCfg := cfg.Reversal.Build()
		modules = append(modules, fx.Supply(&reversalCfg), reversal.Module())
		techniques++
	}
	if cfg.HolePunch.Enable {
		holepunchCfg := cfg.HolePunch.Build()
		modules = append(modules, fx.Supply(&holepunchCfg), holepunch.Module())
		techniques++
	}
	if techniques == 0 {
		return nil, ErrNoTechniques
	}
	for _, t := range o.techniques {
		modules = append(modules, fx.Provide(fx.Annotate(
			func() interfaces.Technique { return t },
			fx.ResultTags(`group:"`+decision.TechniqueGroup+`"`),
		)))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 注册表与编排器
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, decision.Module())

	if cfg.Metrics.Enabled {
		reg := o.registerer
		modules = append(modules, fx.Provide(func() orchestrator.MetricsTracer {
			return orchestrator.NewMetricsTracer(orchestrator.WithRegisterer(reg))
		}))
	}
	modules = append(modules, orchestrator.Module())

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户扩展与注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, o.fxOptions...)
	modules = append(modules, fx.Invoke(func(d nodeDeps) {
		n.source = d.Source
		n.targets = d.Targets
		n.registry = d.Registry
		n.classifier = d.Classifier
	}))

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return app, nil
}
