package decision

import (
	"sort"

	"go.uber.org/fx"

	"github.com/dep2p/go-natt/pkg/interfaces"
)

// TechniqueGroup fx 值组名称，技术模块以此组提供实现
const TechniqueGroup = "natt.techniques"

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Techniques []interfaces.Technique `group:"natt.techniques"`
}

// ProvideRegistry 由注入的技术构建注册表
//
// fx 值组的顺序不确定，这里按技术标识排序，保证相同集合得到相同的决策表。
func ProvideRegistry(input ModuleInput) (*Registry, error) {
	techniques := append([]interfaces.Technique(nil), input.Techniques...)
	sort.SliceStable(techniques, func(i, j int) bool {
		return techniques[i].Metadata().ID < techniques[j].Metadata().ID
	})
	return NewRegistry(techniques...)
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("natt.decision",
		fx.Provide(ProvideRegistry),
	)
}

// AsTechnique 将构造函数的结果标注为值组成员
func AsTechnique(constructor any) any {
	return fx.Annotate(
		constructor,
		fx.As(new(interfaces.Technique)),
		fx.ResultTags(`group:"natt.techniques"`),
	)
}
