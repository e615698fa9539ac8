package decision

import (
	"github.com/dep2p/go-natt/pkg/interfaces"
	"github.com/dep2p/go-natt/pkg/types"
)

// ============================================================================
//                              DecisionRule - 决策规则
// ============================================================================

// Rule 一个情形及声明了该情形的技术列表（按首次出现顺序）
type Rule struct {
	Situation  types.NATSituation
	Techniques []interfaces.Technique
}

// ============================================================================
//                              Table - 决策表
// ============================================================================

// Table 情形到技术列表的查找结构
//
// 构造完成后只读，可被任意多个 goroutine 并发查询。
type Table struct {
	rules []Rule
}

// BuildTable 从技术集合构建决策表
//
// 每个不同的声明情形对应一条规则；声明了完全相同情形的技术合并进同一规则，
// 按名称去重，保留首次出现顺序。规则本身也按首次出现顺序排列。
func BuildTable(techniques []interfaces.Technique) *Table {
	index := make(map[types.NATSituation]int)
	var rules []Rule

	for _, tech := range techniques {
		meta := tech.Metadata()
		for _, s := range meta.Situations {
			i, ok := index[s]
			if !ok {
				i = len(rules)
				index[s] = i
				rules = append(rules, Rule{Situation: s})
			}
			if !containsName(rules[i].Techniques, meta.Name) {
				rules[i].Techniques = append(rules[i].Techniques, tech)
			}
		}
	}

	return &Table{rules: rules}
}

// Lookup 返回与 s 通配匹配的所有规则的技术并集
//
// 按规则顺序合并、按名称去重；无匹配返回空切片。
func (t *Table) Lookup(s types.NATSituation) []interfaces.Technique {
	result := make([]interfaces.Technique, 0)
	for _, rule := range t.rules {
		if !rule.Situation.Matches(s) {
			continue
		}
		for _, tech := range rule.Techniques {
			if !containsName(result, tech.Metadata().Name) {
				result = append(result, tech)
			}
		}
	}
	return result
}

// Rules 返回规则副本
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		out[i] = Rule{
			Situation:  r.Situation,
			Techniques: append([]interfaces.Technique(nil), r.Techniques...),
		}
	}
	return out
}

// Len 规则数量
func (t *Table) Len() int {
	return len(t.rules)
}

func containsName(list []interfaces.Technique, name string) bool {
	for _, tech := range list {
		if tech.Metadata().Name == name {
			return true
		}
	}
	return false
}
