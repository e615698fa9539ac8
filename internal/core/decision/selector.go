package decision

import (
	"sort"

	"github.com/dep2p/go-natt/pkg/interfaces"
	"github.com/dep2p/go-natt/pkg/types"
)

// Selector 在决策表之上按预计建立耗时排序
type Selector struct {
	table *Table
}

// NewSelector 创建选择器
func NewSelector(table *Table) *Selector {
	return &Selector{table: table}
}

// Rank 返回适用于 s 的技术，按 SetupTime 升序稳定排序
//
// 耗时相同时保持决策表顺序（先声明者在前）。每次调用返回新切片。
func (s *Selector) Rank(situation types.NATSituation) []interfaces.Technique {
	ranked := s.table.Lookup(situation)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Metadata().SetupTime < ranked[j].Metadata().SetupTime
	})
	return ranked
}

// Table 返回底层决策表
func (s *Selector) Table() *Table {
	return s.table
}
