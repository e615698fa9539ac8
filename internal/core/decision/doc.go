// Package decision 实现技术注册表、决策表与选择器
//
// 决策表为每个不同的声明情形保存一条规则，查找时对四个标量做通配匹配：
// 查询值为 DontCare、规则值为 DontCare 或两者相等即匹配。
//
// 选择器在查找结果上按 SetupTime 做稳定排序，耗时相同时先声明者在前。
//
// 注册表把技术列表、标识索引和选择器放在同一个不可变快照里，
// 通过 atomic.Pointer 整体替换，读取无需加锁。
//
// 使用示例:
//
//	reg, err := decision.NewRegistry(direct, holepunch, reversal)
//	ranked := reg.Rank(types.NATSituation{Local: local, Remote: remote})
package decision
