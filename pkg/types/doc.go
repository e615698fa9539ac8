// Package types 定义 go-natt 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - nat.go       - NATFeature, NATFeatureRealization, NATBehavior, NATSituation
//   - technique.go - TechniqueMetadata
//   - ids.go       - PeerID, TechniqueID, RaceToken
//   - control.go   - ControlMessage 及其种类/类别
//
// # 通配匹配
//
// DontCare 表示"未知 / 匹配任意值"。NATSituation 的 == 是精确比较，
// 查表时用 Matches 逐位置通配匹配：任一方为 DontCare 或两者相等即匹配。
package types
