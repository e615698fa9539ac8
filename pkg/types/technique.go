package types

import "time"

// ============================================================================
//                        TechniqueMetadata - 技术元数据
// ============================================================================

// TechniqueMetadata 穿透技术的元数据
//
// 构造后视为不可变。注册表只对外提供 Clone 后的副本。
type TechniqueMetadata struct {
	// ID 协议层数字标识，连接请求中据此解析技术
	ID TechniqueID

	// Name 技术名称，同时作为去重的身份标识
	Name string

	// Version 实现版本
	Version string

	// SetupTime 预计建立耗时，排序依据
	SetupTime time.Duration

	// ResponseTimeout 单次尝试的超时时间
	ResponseTimeout time.Duration

	// Situations 已知可穿透的情形集合（可含通配项）
	Situations []NATSituation

	// DirectPath 是否产生直连（非中继）路径
	DirectPath bool
}

// Clone 深拷贝
func (m TechniqueMetadata) Clone() TechniqueMetadata {
	c := m
	if m.Situations != nil {
		c.Situations = make([]NATSituation, len(m.Situations))
		copy(c.Situations, m.Situations)
	}
	return c
}

// Traverses 声明的情形中是否有与 s 通配匹配的
func (m TechniqueMetadata) Traverses(s NATSituation) bool {
	for _, declared := range m.Situations {
		if declared.Matches(s) {
			return true
		}
	}
	return false
}

// String 返回 "name/version"
func (m TechniqueMetadata) String() string {
	if m.Version == "" {
		return m.Name
	}
	return m.Name + "/" + m.Version
}
