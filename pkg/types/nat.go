package types

import "fmt"

// ============================================================================
//                              NATFeature - NAT 特性
// ============================================================================

// NATFeature 可独立分类的 NAT 特性
type NATFeature int

const (
	// FeatureMapping 映射行为
	FeatureMapping NATFeature = iota
	// FeatureFiltering 过滤行为
	FeatureFiltering
)

// String 返回特性名称
func (f NATFeature) String() string {
	switch f {
	case FeatureMapping:
		return "mapping"
	case FeatureFiltering:
		return "filtering"
	default:
		return "unknown"
	}
}

// ============================================================================
//                     NATFeatureRealization - 特性实现方式
// ============================================================================

// NATFeatureRealization NAT 特性的实现方式
//
// 除 DontCare 外，取值按限制程度从低到高排列。
// DontCare 是通配值，表示"未知 / 与任意值匹配"。
type NATFeatureRealization uint8

const (
	// NotRealized 未实现（不存在 NAT）
	NotRealized NATFeatureRealization = iota
	// EndpointIndependent 端点无关
	EndpointIndependent
	// AddressDependent 地址相关
	AddressDependent
	// AddressAndPortDependent 地址和端口相关
	AddressAndPortDependent
	// ConnectionDependent 连接相关（每条连接都不同）
	ConnectionDependent
	// DontCare 通配 / 未知
	DontCare
)

// String 返回实现方式的字符串表示
func (r NATFeatureRealization) String() string {
	switch r {
	case NotRealized:
		return "not_realized"
	case EndpointIndependent:
		return "endpoint_independent"
	case AddressDependent:
		return "address_dependent"
	case AddressAndPortDependent:
		return "address_and_port_dependent"
	case ConnectionDependent:
		return "connection_dependent"
	case DontCare:
		return "dont_care"
	default:
		return fmt.Sprintf("realization(%d)", uint8(r))
	}
}

// Valid 检查取值是否在定义范围内
func (r NATFeatureRealization) Valid() bool {
	return r <= DontCare
}

// Matches 通配匹配：任一方为 DontCare 或两者相等
func (r NATFeatureRealization) Matches(other NATFeatureRealization) bool {
	return r == DontCare || other == DontCare || r == other
}

// ParseRealization 从字符串解析实现方式
func ParseRealization(s string) (NATFeatureRealization, error) {
	for r := NotRealized; r <= DontCare; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return DontCare, fmt.Errorf("unknown nat feature realization %q", s)
}

// ============================================================================
//                              NATBehavior - NAT 行为
// ============================================================================

// NATBehavior 描述单个端点所在 NAT 的映射与过滤行为
type NATBehavior struct {
	Mapping   NATFeatureRealization
	Filtering NATFeatureRealization
}

// UnknownBehavior 返回完全未知的行为（两项均为 DontCare）
func UnknownBehavior() NATBehavior {
	return NATBehavior{Mapping: DontCare, Filtering: DontCare}
}

// Get 返回指定特性的实现方式
func (b NATBehavior) Get(f NATFeature) NATFeatureRealization {
	if f == FeatureFiltering {
		return b.Filtering
	}
	return b.Mapping
}

// IsUnknown 两项是否都是 DontCare
func (b NATBehavior) IsUnknown() bool {
	return b.Mapping == DontCare && b.Filtering == DontCare
}

// Matches 对两项分别做通配匹配
func (b NATBehavior) Matches(other NATBehavior) bool {
	return b.Mapping.Matches(other.Mapping) && b.Filtering.Matches(other.Filtering)
}

// String 返回 "(mapping,filtering)" 形式
func (b NATBehavior) String() string {
	return "(" + b.Mapping.String() + "," + b.Filtering.String() + ")"
}

// ============================================================================
//                              NATSituation - NAT 情形
// ============================================================================

// NATSituation 本端与对端 NAT 行为的组合，共四个标量
//
// == 比较为精确相等；查表时使用 Matches 做通配匹配。
type NATSituation struct {
	Local  NATBehavior
	Remote NATBehavior
}

// NewSituation 由四个标量构造情形
func NewSituation(localMapping, localFiltering, remoteMapping, remoteFiltering NATFeatureRealization) NATSituation {
	return NATSituation{
		Local:  NATBehavior{Mapping: localMapping, Filtering: localFiltering},
		Remote: NATBehavior{Mapping: remoteMapping, Filtering: remoteFiltering},
	}
}

// AnySituation 四个位置均为 DontCare 的情形
func AnySituation() NATSituation {
	return NATSituation{Local: UnknownBehavior(), Remote: UnknownBehavior()}
}

// Matches 四个位置逐一通配匹配
func (s NATSituation) Matches(other NATSituation) bool {
	return s.Local.Matches(other.Local) && s.Remote.Matches(other.Remote)
}

// String 返回 "local->remote" 形式
func (s NATSituation) String() string {
	return s.Local.String() + "->" + s.Remote.String()
}
