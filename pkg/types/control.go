package types

import (
	"net"
)

// ============================================================================
//                        ControlMessage - 中介控制消息
// ============================================================================

// MessageKind 控制消息种类
type MessageKind uint16

const (
	// KindRegister 注册
	KindRegister MessageKind = iota + 1
	// KindDeregister 注销
	KindDeregister
	// KindKeepAlive 保活
	KindKeepAlive
	// KindQueryBehavior 查询对端 NAT 行为
	KindQueryBehavior
	// KindQueryTechniques 查询对端支持的技术
	KindQueryTechniques
	// KindConnect 连接请求
	KindConnect
)

// String 返回种类名称
func (k MessageKind) String() string {
	switch k {
	case KindRegister:
		return "register"
	case KindDeregister:
		return "deregister"
	case KindKeepAlive:
		return "keepalive"
	case KindQueryBehavior:
		return "query_behavior"
	case KindQueryTechniques:
		return "query_techniques"
	case KindConnect:
		return "connect"
	default:
		return "unknown"
	}
}

// MessageClass 消息类别
type MessageClass uint8

const (
	// ClassRequest 请求
	ClassRequest MessageClass = iota
	// ClassIndication 指示（不需要响应）
	ClassIndication
	// ClassSuccess 成功响应
	ClassSuccess
	// ClassError 错误响应
	ClassError
)

// String 返回类别名称
func (c MessageClass) String() string {
	switch c {
	case ClassRequest:
		return "request"
	case ClassIndication:
		return "indication"
	case ClassSuccess:
		return "success"
	case ClassError:
		return "error"
	default:
		return "unknown"
	}
}

// TransactionIDSize 事务 ID 长度
const TransactionIDSize = 12

// ControlMessage 中介控制通道上的消息（已解码形式）
//
// 可选字段的零值表示"未携带"。
type ControlMessage struct {
	Kind          MessageKind
	Class         MessageClass
	TransactionID [TransactionIDSize]byte

	// Source 发送方标识
	Source PeerID
	// Target 目标节点标识
	Target PeerID

	// Behavior NAT 行为，仅 HasBehavior 为 true 时有效
	Behavior    NATBehavior
	HasBehavior bool

	// Techniques 支持的技术标识集合
	Techniques []TechniqueID

	// Technique 连接请求使用的技术
	Technique TechniqueID

	// Public 公网观测端点
	Public *net.TCPAddr
	// Private 本地/内网端点
	Private *net.TCPAddr

	// Token 会话令牌
	Token RaceToken

	// ErrorCode 失败码，ErrorReason 失败原因
	ErrorCode   int
	ErrorReason string
}

// IsResponse 是否为响应
func (m *ControlMessage) IsResponse() bool {
	return m.Class == ClassSuccess || m.Class == ClassError
}

// Reply 基于请求构造同一事务的响应
func (m *ControlMessage) Reply(class MessageClass) *ControlMessage {
	return &ControlMessage{
		Kind:          m.Kind,
		Class:         class,
		TransactionID: m.TransactionID,
		Source:        m.Target,
		Target:        m.Source,
		Technique:     m.Technique,
	}
}

// Supports 技术集合中是否包含 id
func (m *ControlMessage) Supports(id TechniqueID) bool {
	for _, t := range m.Techniques {
		if t == id {
			return true
		}
	}
	return false
}
