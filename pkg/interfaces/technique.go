package interfaces

import (
	"context"
	"net"

	"github.com/dep2p/go-natt/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
// ControlChannel 接口（中介控制通道）
// 实现位置：internal/core/mediator/
// ════════════════════════════════════════════════════════════════════════════

// ControlChannel 与中介服务器之间的控制通道
//
// Request 与 Receive 可以并发调用：响应按事务 ID 交给对应的 Request，
// 请求与指示按到达顺序交给 Receive。目标端注册后由读循环独占 Receive。
type ControlChannel interface {
	// Send 发送一条消息
	Send(ctx context.Context, msg *types.ControlMessage) error

	// Receive 读取下一条消息，阻塞直到收到消息或 ctx 结束
	Receive(ctx context.Context) (*types.ControlMessage, error)

	// Request 发送请求并等待同一事务 ID 的响应
	//
	// 若请求未设置事务 ID，会自动生成。错误响应以 error 返回。
	Request(ctx context.Context, msg *types.ControlMessage) (*types.ControlMessage, error)

	// Close 关闭通道
	Close() error
}

// ════════════════════════════════════════════════════════════════════════════
// Technique 接口（穿透技术）
// 实现位置：internal/core/holepunch/, internal/core/technique/
// ════════════════════════════════════════════════════════════════════════════

// Technique 可插拔的 NAT 穿透技术
//
// 实现必须响应 ctx 取消：编排器在超时后取消 ctx 并丢弃结果，
// 迟到返回的连接由编排器关闭。
type Technique interface {
	// Metadata 返回技术元数据
	Metadata() types.TechniqueMetadata

	// CreateSourceSideConnection 作为发起方建立到 target 的连接
	CreateSourceSideConnection(ctx context.Context, target types.PeerID, ch ControlChannel) (net.Conn, error)

	// CreateTargetSideConnection 作为目标方响应连接请求
	//
	// req 是收到的连接请求，响应需通过 ch.Send 发出。
	CreateTargetSideConnection(ctx context.Context, source types.PeerID, ch ControlChannel, req *types.ControlMessage) (net.Conn, error)

	// RegisterAtMediator 目标端注册时调用，不需要时实现为空操作
	RegisterAtMediator(ctx context.Context, ch ControlChannel) error

	// DeregisterAtMediator 目标端注销时调用，不需要时实现为空操作
	DeregisterAtMediator(ctx context.Context, ch ControlChannel) error
}

// ════════════════════════════════════════════════════════════════════════════
// BehaviorClassifier 接口（NAT 行为分类）
// 实现位置：internal/core/classifier/
// ════════════════════════════════════════════════════════════════════════════

// BehaviorClassifier 对本地端点做 NAT 行为分类
type BehaviorClassifier interface {
	// Classify 从 sourcePort 出发分类映射与过滤行为
	//
	// 从不返回错误：无法判定的特性为 DontCare。
	Classify(ctx context.Context, sourcePort int) types.NATBehavior
}

// Endpoints 本地观测到的一对端点
type Endpoints struct {
	// Private 本地绑定端点
	Private *net.TCPAddr
	// Public 反射服务器观测到的映射端点
	Public *net.TCPAddr
}

// EndpointDiscoverer 发现某个本地端口的公网映射端点
type EndpointDiscoverer interface {
	Discover(ctx context.Context, sourcePort int) (Endpoints, error)
}
