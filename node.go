package natt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-natt/config"
	"github.com/dep2p/go-natt/internal/core/decision"
	"github.com/dep2p/go-natt/internal/core/orchestrator"
	"github.com/dep2p/go-natt/internal/util/logger"
	"github.com/dep2p/go-natt/pkg/interfaces"
	"github.com/dep2p/go-natt/pkg/types"
)

var log = logger.Logger("natt")

// NodeState 节点状态
type NodeState int

const (
	// StateCreated 已创建未启动
	StateCreated NodeState = iota
	// StateRunning 运行中
	StateRunning
	// StateClosed 已关闭
	StateClosed
)

func (s NodeState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Node NAT 穿透节点
type Node struct {
	cfg *config.Config
	app *fx.App

	// 由 fx 注入
	source     *orchestrator.Source
	targets    orchestrator.TargetFactory
	registry   *decision.Registry
	classifier interfaces.BehaviorClassifier

	mu        sync.Mutex
	state     NodeState
	listeners map[*orchestrator.Target]struct{}
}

// ════════════════════════════════════════════════════════════════════════════
//                              构造与生命周期
// ════════════════════════════════════════════════════════════════════════════

// New 创建节点，需要调用 Start 启动
//
//	node, err := natt.New(
//	    natt.WithPeerID("peer-a"),
//	    natt.WithProbeServer("203.0.113.10:3478"),
//	)
func New(opts ...Option) (*Node, error) {
	o := newOptions()
	if err := o.apply(opts...); err != nil {
		return nil, err
	}

	n := &Node{
		cfg:       o.config,
		listeners: make(map[*orchestrator.Target]struct{}),
	}
	app, err := buildFxApp(o, n)
	if err != nil {
		return nil, err
	}
	n.app = app
	return n, nil
}

// Start 创建并启动节点
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	n, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := n.Start(ctx); err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}
	return n, nil
}

// Start 启动 fx 应用
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateClosed:
		return ErrNodeClosed
	}
	if err := n.app.Start(ctx); err != nil {
		return err
	}
	n.state = StateRunning

	log.Info("节点已启动",
		"peer", types.PeerID(n.cfg.Orchestrator.PeerID).ShortString(),
		"techniques", len(n.registry.Supported()),
		"classifier", n.classifier != nil)
	return nil
}

// Close 注销所有目标端并停止 fx 应用
func (n *Node) Close() error {
	n.mu.Lock()
	if n.state == StateClosed {
		n.mu.Unlock()
		return nil
	}
	running := n.state == StateRunning
	n.state = StateClosed
	listeners := n.listeners
	n.listeners = nil
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), n.app.StopTimeout())
	defer cancel()

	var err error
	for t := range listeners {
		if derr := t.Deregister(ctx); derr != nil && !errors.Is(derr, orchestrator.ErrNotRegistered) {
			err = multierr.Append(err, derr)
		}
	}
	if running {
		err = multierr.Append(err, n.app.Stop(ctx))
	}
	log.Info("节点已关闭")
	return err
}

// State 返回节点状态
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Node) checkRunning() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.state {
	case StateCreated:
		return ErrNotStarted
	case StateClosed:
		return ErrNodeClosed
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              连接
// ════════════════════════════════════════════════════════════════════════════

// Connect 经控制通道 ch 建立到 target 的连接
//
// 连接建立后 ch 仍归调用方所有。
func (n *Node) Connect(ctx context.Context, target types.PeerID, ch interfaces.ControlChannel, opts ...orchestrator.ConnectOption) (net.Conn, error) {
	if err := n.checkRunning(); err != nil {
		return nil, err
	}
	return n.source.Connect(ctx, target, ch, opts...)
}

// Listen 在 ch 上注册为目标端
//
// 返回的 Target 由节点跟踪，Close 时自动注销。
func (n *Node) Listen(ctx context.Context, ch interfaces.ControlChannel) (*orchestrator.Target, error) {
	if err := n.checkRunning(); err != nil {
		return nil, err
	}

	t, err := n.targets(ch)
	if err != nil {
		return nil, err
	}
	if err := t.Register(ctx); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateRunning {
		_ = t.Deregister(context.Background())
		return nil, ErrNodeClosed
	}
	n.listeners[t] = struct{}{}
	return t, nil
}

// Classify 对 sourcePort 做 NAT 行为分类
func (n *Node) Classify(ctx context.Context, sourcePort int) (types.NATBehavior, error) {
	if n.classifier == nil {
		return types.UnknownBehavior(), ErrClassifierDisabled
	}
	return n.classifier.Classify(ctx, sourcePort), nil
}

// Techniques 返回已注册技术的元数据
func (n *Node) Techniques() []types.TechniqueMetadata {
	techs := n.registry.Techniques()
	out := make([]types.TechniqueMetadata, 0, len(techs))
	for _, t := range techs {
		out = append(out, t.Metadata())
	}
	return out
}

// Registry 返回技术注册表
func (n *Node) Registry() *decision.Registry {
	return n.registry
}
