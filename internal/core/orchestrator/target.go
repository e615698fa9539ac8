package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-natt/internal/core/decision"
	"github.com/dep2p/go-natt/internal/core/mediator"
	"github.com/dep2p/go-natt/pkg/interfaces"
	"github.com/dep2p/go-natt/pkg/types"
)

// ============================================================================
//                              状态
// ============================================================================

// State 目标端状态
type State int32

const (
	StateUnregistered State = iota
	StateWaitingForRequest
	StateEstablishing
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateWaitingForRequest:
		return "waiting_for_request"
	case StateEstablishing:
		return "establishing"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ============================================================================
//                              Target
// ============================================================================

// Target 目标端编排器
//
// 一个 Target 绑定一条控制通道。Register 之后由内部读循环独占 Receive。
type Target struct {
	cfg      Config
	registry *decision.Registry
	ch       interfaces.ControlChannel
	opts     options

	// regMu 串行化 Register 与 Deregister
	regMu sync.Mutex

	mu       sync.Mutex
	state    State
	behavior types.NATBehavior
	cancel   context.CancelFunc
	done     chan struct{}
	slot     chan net.Conn
	loopErr  error

	wg sync.WaitGroup
}

// worker 一次目标端建立过程
type worker struct {
	id        string
	technique string
	cancel    context.CancelFunc
}

type workerResult struct {
	w       *worker
	conn    net.Conn
	err     error
	elapsed time.Duration
}

// NewTarget 创建目标端编排器
func NewTarget(cfg Config, registry *decision.Registry, ch interfaces.ControlChannel, opts ...Option) (*Target, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Target{cfg: cfg, registry: registry, ch: ch, opts: o}, nil
}

// State 返回当前状态
func (t *Target) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Behavior 注册时上报的本地 NAT 行为
func (t *Target) Behavior() types.NATBehavior {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.behavior
}

func (t *Target) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Register 向中介注册并启动读循环与保活
func (t *Target) Register(ctx context.Context) error {
	t.regMu.Lock()
	defer t.regMu.Unlock()

	t.mu.Lock()
	registered := t.cancel != nil
	t.mu.Unlock()
	if registered {
		return ErrAlreadyRegistered
	}

	behavior := localBehavior(ctx, t.cfg, t.opts)

	for _, tech := range t.registry.Techniques() {
		if err := tech.RegisterAtMediator(ctx, t.ch); err != nil {
			log.Warn("技术注册失败", "technique", tech.Metadata().Name, "err", err)
		}
	}

	rctx, cancel := context.WithTimeout(ctx, t.cfg.RegisterTimeout)
	_, err := t.ch.Request(rctx, &types.ControlMessage{
		Kind:        types.KindRegister,
		Source:      t.cfg.PeerID,
		Behavior:    behavior,
		HasBehavior: true,
		Techniques:  t.registry.Supported(),
	})
	cancel()
	if err != nil {
		t.deregisterTechniques(ctx)
		return fmt.Errorf("orchestrator: register: %w", err)
	}

	loopCtx, loopCancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.mu.Lock()
	t.state = StateWaitingForRequest
	t.behavior = behavior
	t.cancel = loopCancel
	t.done = done
	t.slot = make(chan net.Conn, 1)
	t.loopErr = nil
	t.mu.Unlock()

	t.wg.Add(2)
	go t.run(loopCtx, done)
	go t.keepAlive(loopCtx)

	log.Info("已注册到中介",
		"peer", t.cfg.PeerID.ShortString(),
		"behavior", behavior,
		"techniques", len(t.registry.Supported()))
	return nil
}

// Accept 阻塞直到一个连接建立
//
// 取走连接后进入下一轮等待。读循环因通道错误结束时返回 ErrChannelClosed。
func (t *Target) Accept(ctx context.Context) (net.Conn, error) {
	t.mu.Lock()
	slot, done, loopErr := t.slot, t.done, t.loopErr
	t.mu.Unlock()
	if slot == nil {
		if loopErr != nil {
			return nil, loopErr
		}
		return nil, ErrNotRegistered
	}

	take := func(conn net.Conn) net.Conn {
		t.mu.Lock()
		if t.state == StateConnected {
			t.state = StateWaitingForRequest
		}
		t.mu.Unlock()
		return conn
	}

	select {
	case conn := <-slot:
		return take(conn), nil
	default:
	}

	select {
	case conn := <-slot:
		return take(conn), nil
	case <-done:
		t.mu.Lock()
		err := t.loopErr
		t.mu.Unlock()
		if err == nil {
			err = ErrNotRegistered
		}
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Deregister 注销并停止读循环与保活
//
// 注销确认失败时仍会释放本地资源，并返回该错误。控制通道出错后
// 注册已自动结束，此时返回 ErrNotRegistered。
func (t *Target) Deregister(ctx context.Context) error {
	t.regMu.Lock()
	defer t.regMu.Unlock()

	t.mu.Lock()
	cancel, loopErr := t.cancel, t.loopErr
	t.mu.Unlock()
	if cancel == nil {
		return ErrNotRegistered
	}

	var err error
	if loopErr == nil {
		rctx, rcancel := context.WithTimeout(ctx, t.cfg.RegisterTimeout)
		_, err = t.ch.Request(rctx, &types.ControlMessage{
			Kind:   types.KindDeregister,
			Source: t.cfg.PeerID,
		})
		rcancel()
	}

	cancel()
	t.wg.Wait()

	// 读循环已因通道错误结束时，fail 已经完成清理
	t.mu.Lock()
	failed := t.cancel == nil
	slot := t.slot
	t.state = StateUnregistered
	t.cancel = nil
	t.slot = nil
	t.mu.Unlock()

	if !failed {
		t.deregisterTechniques(ctx)
	}
	select {
	case conn := <-slot:
		_ = conn.Close()
	default:
	}

	log.Info("已从中介注销", "peer", t.cfg.PeerID.ShortString())
	if err != nil {
		return fmt.Errorf("orchestrator: deregister: %w", err)
	}
	return nil
}

// ============================================================================
//                              读循环
// ============================================================================

// run 读取入站消息并分发，等待工作者时不阻塞读取
func (t *Target) run(ctx context.Context, done chan struct{}) {
	defer t.wg.Done()
	defer close(done)

	msgs := make(chan *types.ControlMessage)
	readErr := make(chan error, 1)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			msg, err := t.ch.Receive(ctx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	results := make(chan workerResult)
	var current *worker

	for {
		select {
		case <-ctx.Done():
			if current != nil {
				current.cancel()
			}
			return

		case err := <-readErr:
			if current != nil {
				current.cancel()
			}
			if ctx.Err() != nil {
				return
			}
			t.fail(err)
			return

		case msg := <-msgs:
			current = t.dispatch(ctx, msg, current, results)

		case r := <-results:
			if r.w != current {
				// 已被新请求取代
				if r.conn != nil {
					_ = r.conn.Close()
				}
				continue
			}
			current = nil
			t.complete(r)
		}
	}
}

// dispatch 处理一条入站消息，返回当前工作者
func (t *Target) dispatch(ctx context.Context, msg *types.ControlMessage, current *worker, results chan<- workerResult) *worker {
	switch {
	case msg.Kind == types.KindConnect && msg.Class == types.ClassRequest:
	case msg.Kind == types.KindKeepAlive && msg.Class == types.ClassRequest:
		t.reply(ctx, msg.Reply(types.ClassSuccess))
		return current
	default:
		log.Debug("忽略消息", "kind", msg.Kind, "class", msg.Class)
		return current
	}

	tech, ok := t.registry.Lookup(msg.Technique)
	if !ok {
		log.Debug("连接请求使用了不支持的技术", "technique", msg.Technique, "source", msg.Source.ShortString())
		t.replyError(ctx, msg, mediator.CodeUnsupported, "unsupported technique")
		return current
	}

	if t.State() == StateConnected {
		t.replyError(ctx, msg, mediator.CodeBusy, "previous connection not accepted")
		return current
	}

	if current != nil {
		log.Debug("新的连接请求取代进行中的建立过程", "worker", current.id, "technique", current.technique)
		current.cancel()
	}

	md := tech.Metadata()
	wctx, cancel := context.WithTimeout(ctx, t.cfg.techniqueTimeout(md))
	w := &worker{id: uuid.NewString(), technique: md.Name, cancel: cancel}
	t.setState(StateEstablishing)

	log.Debug("开始目标端建立",
		"worker", w.id,
		"technique", md.Name,
		"source", msg.Source.ShortString())

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()

		start := time.Now()
		conn, err := tech.CreateTargetSideConnection(wctx, msg.Source, t.ch, msg)
		if err == nil && conn == nil {
			err = ErrNoConnection
		}
		if err != nil && conn != nil {
			_ = conn.Close()
			conn = nil
		}

		r := workerResult{w: w, conn: conn, err: err, elapsed: time.Since(start)}
		select {
		case results <- r:
		case <-ctx.Done():
			if conn != nil {
				_ = conn.Close()
			}
		}
	}()
	return w
}

// complete 处理当前工作者的结果
func (t *Target) complete(r workerResult) {
	kind := Connected
	switch {
	case r.err == nil:
	case errors.Is(r.err, context.DeadlineExceeded):
		kind = TimedOut
	default:
		kind = Failed
	}
	t.opts.metrics.AttemptFinished(RoleTarget, r.w.technique, kind, r.elapsed)

	if kind != Connected {
		log.Debug("目标端建立失败，继续等待请求",
			"worker", r.w.id,
			"technique", r.w.technique,
			"outcome", kind,
			"err", r.err)
		t.opts.metrics.ConnectionFinished(RoleTarget, false)
		t.setState(StateWaitingForRequest)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case t.slot <- r.conn:
		t.state = StateConnected
		t.opts.metrics.ConnectionFinished(RoleTarget, true)
		log.Info("目标端连接已建立",
			"worker", r.w.id,
			"technique", r.w.technique,
			"remote", r.conn.RemoteAddr())
	default:
		_ = r.conn.Close()
	}
}

// fail 控制通道不可恢复，结束注册
func (t *Target) fail(err error) {
	if !errors.Is(err, mediator.ErrChannelClosed) {
		err = fmt.Errorf("%w: %v", mediator.ErrChannelClosed, err)
	}
	log.Warn("控制通道出错，读循环结束", "err", err)

	t.mu.Lock()
	t.loopErr = err
	t.state = StateUnregistered
	cancel, slot := t.cancel, t.slot
	t.cancel = nil
	t.slot = nil
	t.mu.Unlock()

	// 停止保活
	if cancel != nil {
		cancel()
	}
	select {
	case conn := <-slot:
		_ = conn.Close()
	default:
	}
	t.deregisterTechniques(context.Background())
}

// keepAlive 按固定间隔发送保活指示
func (t *Target) keepAlive(ctx context.Context) {
	defer t.wg.Done()

	ticker := t.opts.clock.Ticker(t.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := t.ch.Send(ctx, &types.ControlMessage{
				Kind:   types.KindKeepAlive,
				Class:  types.ClassIndication,
				Source: t.cfg.PeerID,
			})
			if err == nil {
				continue
			}
			if errors.Is(err, mediator.ErrChannelClosed) || ctx.Err() != nil {
				return
			}
			log.Debug("发送保活失败", "err", err)
		}
	}
}

func (t *Target) deregisterTechniques(ctx context.Context) {
	for _, tech := range t.registry.Techniques() {
		if err := tech.DeregisterAtMediator(ctx, t.ch); err != nil {
			log.Debug("技术注销失败", "technique", tech.Metadata().Name, "err", err)
		}
	}
}

func (t *Target) reply(ctx context.Context, msg *types.ControlMessage) {
	if err := t.ch.Send(ctx, msg); err != nil {
		log.Debug("发送响应失败", "kind", msg.Kind, "err", err)
	}
}

func (t *Target) replyError(ctx context.Context, req *types.ControlMessage, code int, reason string) {
	resp := req.Reply(types.ClassError)
	resp.ErrorCode = code
	resp.ErrorReason = reason
	t.reply(ctx, resp)
}
