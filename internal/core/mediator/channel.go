package mediator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/stun"

	"github.com/dep2p/go-natt/internal/util/logger"
	"github.com/dep2p/go-natt/internal/util/stunframe"
	"github.com/dep2p/go-natt/pkg/interfaces"
	"github.com/dep2p/go-natt/pkg/types"
)

var log = logger.Logger("natt.mediator")

const (
	// DefaultRequestTimeout ctx 无截止时间时 Request 的默认超时
	DefaultRequestTimeout = 5 * time.Second

	inboxSize = 64
)

// Option 通道选项
type Option func(*Channel)

// WithRequestTimeout 设置默认请求超时
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithWriteTimeout 设置写超时
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// Channel 基于流连接的中介控制通道
//
// 每个通道由一个读 goroutine 独占读取连接：响应按事务 ID 交给对应的
// Request，其余消息进入 inbox 供 Receive 取走。读取出错后 done 关闭，
// readErr 记录原因。
type Channel struct {
	conn net.Conn

	wmu sync.Mutex

	pendingMu sync.Mutex
	pending   map[[types.TransactionIDSize]byte]chan *types.ControlMessage
	inbox     chan *types.ControlMessage

	requestTimeout time.Duration
	writeTimeout   time.Duration

	closeOnce sync.Once
	closed    chan struct{}

	done    chan struct{}
	readErr error
}

var _ interfaces.ControlChannel = (*Channel)(nil)

// NewChannel 包装已建立的连接
func NewChannel(conn net.Conn, opts ...Option) *Channel {
	c := &Channel{
		conn:           conn,
		pending:        make(map[[types.TransactionIDSize]byte]chan *types.ControlMessage),
		inbox:          make(chan *types.ControlMessage, inboxSize),
		requestTimeout: DefaultRequestTimeout,
		writeTimeout:   5 * time.Second,
		closed:         make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// Dial 连接到中介服务器
func Dial(ctx context.Context, addr string, opts ...Option) (*Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("mediator: dial %s: %w", addr, err)
	}
	return NewChannel(conn, opts...), nil
}

// Pipe 返回一对内存中互联的通道
func Pipe(opts ...Option) (*Channel, *Channel) {
	a, b := net.Pipe()
	return NewChannel(a, opts...), NewChannel(b, opts...)
}

// Send 实现 ControlChannel
func (c *Channel) Send(ctx context.Context, msg *types.ControlMessage) error {
	m, err := Encode(msg)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := stunframe.WriteContext(ctx, c.conn, c.writeTimeout, m); err != nil {
		return c.wrap(err)
	}
	return nil
}

// Receive 实现 ControlChannel
//
// 返回下一条非响应消息；属于进行中 Request 的响应不会出现在这里。
// 连接断开后先取完已入队的消息，再返回读错误。
func (c *Channel) Receive(ctx context.Context) (*types.ControlMessage, error) {
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		select {
		case msg := <-c.inbox:
			return msg, nil
		default:
		}
		return nil, c.readErr
	}
}

// Request 实现 ControlChannel
//
// 可与 Receive 以及其它 Request 并发调用。
func (c *Channel) Request(ctx context.Context, msg *types.ControlMessage) (*types.ControlMessage, error) {
	if msg.TransactionID == ([types.TransactionIDSize]byte{}) {
		msg.TransactionID = stun.NewTransactionID()
	}
	msg.Class = types.ClassRequest

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	wait := make(chan *types.ControlMessage, 1)
	c.pendingMu.Lock()
	c.pending[msg.TransactionID] = wait
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, msg.TransactionID)
		c.pendingMu.Unlock()
	}()

	if err := c.Send(ctx, msg); err != nil {
		return nil, err
	}

	select {
	case resp := <-wait:
		return result(resp)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		select {
		case resp := <-wait:
			return result(resp)
		default:
		}
		return nil, c.readErr
	}
}

// Close 实现 ControlChannel
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr 对端地址
func (c *Channel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// ============================================================================
//                              内部方法
// ============================================================================

// readLoop 独占读取连接并分发消息，连接出错后退出
func (c *Channel) readLoop() {
	defer close(c.done)
	for {
		m, err := stunframe.Read(c.conn)
		if err != nil {
			c.readErr = c.wrap(err)
			log.Debug("控制通道读取结束", "err", err)
			return
		}
		msg, err := Decode(m)
		if err != nil {
			log.Debug("丢弃无法解码的消息", "err", err)
			continue
		}
		if c.deliver(msg) {
			continue
		}
		c.enqueue(msg)
	}
}

// deliver 将响应交给等待中的 Request；消息已被消费时返回 true
func (c *Channel) deliver(msg *types.ControlMessage) bool {
	if !msg.IsResponse() {
		return false
	}

	c.pendingMu.Lock()
	wait, ok := c.pending[msg.TransactionID]
	if ok {
		delete(c.pending, msg.TransactionID)
	}
	c.pendingMu.Unlock()

	if ok {
		wait <- msg
	} else {
		log.Debug("丢弃无人等待的响应", "kind", msg.Kind, "class", msg.Class)
	}
	return true
}

func (c *Channel) enqueue(msg *types.ControlMessage) {
	select {
	case c.inbox <- msg:
	default:
		log.Warn("收件队列已满，丢弃消息", "kind", msg.Kind)
	}
}

func result(resp *types.ControlMessage) (*types.ControlMessage, error) {
	if resp.Class == types.ClassError {
		return resp, &ResponseError{Kind: resp.Kind, Code: resp.ErrorCode, Reason: resp.ErrorReason}
	}
	return resp, nil
}

func (c *Channel) wrap(err error) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return err
}
