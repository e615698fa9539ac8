package classifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/stun"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-natt/internal/util/reuseport"
	"github.com/dep2p/go-natt/internal/util/stunframe"
)

// ============================================================================
//                              服务器配置
// ============================================================================

// ServerConfig 参考探测服务器配置
type ServerConfig struct {
	// Primary 主地址 ip:port
	Primary string

	// Alternate 备用地址 ip:port，IP 和端口都必须与主地址不同；
	// 为空时不携带 OTHER-ADDRESS，也不能执行换地址回连
	Alternate string

	// IdleTimeout 连接空闲超时
	IdleTimeout time.Duration

	// CallbackTimeout 回连拨号超时
	CallbackTimeout time.Duration
}

// DefaultServerConfig 返回默认配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		IdleTimeout:     30 * time.Second,
		CallbackTimeout: 3 * time.Second,
	}
}

// ============================================================================
//                              ProbeServer
// ============================================================================

// ProbeServer RFC 5780 TCP 参考服务器
//
// 配置备用地址时在 (IP1,P1) (IP1,P2) (IP2,P1) (IP2,P2) 四个组合上监听，
// 收到 Binding 指示后按 CHANGE-REQUEST 选择源地址回连客户端。
type ProbeServer struct {
	cfg       ServerConfig
	primary   *net.TCPAddr
	alternate *net.TCPAddr

	mu        sync.Mutex
	listeners []*net.TCPListener
	conns     map[net.Conn]struct{}
	closed    bool

	cancel context.CancelFunc
	group  *errgroup.Group
	wg     sync.WaitGroup
}

// NewProbeServer 创建探测服务器
func NewProbeServer(cfg ServerConfig) (*ProbeServer, error) {
	defaults := DefaultServerConfig()
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = defaults.CallbackTimeout
	}

	primary, err := net.ResolveTCPAddr("tcp", cfg.Primary)
	if err != nil {
		return nil, fmt.Errorf("classifier: invalid primary address: %w", err)
	}
	s := &ProbeServer{cfg: cfg, primary: primary, conns: make(map[net.Conn]struct{})}

	if cfg.Alternate != "" {
		alt, err := net.ResolveTCPAddr("tcp", cfg.Alternate)
		if err != nil {
			return nil, fmt.Errorf("classifier: invalid alternate address: %w", err)
		}
		if alt.IP.Equal(primary.IP) || alt.Port == primary.Port || primary.Port == 0 || alt.Port == 0 {
			return nil, errors.New("classifier: alternate address must differ in both IP and port, with fixed ports")
		}
		s.alternate = alt
	}
	return s, nil
}

// Start 开始监听
func (s *ProbeServer) Start(ctx context.Context) error {
	addrs := []*net.TCPAddr{s.primary}
	if s.alternate != nil {
		addrs = append(addrs,
			s.alternate,
			&net.TCPAddr{IP: s.primary.IP, Port: s.alternate.Port},
			&net.TCPAddr{IP: s.alternate.IP, Port: s.primary.Port},
		)
	}

	var listeners []*net.TCPListener
	for _, addr := range addrs {
		ln, err := reuseport.Listen(ctx, addr.String())
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return fmt.Errorf("classifier: listen %s: %w", addr, err)
		}
		listeners = append(listeners, ln)
	}

	// 主地址端口为 0 时回填实际端口
	if s.primary.Port == 0 {
		s.primary = listeners[0].Addr().(*net.TCPAddr)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)

	s.mu.Lock()
	s.listeners = listeners
	s.cancel = cancel
	s.group = g
	s.mu.Unlock()

	for _, ln := range listeners {
		ln := ln
		g.Go(func() error {
			return s.acceptLoop(gctx, ln)
		})
	}

	log.Info("探测服务器已启动", "primary", s.primary, "alternate", s.alternate)
	return nil
}

// Addr 返回主地址
func (s *ProbeServer) Addr() *net.TCPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primary
}

// Close 关闭所有监听器和连接
func (s *ProbeServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	var err error
	for _, ln := range s.listeners {
		err = multierr.Append(err, ignoreClosed(ln.Close()))
	}
	for c := range s.conns {
		_ = c.Close()
	}
	g := s.group
	s.mu.Unlock()

	if g != nil {
		if gerr := g.Wait(); gerr != nil && !errors.Is(gerr, ErrServerClosed) {
			err = multierr.Append(err, gerr)
		}
	}
	s.wg.Wait()
	return err
}

func (s *ProbeServer) acceptLoop(ctx context.Context, ln *net.TCPListener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			log.Warn("探测服务器接受连接失败", "addr", ln.Addr(), "err", err)
			return err
		}
		if !s.track(conn) {
			_ = conn.Close()
			return ErrServerClosed
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serve(ctx, conn)
		}()
	}
}

func (s *ProbeServer) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *ProbeServer) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	_ = c.Close()
}

// serve 处理一条客户端连接上的所有消息
func (s *ProbeServer) serve(ctx context.Context, conn net.Conn) {
	local := conn.LocalAddr().(*net.TCPAddr)
	remote := conn.RemoteAddr().(*net.TCPAddr)

	for {
		m, err := stunframe.ReadContext(ctx, conn, s.cfg.IdleTimeout)
		if err != nil {
			return
		}
		if m.Type.Method != stun.MethodBinding {
			log.Debug("忽略非 Binding 消息", "type", m.Type, "remote", remote)
			continue
		}

		switch m.Type.Class {
		case stun.ClassRequest:
			resp, err := s.bindingResponse(m.TransactionID, local, remote)
			if err != nil {
				log.Warn("构造 Binding 响应失败", "err", err)
				return
			}
			if err := stunframe.WriteContext(ctx, conn, s.cfg.IdleTimeout, resp); err != nil {
				return
			}

		case stun.ClassIndication:
			var change ChangeRequest
			if err := change.GetFrom(m); err != nil {
				log.Debug("CHANGE-REQUEST 无效", "err", err)
				continue
			}
			s.wg.Add(1)
			go func(tid [stun.TransactionIDSize]byte) {
				defer s.wg.Done()
				s.callback(ctx, tid, s.callbackSource(local, change), remote)
			}(m.TransactionID)
		}
	}
}

// callbackSource 按 CHANGE-REQUEST 选择回连使用的本地地址
func (s *ProbeServer) callbackSource(local *net.TCPAddr, change ChangeRequest) *net.TCPAddr {
	src := &net.TCPAddr{IP: local.IP, Port: local.Port}
	if s.alternate == nil {
		return src
	}
	if change.ChangeIP {
		if local.IP.Equal(s.primary.IP) {
			src.IP = s.alternate.IP
		} else {
			src.IP = s.primary.IP
		}
	}
	if change.ChangePort {
		if local.Port == s.primary.Port {
			src.Port = s.alternate.Port
		} else {
			src.Port = s.primary.Port
		}
	}
	return src
}

// callback 从 src 回连客户端，发送携带原指示事务 ID 的 Binding 响应
func (s *ProbeServer) callback(ctx context.Context, tid [stun.TransactionIDSize]byte, src, remote *net.TCPAddr) {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.CallbackTimeout)
	defer cancel()

	c, err := reuseport.DialerFrom(src, s.cfg.CallbackTimeout).DialContext(dialCtx, "tcp", remote.String())
	if err != nil {
		log.Debug("回连失败", "src", src, "remote", remote, "err", err)
		return
	}
	defer reuseport.Abort(c)

	resp, err := s.bindingResponse(tid, src, remote)
	if err != nil {
		return
	}
	if err := stunframe.WriteContext(dialCtx, c, s.cfg.CallbackTimeout, resp); err != nil {
		log.Debug("回连写入失败", "remote", remote, "err", err)
		return
	}

	// 等待对方读取后关闭，避免 RST 先于数据到达
	_, _ = stunframe.ReadContext(dialCtx, c, s.cfg.CallbackTimeout)
	log.Debug("已回连", "src", src, "remote", remote)
}

func (s *ProbeServer) bindingResponse(tid [stun.TransactionIDSize]byte, local, remote *net.TCPAddr) (*stun.Message, error) {
	setters := []stun.Setter{
		stun.NewTransactionIDSetter(tid),
		stun.BindingSuccess,
		&stun.XORMappedAddress{IP: remote.IP, Port: remote.Port},
	}
	origin := &stun.MappedAddress{IP: local.IP, Port: local.Port}
	setters = append(setters, attrSetter{attrResponseOrigin, origin})
	if s.alternate != nil {
		setters = append(setters, attrSetter{attrOtherAddress, &stun.MappedAddress{IP: s.alternate.IP, Port: s.alternate.Port}})
	}
	return stun.Build(setters...)
}

// attrSetter 以指定属性类型写入地址
type attrSetter struct {
	t    stun.AttrType
	addr *stun.MappedAddress
}

func (a attrSetter) AddTo(m *stun.Message) error {
	return a.addr.AddToAs(m, a.t)
}
