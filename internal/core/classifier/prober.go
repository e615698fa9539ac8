package classifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pion/stun"
	"go.uber.org/multierr"

	"github.com/dep2p/go-natt/internal/util/reuseport"
	"github.com/dep2p/go-natt/internal/util/stunframe"
)

// ============================================================================
//                              Prober 接口
// ============================================================================

// BindingResult 一次 Binding 请求的结果
type BindingResult struct {
	// Local 本地套接字地址
	Local *net.TCPAddr
	// Mapped 服务器观测到的映射地址
	Mapped *net.TCPAddr
	// Other 服务器的备用地址（OTHER-ADDRESS），未携带为 nil
	Other *net.TCPAddr
}

// Prober 分类器使用的网络探测操作
//
// 每次调用都打开并关闭自己的套接字，全部绑定到 localPort 并开启复用。
type Prober interface {
	// Bind 从 localPort 向 server 发送 Binding 请求
	Bind(ctx context.Context, localPort int, server *net.TCPAddr) (*BindingResult, error)

	// AwaitCallback 发送带 CHANGE-REQUEST 的 Binding 指示，并在 wait 内等待服务器回连
	//
	// 超时返回 (false, nil)；其它网络错误返回 error。
	AwaitCallback(ctx context.Context, localPort int, server *net.TCPAddr, change ChangeRequest, wait time.Duration) (bool, error)
}

// ============================================================================
//                              TCPProber
// ============================================================================

// TCPProber 基于 TCP 的 STUN 探测
type TCPProber struct {
	dialTimeout time.Duration
	ioTimeout   time.Duration
}

// NewTCPProber 创建 TCP 探测器
func NewTCPProber(dialTimeout, ioTimeout time.Duration) *TCPProber {
	return &TCPProber{dialTimeout: dialTimeout, ioTimeout: ioTimeout}
}

// Bind 实现 Prober
func (p *TCPProber) Bind(ctx context.Context, localPort int, server *net.TCPAddr) (result *BindingResult, err error) {
	conn, err := reuseport.Dial(ctx, localPort, server.String(), p.dialTimeout)
	if err != nil {
		return nil, &ProbeError{Op: "dial", Server: server.String(), Cause: err}
	}
	defer func() {
		err = multierr.Append(err, ignoreClosed(reuseport.Abort(conn)))
	}()

	req, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return nil, &ProbeError{Op: "build", Server: server.String(), Cause: err}
	}
	if err := stunframe.WriteContext(ctx, conn, p.ioTimeout, req); err != nil {
		return nil, &ProbeError{Op: "write", Server: server.String(), Cause: err}
	}

	resp, err := readTransaction(ctx, conn, p.ioTimeout, req.TransactionID)
	if err != nil {
		return nil, &ProbeError{Op: "read", Server: server.String(), Cause: err}
	}

	mapped, err := mappedAddress(resp)
	if err != nil {
		return nil, &ProbeError{Op: "parse", Server: server.String(), Cause: err}
	}

	return &BindingResult{
		Local:  conn.LocalAddr().(*net.TCPAddr),
		Mapped: mapped,
		Other:  otherAddress(resp),
	}, nil
}

// AwaitCallback 实现 Prober
func (p *TCPProber) AwaitCallback(ctx context.Context, localPort int, server *net.TCPAddr, change ChangeRequest, wait time.Duration) (ok bool, err error) {
	ln, err := reuseport.ListenPort(ctx, localPort)
	if err != nil {
		return false, &ProbeError{Op: "listen", Server: server.String(), Cause: err}
	}
	defer func() {
		err = multierr.Append(err, ignoreClosed(ln.Close()))
	}()

	conn, err := reuseport.Dial(ctx, localPort, server.String(), p.dialTimeout)
	if err != nil {
		return false, &ProbeError{Op: "dial", Server: server.String(), Cause: err}
	}
	defer func() {
		err = multierr.Append(err, ignoreClosed(reuseport.Abort(conn)))
	}()

	ind, err := stun.Build(stun.TransactionID, bindingIndication, change)
	if err != nil {
		return false, &ProbeError{Op: "build", Server: server.String(), Cause: err}
	}
	if err := stunframe.WriteContext(ctx, conn, p.ioTimeout, ind); err != nil {
		return false, &ProbeError{Op: "write", Server: server.String(), Cause: err}
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ok, err = acceptCallback(waitCtx, ln, ind.TransactionID)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		// 等待超时是正常结果
		return false, nil
	}
	return ok, err
}

// acceptCallback 接受回连，直到收到携带 tid 的消息或 ctx 结束
//
// 之前阶段迟到的回连携带不同的事务 ID，被丢弃。
func acceptCallback(ctx context.Context, ln *net.TCPListener, tid [stun.TransactionIDSize]byte) (bool, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = ln.SetDeadline(time.Now())
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, err
		}

		m, err := stunframe.ReadContext(ctx, conn, 0)
		_ = reuseport.Abort(conn)
		if err != nil {
			log.Debug("回连读取失败", "remote", conn.RemoteAddr(), "err", err)
			continue
		}
		if m.TransactionID == tid {
			log.Debug("收到回连", "remote", conn.RemoteAddr())
			return true, nil
		}
		log.Debug("丢弃不匹配的回连", "remote", conn.RemoteAddr())
	}
}

// readTransaction 读取与 tid 匹配的响应
func readTransaction(ctx context.Context, conn net.Conn, timeout time.Duration, tid [stun.TransactionIDSize]byte) (*stun.Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if timeout > 0 && remaining <= 0 {
			return nil, fmt.Errorf("no response for transaction: %w", context.DeadlineExceeded)
		}
		m, err := stunframe.ReadContext(ctx, conn, remaining)
		if err != nil {
			return nil, err
		}
		if m.TransactionID == tid {
			return m, nil
		}
	}
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
