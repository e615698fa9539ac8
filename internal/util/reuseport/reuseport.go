// Package reuseport 提供开启地址/端口复用的 TCP 拨号与监听
//
// 分类探测与打洞都要求同一个本地端口同时用于多个出站连接和一个监听器，
// 因此所有套接字都必须在 bind 之前设置 SO_REUSEADDR 与 SO_REUSEPORT。
package reuseport

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/dep2p/go-natt/internal/util/logger"
)

var log = logger.Logger("natt.reuseport")

// Dialer 返回绑定到 localPort 并开启复用的拨号器
//
// localPort 为 0 时由系统分配。
func Dialer(localPort int, timeout time.Duration) *net.Dialer {
	return DialerFrom(&net.TCPAddr{Port: localPort}, timeout)
}

// DialerFrom 返回绑定到指定本地地址并开启复用的拨号器
func DialerFrom(local *net.TCPAddr, timeout time.Duration) *net.Dialer {
	return &net.Dialer{
		LocalAddr: local,
		Timeout:   timeout,
		Control:   Control,
	}
}

// Dial 从 localPort 拨号到 remote
func Dial(ctx context.Context, localPort int, remote string, timeout time.Duration) (*net.TCPConn, error) {
	conn, err := Dialer(localPort, timeout).DialContext(ctx, "tcp", remote)
	if err != nil {
		return nil, err
	}
	return conn.(*net.TCPConn), nil
}

// Listen 在 addr 上开启复用监听
func Listen(ctx context.Context, addr string) (*net.TCPListener, error) {
	lc := net.ListenConfig{Control: Control}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return ln.(*net.TCPListener), nil
}

// ListenPort 在所有地址的 port 上开启复用监听
func ListenPort(ctx context.Context, port int) (*net.TCPListener, error) {
	return Listen(ctx, net.JoinHostPort("", strconv.Itoa(port)))
}

// Abort 以 RST 方式关闭连接
//
// 同一本地端口马上要再连同一远端时使用，避免 TIME_WAIT 占用四元组。
func Abort(conn net.Conn) error {
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetLinger(0); err != nil {
			log.Debug("设置 linger 失败", "err", err)
		}
	}
	return conn.Close()
}
