// Package technique 提供直连与反向连接技术共用的监听与端点工具
//
// 具体技术位于子包：direct（目标端可直达）与 reversal（源端可直达）。
package technique

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dep2p/go-natt/internal/util/logger"
	"github.com/dep2p/go-natt/pkg/interfaces"
)

var log = logger.Logger("natt.technique")

// ErrNoEndpoint 无法确定对外通告的端点
var ErrNoEndpoint = errors.New("technique: cannot determine advertised endpoint")

// Advertise 返回监听器对外通告的端点
//
// 优先使用配置的 advertiseAddr；监听在具体地址上时使用监听地址；
// 监听在通配地址上时借助 discoverer 在监听端口上观测公网端点。
func Advertise(ctx context.Context, ln net.Listener, advertiseAddr string, discoverer interfaces.EndpointDiscoverer) (*net.TCPAddr, error) {
	if advertiseAddr != "" {
		addr, err := net.ResolveTCPAddr("tcp", advertiseAddr)
		if err != nil {
			return nil, fmt.Errorf("technique: advertise address %q: %w", advertiseAddr, err)
		}
		return addr, nil
	}

	local := ln.Addr().(*net.TCPAddr)
	if local.IP != nil && !local.IP.IsUnspecified() {
		return local, nil
	}
	if discoverer == nil {
		return nil, ErrNoEndpoint
	}

	eps, err := discoverer.Discover(ctx, local.Port)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoEndpoint, err)
	}
	if eps.Public == nil {
		return nil, ErrNoEndpoint
	}
	return eps.Public, nil
}

// deadliner 支持截止时间的监听器
type deadliner interface {
	SetDeadline(t time.Time) error
}

// AcceptAuthenticated 在 ln 上接受连接，返回第一个通过 auth 的连接
//
// ctx 结束时中断 Accept 并返回 ctx 的错误；监听器本身不会被关闭，
// 截止时间在返回前复位，因此可用于注册期间长期持有的监听器。
func AcceptAuthenticated(ctx context.Context, ln net.Listener, auth func(net.Conn) error) (net.Conn, error) {
	if d, ok := ln.(deadliner); ok {
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetDeadline(time.Now())
		})
		defer func() {
			stop()
			_ = d.SetDeadline(time.Time{})
		}()
	} else {
		stop := context.AfterFunc(ctx, func() {
			_ = ln.Close()
		})
		defer stop()
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if err := auth(conn); err != nil {
			log.Debug("入站连接认证失败", "remote", conn.RemoteAddr(), "err", err)
			_ = conn.Close()
			continue
		}
		return conn, nil
	}
}

// Candidates 过滤掉空端点与重复端点
func Candidates(addrs ...*net.TCPAddr) []*net.TCPAddr {
	var out []*net.TCPAddr
	for _, a := range addrs {
		if a == nil || a.Port == 0 || a.IP == nil || a.IP.IsUnspecified() {
			continue
		}
		dup := false
		for _, b := range out {
			if a.IP.Equal(b.IP) && a.Port == b.Port {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, a)
		}
	}
	return out
}
