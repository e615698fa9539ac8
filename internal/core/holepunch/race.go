package holepunch

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-natt/internal/core/technique"
	"github.com/dep2p/go-natt/internal/util/logger"
	"github.com/dep2p/go-natt/internal/util/reuseport"
	"github.com/dep2p/go-natt/pkg/types"
)

var log = logger.Logger("natt.holepunch")

// Params 一次竞速的参数
type Params struct {
	// Listener 本地复用监听器，拨号路径使用同一端口；竞速结束时总会被关闭
	Listener *net.TCPListener

	// Candidates 对端候选端点（公网端点在前），最多使用两个
	Candidates []*net.TCPAddr

	// Token 发起方生成的竞速令牌
	Token types.RaceToken

	// Initiator 本端是否为会话发起方（认证时发送 AUTH）
	Initiator bool
}

// Racer 打洞竞速引擎
type Racer struct {
	cfg Config

	// observe 竞速结束后回调，仅测试使用
	observe func(*session)
}

// NewRacer 创建竞速引擎
func NewRacer(cfg Config) *Racer {
	_ = cfg.Validate()
	return &Racer{cfg: cfg}
}

// Race 运行一次竞速，返回唯一认证通过的连接
//
// 返回时其它路径均已结束，除返回的连接外本次竞速打开的套接字和监听器都已关闭。
func (r *Racer) Race(ctx context.Context, p Params) (net.Conn, error) {
	if p.Listener == nil {
		return nil, ErrNoListener
	}
	candidates := technique.Candidates(p.Candidates...)
	if len(candidates) > 2 {
		candidates = candidates[:2]
	}
	if len(candidates) == 0 {
		_ = p.Listener.Close()
		return nil, ErrNoCandidates
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := newSession(uuid.NewString(), p.Token, p.Initiator, cancel)
	s.setListener(p.Listener)
	localPort := p.Listener.Addr().(*net.TCPAddr).Port

	log.Debug("开始打洞竞速",
		"session", s.id,
		"localPort", localPort,
		"candidates", len(candidates),
		"initiator", p.Initiator)
	start := time.Now()

	var g errgroup.Group
	for _, remote := range candidates {
		remote := remote
		g.Go(func() error {
			r.dialPath(raceCtx, s, localPort, remote)
			return nil
		})
	}
	g.Go(func() error {
		r.acceptPath(raceCtx, s, p.Listener, &g)
		return nil
	})

	var res raceResult
	select {
	case res = <-s.result:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	cancel()
	if err := s.shutdown(); err != nil {
		log.Debug("清理竞速套接字出错", "session", s.id, "err", err)
	}
	_ = g.Wait()

	if r.observe != nil {
		r.observe(s)
	}

	if res.err != nil {
		// 取消与提交同时发生时，交接槽里可能已有连接
		select {
		case late := <-s.result:
			if late.conn != nil {
				_ = reuseport.Abort(late.conn)
			}
		default:
		}
		log.Debug("打洞竞速失败", "session", s.id, "err", res.err)
		return nil, res.err
	}

	log.Info("打洞竞速成功",
		"session", s.id,
		"remote", res.conn.RemoteAddr(),
		"elapsed", time.Since(start))
	return res.conn, nil
}

// dialPath 反复拨号到 remote，直到取消或本路径的连接成为结果
func (r *Racer) dialPath(ctx context.Context, s *session, localPort int, remote *net.TCPAddr) {
	limiter := rate.NewLimiter(rate.Every(r.cfg.RetryInterval), 1)
	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		conn, err := reuseport.Dial(ctx, localPort, remote.String(), r.cfg.DialTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if attempt == 1 || attempt%20 == 0 {
				log.Debug("打洞拨号失败",
					"session", s.id,
					"remote", remote,
					"attempt", attempt,
					"err", err)
			}
			continue
		}

		if !s.track(conn) {
			return
		}
		if s.authenticate(ctx, conn, r.cfg) {
			return
		}
	}
}

// acceptPath 接受入站连接，每个连接在独立的 goroutine 中认证
func (r *Racer) acceptPath(ctx context.Context, s *session, ln *net.TCPListener, g *errgroup.Group) {
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				log.Debug("打洞监听出错", "session", s.id, "err", err)
			}
			return
		}
		if !s.track(conn) {
			return
		}
		g.Go(func() error {
			s.authenticate(ctx, conn, r.cfg)
			return nil
		})
	}
}
