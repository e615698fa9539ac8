// Package reversal 实现反向连接技术
//
// 适用于只有目标端在 NAT 之后的情形：源端打开监听器并经中介通告端点，
// 目标端确认后主动回连。认证时仍由源端发送 AUTH。
package reversal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-natt/internal/core/mediator"
	"github.com/dep2p/go-natt/internal/core/sessionauth"
	"github.com/dep2p/go-natt/internal/core/technique"
	"github.com/dep2p/go-natt/internal/util/logger"
	"github.com/dep2p/go-natt/internal/util/reuseport"
	"github.com/dep2p/go-natt/pkg/interfaces"
	"github.com/dep2p/go-natt/pkg/types"
)

var log = logger.Logger("natt.technique.reversal")

const (
	// TechniqueID 反向连接技术标识
	TechniqueID types.TechniqueID = 2

	// TechniqueName 反向连接技术名称
	TechniqueName = "reversal"
)

// ErrNoEndpoint 连接请求未携带可拨号的端点
var ErrNoEndpoint = errors.New("reversal: request carries no endpoint")

// Technique 反向连接技术
type Technique struct {
	cfg        Config
	discoverer interfaces.EndpointDiscoverer
}

var _ interfaces.Technique = (*Technique)(nil)

// New 创建反向连接技术，discoverer 可以为 nil
func New(cfg Config, discoverer interfaces.EndpointDiscoverer) *Technique {
	_ = cfg.Validate()
	return &Technique{cfg: cfg, discoverer: discoverer}
}

// Metadata 实现 Technique
func (t *Technique) Metadata() types.TechniqueMetadata {
	return types.TechniqueMetadata{
		ID:              TechniqueID,
		Name:            TechniqueName,
		Version:         "1.0",
		SetupTime:       2 * time.Second,
		ResponseTimeout: 5 * time.Second,
		Situations: []types.NATSituation{
			types.NewSituation(types.NotRealized, types.NotRealized, types.DontCare, types.DontCare),
		},
		DirectPath: true,
	}
}

// CreateSourceSideConnection 实现 Technique
func (t *Technique) CreateSourceSideConnection(ctx context.Context, target types.PeerID, ch interfaces.ControlChannel) (net.Conn, error) {
	token, err := types.NewRaceToken()
	if err != nil {
		return nil, err
	}

	ln, err := reuseport.Listen(ctx, t.cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("reversal: listen %s: %w", t.cfg.ListenAddr, err)
	}
	defer ln.Close()

	ep, err := technique.Advertise(ctx, ln, t.cfg.AdvertiseAddr, t.discoverer)
	if err != nil {
		return nil, err
	}

	if _, err := ch.Request(ctx, &types.ControlMessage{
		Kind:      types.KindConnect,
		Target:    target,
		Technique: TechniqueID,
		Public:    ep,
		Private:   ln.Addr().(*net.TCPAddr),
		Token:     token,
	}); err != nil {
		return nil, fmt.Errorf("reversal: connect request: %w", err)
	}

	conn, err := technique.AcceptAuthenticated(ctx, ln, func(conn net.Conn) error {
		return sessionauth.Initiate(ctx, conn, token, t.cfg.AuthTimeout, nil)
	})
	if err != nil {
		return nil, err
	}
	log.Debug("收到回连", "target", target.ShortString(), "remote", conn.RemoteAddr())
	return conn, nil
}

// CreateTargetSideConnection 实现 Technique
//
// 先确认请求，再按速率反复回连请求中的端点，直到认证通过或 ctx 结束。
func (t *Technique) CreateTargetSideConnection(ctx context.Context, source types.PeerID, ch interfaces.ControlChannel, req *types.ControlMessage) (net.Conn, error) {
	candidates := technique.Candidates(req.Public, req.Private)
	if len(candidates) == 0 {
		resp := req.Reply(types.ClassError)
		resp.ErrorCode = mediator.CodeBadRequest
		resp.ErrorReason = ErrNoEndpoint.Error()
		_ = ch.Send(ctx, resp)
		return nil, ErrNoEndpoint
	}

	if err := ch.Send(ctx, req.Reply(types.ClassSuccess)); err != nil {
		return nil, fmt.Errorf("reversal: reply to %s: %w", source.ShortString(), err)
	}

	dialer := &net.Dialer{Timeout: t.cfg.DialTimeout}
	limiter := rate.NewLimiter(rate.Every(t.cfg.RetryInterval), 1)
	for attempt := 0; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			// 下一次回连已赶不上截止时间
			<-ctx.Done()
			return nil, ctx.Err()
		}

		ep := candidates[attempt%len(candidates)]
		conn, err := dialer.DialContext(ctx, "tcp", ep.String())
		if err != nil {
			log.Debug("回连失败", "source", source.ShortString(), "remote", ep, "err", err)
			continue
		}
		if err := sessionauth.Respond(ctx, conn, req.Token, t.cfg.AuthTimeout, nil); err != nil {
			log.Debug("回连认证失败", "remote", ep, "err", err)
			_ = conn.Close()
			continue
		}
		return conn, nil
	}
}

// RegisterAtMediator 反向连接无需额外注册
func (t *Technique) RegisterAtMediator(context.Context, interfaces.ControlChannel) error {
	return nil
}

// DeregisterAtMediator 反向连接无需额外注销
func (t *Technique) DeregisterAtMediator(context.Context, interfaces.ControlChannel) error {
	return nil
}
