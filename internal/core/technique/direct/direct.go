// Package direct 实现直连技术
//
// 适用于目标端不在 NAT 之后的情形：目标端在注册期间保持一个监听器，
// 收到连接请求后回复监听端点，源端直接拨号并完成三消息认证。
package direct

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/go-natt/internal/core/mediator"
	"github.com/dep2p/go-natt/internal/core/sessionauth"
	"github.com/dep2p/go-natt/internal/core/technique"
	"github.com/dep2p/go-natt/internal/util/logger"
	"github.com/dep2p/go-natt/internal/util/reuseport"
	"github.com/dep2p/go-natt/pkg/interfaces"
	"github.com/dep2p/go-natt/pkg/types"
)

var log = logger.Logger("natt.technique.direct")

const (
	// TechniqueID 直连技术标识
	TechniqueID types.TechniqueID = 1

	// TechniqueName 直连技术名称
	TechniqueName = "direct"
)

// ErrNoEndpoint 对端未返回可拨号的端点
var ErrNoEndpoint = errors.New("direct: peer returned no endpoint")

// Technique 直连技术
type Technique struct {
	cfg        Config
	discoverer interfaces.EndpointDiscoverer

	mu sync.Mutex
	ln *net.TCPListener

	// acceptMu 注册监听器同一时刻只服务一个连接请求
	acceptMu sync.Mutex
}

var _ interfaces.Technique = (*Technique)(nil)

// New 创建直连技术，discoverer 可以为 nil
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
		SetupTime:       time.Second,
		ResponseTimeout: 3 * time.Second,
		Situations: []types.NATSituation{
			types.NewSituation(types.DontCare, types.DontCare, types.NotRealized, types.NotRealized),
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

	resp, err := ch.Request(ctx, &types.ControlMessage{
		Kind:      types.KindConnect,
		Target:    target,
		Technique: TechniqueID,
		Token:     token,
	})
	if err != nil {
		return nil, fmt.Errorf("direct: connect request: %w", err)
	}

	candidates := technique.Candidates(resp.Public, resp.Private)
	if len(candidates) == 0 {
		return nil, ErrNoEndpoint
	}

	dialer := &net.Dialer{Timeout: t.cfg.DialTimeout}
	var errs error
	for _, ep := range candidates {
		conn, err := dialer.DialContext(ctx, "tcp", ep.String())
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := sessionauth.Initiate(ctx, conn, token, t.cfg.AuthTimeout, nil); err != nil {
			_ = conn.Close()
			errs = multierr.Append(errs, err)
			continue
		}
		log.Debug("直连成功", "target", target.ShortString(), "remote", ep)
		return conn, nil
	}
	return nil, fmt.Errorf("direct: dial %s: %w", target.ShortString(), errs)
}

// CreateTargetSideConnection 实现 Technique
//
// 未注册时临时打开一个监听器，连接建立或失败后关闭。
func (t *Technique) CreateTargetSideConnection(ctx context.Context, source types.PeerID, ch interfaces.ControlChannel, req *types.ControlMessage) (net.Conn, error) {
	t.acceptMu.Lock()
	defer t.acceptMu.Unlock()

	ln, temporary, err := t.listener(ctx)
	if err != nil {
		reject(ctx, ch, req, err)
		return nil, err
	}
	if temporary {
		defer ln.Close()
	}

	ep, err := technique.Advertise(ctx, ln, t.cfg.AdvertiseAddr, t.discoverer)
	if err != nil {
		reject(ctx, ch, req, err)
		return nil, err
	}

	resp := req.Reply(types.ClassSuccess)
	resp.Public = ep
	resp.Private = ln.Addr().(*net.TCPAddr)
	resp.Token = req.Token
	if err := ch.Send(ctx, resp); err != nil {
		return nil, fmt.Errorf("direct: reply to %s: %w", source.ShortString(), err)
	}

	return technique.AcceptAuthenticated(ctx, ln, func(conn net.Conn) error {
		return sessionauth.Respond(ctx, conn, req.Token, t.cfg.AuthTimeout, nil)
	})
}

// RegisterAtMediator 打开注册期间使用的监听器
func (t *Technique) RegisterAtMediator(ctx context.Context, _ interfaces.ControlChannel) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln != nil {
		return nil
	}

	ln, err := reuseport.Listen(ctx, t.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("direct: listen %s: %w", t.cfg.ListenAddr, err)
	}
	t.ln = ln
	log.Debug("直连监听已打开", "addr", ln.Addr())
	return nil
}

// DeregisterAtMediator 关闭监听器
func (t *Technique) DeregisterAtMediator(context.Context, interfaces.ControlChannel) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln == nil {
		return nil
	}
	err := t.ln.Close()
	t.ln = nil
	return err
}

// Addr 注册监听器地址，未注册时返回 nil
func (t *Technique) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln == nil {
		return nil
	}
	return t.ln.Addr()
}

func (t *Technique) listener(ctx context.Context) (*net.TCPListener, bool, error) {
	t.mu.Lock()
	ln := t.ln
	t.mu.Unlock()
	if ln != nil {
		return ln, false, nil
	}

	ln, err := reuseport.Listen(ctx, t.cfg.ListenAddr)
	if err != nil {
		return nil, false, fmt.Errorf("direct: listen %s: %w", t.cfg.ListenAddr, err)
	}
	return ln, true, nil
}

func reject(ctx context.Context, ch interfaces.ControlChannel, req *types.ControlMessage, cause error) {
	resp := req.Reply(types.ClassError)
	resp.ErrorCode = mediator.CodeTechniqueError
	resp.ErrorReason = cause.Error()
	if err := ch.Send(ctx, resp); err != nil {
		log.Debug("发送拒绝响应失败", "err", err)
	}
}
