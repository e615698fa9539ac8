package holepunch

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/dep2p/go-natt/internal/core/mediator"
	"github.com/dep2p/go-natt/internal/util/reuseport"
	"github.com/dep2p/go-natt/pkg/interfaces"
	"github.com/dep2p/go-natt/pkg/types"
)

const (
	// TechniqueID 打洞技术标识
	TechniqueID types.TechniqueID = 3

	// TechniqueName 打洞技术名称
	TechniqueName = "hole-punching"
)

// Technique 基于竞速引擎的 TCP 打洞技术
//
// 双方映射行为均为无 NAT 或端点无关时可用，过滤行为不限。
type Technique struct {
	cfg        Config
	racer      *Racer
	discoverer interfaces.EndpointDiscoverer
}

var _ interfaces.Technique = (*Technique)(nil)

// NewTechnique 创建打洞技术
//
// discoverer 用于在竞速端口上获取本端公网与本地端点。
func NewTechnique(cfg Config, discoverer interfaces.EndpointDiscoverer) *Technique {
	_ = cfg.Validate()
	return &Technique{
		cfg:        cfg,
		racer:      NewRacer(cfg),
		discoverer: discoverer,
	}
}

// Metadata 实现 Technique
func (t *Technique) Metadata() types.TechniqueMetadata {
	traversable := []types.NATFeatureRealization{types.NotRealized, types.EndpointIndependent}

	var situations []types.NATSituation
	for _, local := range traversable {
		for _, remote := range traversable {
			situations = append(situations,
				types.NewSituation(local, types.DontCare, remote, types.DontCare))
		}
	}

	return types.TechniqueMetadata{
		ID:              TechniqueID,
		Name:            TechniqueName,
		Version:         "1.0",
		SetupTime:       3 * time.Second,
		ResponseTimeout: 10 * time.Second,
		Situations:      situations,
	}
}

// CreateSourceSideConnection 实现 Technique
//
// 生成令牌并在新的复用端口上获取本端端点，经中介把端点和令牌交给对端，
// 收到对端端点后开始竞速。
func (t *Technique) CreateSourceSideConnection(ctx context.Context, target types.PeerID, ch interfaces.ControlChannel) (net.Conn, error) {
	token, err := types.NewRaceToken()
	if err != nil {
		return nil, err
	}

	ln, eps, err := t.prepare(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := ch.Request(ctx, &types.ControlMessage{
		Kind:      types.KindConnect,
		Target:    target,
		Technique: TechniqueID,
		Public:    eps.Public,
		Private:   eps.Private,
		Token:     token,
	})
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("%w: %v", ErrPeerRejected, err)
	}

	log.Debug("收到对端端点",
		"target", target.ShortString(),
		"public", resp.Public,
		"private", resp.Private)

	return t.racer.Race(ctx, Params{
		Listener:   ln,
		Candidates: []*net.TCPAddr{resp.Public, resp.Private},
		Token:      token,
		Initiator:  true,
	})
}

// CreateTargetSideConnection 实现 Technique
func (t *Technique) CreateTargetSideConnection(ctx context.Context, source types.PeerID, ch interfaces.ControlChannel, req *types.ControlMessage) (net.Conn, error) {
	if req.Token.IsZero() {
		t.reject(ctx, ch, req, mediator.CodeBadRequest, "missing race token")
		return nil, fmt.Errorf("holepunch: connect request from %s without token", source.ShortString())
	}

	ln, eps, err := t.prepare(ctx)
	if err != nil {
		t.reject(ctx, ch, req, mediator.CodeTechniqueError, err.Error())
		return nil, err
	}

	resp := req.Reply(types.ClassSuccess)
	resp.Public = eps.Public
	resp.Private = eps.Private
	resp.Token = req.Token
	if err := ch.Send(ctx, resp); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("holepunch: reply to %s: %w", source.ShortString(), err)
	}

	return t.racer.Race(ctx, Params{
		Listener:   ln,
		Candidates: []*net.TCPAddr{req.Public, req.Private},
		Token:      req.Token,
		Initiator:  false,
	})
}

// RegisterAtMediator 打洞无需额外注册
func (t *Technique) RegisterAtMediator(context.Context, interfaces.ControlChannel) error {
	return nil
}

// DeregisterAtMediator 打洞无需额外注销
func (t *Technique) DeregisterAtMediator(context.Context, interfaces.ControlChannel) error {
	return nil
}

// prepare 打开竞速监听器并在其端口上获取本端端点
func (t *Technique) prepare(ctx context.Context) (*net.TCPListener, interfaces.Endpoints, error) {
	if t.discoverer == nil {
		return nil, interfaces.Endpoints{}, ErrNoEndpoints
	}

	ln, err := reuseport.ListenPort(ctx, 0)
	if err != nil {
		return nil, interfaces.Endpoints{}, fmt.Errorf("holepunch: listen: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	dctx, cancel := context.WithTimeout(ctx, t.cfg.DiscoverTimeout)
	defer cancel()

	eps, err := t.discoverer.Discover(dctx, port)
	if err != nil {
		_ = ln.Close()
		return nil, interfaces.Endpoints{}, fmt.Errorf("%w: %v", ErrNoEndpoints, err)
	}
	return ln, eps, nil
}

func (t *Technique) reject(ctx context.Context, ch interfaces.ControlChannel, req *types.ControlMessage, code int, reason string) {
	resp := req.Reply(types.ClassError)
	resp.ErrorCode = code
	resp.ErrorReason = reason
	if err := ch.Send(ctx, resp); err != nil {
		log.Debug("发送拒绝响应失败", "err", err)
	}
}
