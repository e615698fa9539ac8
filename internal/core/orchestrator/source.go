package orchestrator

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-natt/internal/core/decision"
	"github.com/dep2p/go-natt/internal/util/logger"
	"github.com/dep2p/go-natt/internal/util/reuseport"
	"github.com/dep2p/go-natt/pkg/interfaces"
	"github.com/dep2p/go-natt/pkg/types"
)

var log = logger.Logger("natt.orchestrator")

// Source 源端编排器
//
// 可被多个 goroutine 并发使用，每次 Connect 相互独立。
type Source struct {
	cfg      Config
	registry *decision.Registry
	opts     options
}

// NewSource 创建源端编排器
func NewSource(cfg Config, registry *decision.Registry, opts ...Option) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Source{cfg: cfg, registry: registry, opts: o}, nil
}

// Connect 经 ch 协调并建立到 target 的连接
func (s *Source) Connect(ctx context.Context, target types.PeerID, ch interfaces.ControlChannel, opts ...ConnectOption) (net.Conn, error) {
	var co connectOptions
	for _, opt := range opts {
		opt(&co)
	}

	attemptID := uuid.NewString()
	local := co.behavior
	if local == nil {
		b := localBehavior(ctx, s.cfg, s.opts)
		local = &b
	}

	remote, supported := s.queryTarget(ctx, target, ch)
	situation := types.NATSituation{Local: *local, Remote: remote}

	ranked := s.registry.Rank(situation)
	candidates := make([]interfaces.Technique, 0, len(ranked))
	for _, t := range ranked {
		if supported[t.Metadata().ID] {
			candidates = append(candidates, t)
		}
	}

	log.Info("开始建立连接",
		"attempt", attemptID,
		"target", target.ShortString(),
		"situation", situation,
		"ranked", len(ranked),
		"candidates", len(candidates))

	if len(candidates) == 0 {
		s.opts.metrics.ConnectionFinished(RoleSource, false)
		return nil, &NotEstablishedError{Target: target, Err: ErrNoSupportedTechnique}
	}

	var last Outcome
	var lastName string
	for _, t := range candidates {
		md := t.Metadata()
		lastName = md.Name

		start := time.Now()
		last = s.attempt(ctx, t, md, target, ch)
		s.opts.metrics.AttemptFinished(RoleSource, md.Name, last.Kind, time.Since(start))

		if last.Kind == Connected {
			log.Info("连接已建立",
				"attempt", attemptID,
				"technique", md.Name,
				"elapsed", time.Since(start))
			s.opts.metrics.ConnectionFinished(RoleSource, true)
			return last.Conn, nil
		}

		log.Debug("技术尝试未成功，尝试下一个",
			"attempt", attemptID,
			"technique", md.Name,
			"outcome", last.Kind,
			"err", last.Err)

		if ctx.Err() != nil {
			s.opts.metrics.ConnectionFinished(RoleSource, false)
			return nil, ctx.Err()
		}
	}

	s.opts.metrics.ConnectionFinished(RoleSource, false)
	return nil, &NotEstablishedError{Target: target, LastTechnique: lastName, Err: last.Err}
}

// attempt 在独立的工作 goroutine 中运行一个技术，最多等待其超时
func (s *Source) attempt(ctx context.Context, t interfaces.Technique, md types.TechniqueMetadata, target types.PeerID, ch interfaces.ControlChannel) Outcome {
	timeout := s.cfg.techniqueTimeout(md)
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		conn, err := t.CreateSourceSideConnection(actx, target, ch)
		switch {
		case err != nil:
			if conn != nil {
				_ = conn.Close()
			}
			done <- Outcome{Kind: Failed, Err: err}
		case conn == nil:
			done <- Outcome{Kind: Failed, Err: ErrNoConnection}
		default:
			done <- Outcome{Kind: Connected, Conn: conn}
		}
	}()

	select {
	case o := <-done:
		if o.Err != nil {
			o.Err = &AttemptError{Technique: md.Name, Kind: o.Kind, Err: o.Err}
		}
		return o
	case <-actx.Done():
		// 迟到的连接由后台关闭
		go func() {
			if o := <-done; o.Conn != nil {
				_ = o.Conn.Close()
			}
		}()
		return Outcome{
			Kind: TimedOut,
			Err:  &AttemptError{Technique: md.Name, Kind: TimedOut, Err: actx.Err()},
		}
	}
}

// queryTarget 查询目标的行为与支持的技术集合，失败时返回未知行为与空集合
func (s *Source) queryTarget(ctx context.Context, target types.PeerID, ch interfaces.ControlChannel) (types.NATBehavior, map[types.TechniqueID]bool) {
	behavior := types.UnknownBehavior()
	supported := make(map[types.TechniqueID]bool)

	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	resp, err := ch.Request(qctx, &types.ControlMessage{
		Kind:   types.KindQueryBehavior,
		Source: s.cfg.PeerID,
		Target: target,
	})
	cancel()
	switch {
	case err != nil:
		log.Debug("查询目标 NAT 行为失败", "target", target.ShortString(), "err", err)
	case !resp.HasBehavior:
		log.Debug("目标 NAT 行为响应缺少行为属性", "target", target.ShortString())
	default:
		behavior = resp.Behavior
	}

	qctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
	resp, err = ch.Request(qctx, &types.ControlMessage{
		Kind:   types.KindQueryTechniques,
		Source: s.cfg.PeerID,
		Target: target,
	})
	cancel()
	if err != nil {
		log.Debug("查询目标技术集合失败", "target", target.ShortString(), "err", err)
		return behavior, supported
	}
	for _, id := range resp.Techniques {
		supported[id] = true
	}
	return behavior, supported
}

// localBehavior 确定本地 NAT 行为
func localBehavior(ctx context.Context, cfg Config, o options) types.NATBehavior {
	if o.behavior != nil {
		return *o.behavior
	}
	if o.classifier == nil {
		return types.UnknownBehavior()
	}

	port := cfg.ClassifyPort
	if port == 0 {
		p, err := ephemeralPort(ctx)
		if err != nil {
			log.Warn("分配分类端口失败", "err", err)
			return types.UnknownBehavior()
		}
		port = p
	}
	return o.classifier.Classify(ctx, port)
}

// ephemeralPort 向系统申请一个空闲端口
func ephemeralPort(ctx context.Context) (int, error) {
	ln, err := reuseport.ListenPort(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: allocate port: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	return port, ln.Close()
}
