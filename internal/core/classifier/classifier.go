package classifier

import (
	"context"
	"net"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dep2p/go-natt/internal/util/logger"
	"github.com/dep2p/go-natt/pkg/interfaces"
	"github.com/dep2p/go-natt/pkg/types"
)

var log = logger.Logger("natt.classifier")

// Option 分类器选项
type Option func(*Classifier)

// WithProber 替换网络探测实现
func WithProber(p Prober) Option {
	return func(c *Classifier) {
		c.prober = p
	}
}

// Classifier NAT 行为分类器
//
// 不持有跨调用的可变状态（可选缓存除外），可并发用于不同会话。
type Classifier struct {
	cfg    Config
	prober Prober
	cache  *expirable.LRU[int, types.NATBehavior]
}

var (
	_ interfaces.BehaviorClassifier = (*Classifier)(nil)
	_ interfaces.EndpointDiscoverer = (*Classifier)(nil)
)

// New 创建分类器
func New(cfg Config, opts ...Option) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Classifier{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.prober == nil {
		c.prober = NewTCPProber(cfg.DialTimeout, cfg.IOTimeout)
	}
	if cfg.CacheTTL > 0 {
		c.cache = expirable.NewLRU[int, types.NATBehavior](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return c, nil
}

// ============================================================================
//                              分类
// ============================================================================

// Classify 依次执行映射测试与过滤测试
func (c *Classifier) Classify(ctx context.Context, sourcePort int) types.NATBehavior {
	if c.cache != nil {
		if b, ok := c.cache.Get(sourcePort); ok {
			log.Debug("使用缓存的 NAT 行为", "port", sourcePort, "behavior", b)
			return b
		}
	}

	start := time.Now()
	b := types.NATBehavior{
		Mapping:   c.Mapping(ctx, sourcePort),
		Filtering: c.Filtering(ctx, sourcePort),
	}
	log.Info("NAT 行为分类完成", "port", sourcePort, "behavior", b, "elapsed", time.Since(start))

	if c.cache != nil && !b.IsUnknown() {
		c.cache.Add(sourcePort, b)
	}
	return b
}

// Invalidate 清空行为缓存
func (c *Classifier) Invalidate() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

// Filtering 执行过滤测试
//
// 每个阶段仅在上一阶段超时后进行。任何错误都降级为 DontCare。
func (c *Classifier) Filtering(ctx context.Context, sourcePort int) types.NATFeatureRealization {
	primary, err := c.primary()
	if err != nil {
		log.Debug("过滤测试失败", "err", err)
		return types.DontCare
	}

	res, err := c.prober.Bind(ctx, sourcePort, primary)
	if err != nil {
		log.Debug("过滤测试 TestI 失败", "server", primary, "err", err)
		return types.DontCare
	}
	if res.Other == nil {
		log.Debug("服务器未提供备用地址，无法测试过滤行为", "server", primary)
		return types.DontCare
	}

	stages := []struct {
		change ChangeRequest
		result types.NATFeatureRealization
	}{
		{ChangeRequest{ChangeIP: true, ChangePort: true}, types.EndpointIndependent},
		{ChangeRequest{ChangePort: true}, types.AddressDependent},
		{ChangeRequest{}, types.AddressAndPortDependent},
	}

	for _, stage := range stages {
		ok, err := c.prober.AwaitCallback(ctx, sourcePort, primary, stage.change, c.cfg.FilteringTimeout)
		if err != nil {
			log.Debug("过滤测试阶段失败", "change", stage.change, "err", err)
			return types.DontCare
		}
		if ok {
			return stage.result
		}
		log.Debug("过滤测试阶段超时", "change", stage.change)
	}

	return types.ConnectionDependent
}

// Mapping 执行映射测试（RFC 5780 §4.3，附加连接相关检查）
//
// 每个阶段都在同一源端口上新建连接。任何错误都降级为 DontCare。
func (c *Classifier) Mapping(ctx context.Context, sourcePort int) types.NATFeatureRealization {
	primary, err := c.primary()
	if err != nil {
		log.Debug("映射测试失败", "err", err)
		return types.DontCare
	}

	// TestI
	r1, err := c.prober.Bind(ctx, sourcePort, primary)
	if err != nil {
		log.Debug("映射测试 TestI 失败", "server", primary, "err", err)
		return types.DontCare
	}
	if sameEndpoint(r1.Mapped, r1.Local) {
		return types.NotRealized
	}
	if r1.Other == nil {
		log.Debug("映射测试无法继续", "err", ErrNoOtherAddress)
		return types.DontCare
	}

	// TestII: 备用 IP，主端口
	r2, err := c.prober.Bind(ctx, sourcePort, &net.TCPAddr{IP: r1.Other.IP, Port: primary.Port})
	if err != nil {
		log.Debug("映射测试 TestII 失败", "err", err)
		return types.DontCare
	}
	if sameEndpoint(r2.Mapped, r1.Mapped) {
		return types.EndpointIndependent
	}

	// TestIII: 备用 IP，备用端口
	r3, err := c.prober.Bind(ctx, sourcePort, r1.Other)
	if err != nil {
		log.Debug("映射测试 TestIII 失败", "err", err)
		return types.DontCare
	}
	if sameEndpoint(r3.Mapped, r2.Mapped) {
		return types.AddressDependent
	}

	// TestIV: 再次访问主地址
	r4, err := c.prober.Bind(ctx, sourcePort, primary)
	if err != nil {
		log.Debug("映射测试 TestIV 失败", "err", err)
		return types.DontCare
	}
	if !sameEndpoint(r4.Mapped, r1.Mapped) {
		return types.ConnectionDependent
	}
	return types.AddressAndPortDependent
}

// Discover 返回 sourcePort 的本地端点与映射端点
func (c *Classifier) Discover(ctx context.Context, sourcePort int) (interfaces.Endpoints, error) {
	primary, err := c.primary()
	if err != nil {
		return interfaces.Endpoints{}, err
	}
	res, err := c.prober.Bind(ctx, sourcePort, primary)
	if err != nil {
		return interfaces.Endpoints{}, err
	}
	return interfaces.Endpoints{Private: res.Local, Public: res.Mapped}, nil
}

func (c *Classifier) primary() (*net.TCPAddr, error) {
	return net.ResolveTCPAddr("tcp", c.cfg.Server)
}
