package natt

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-natt/config"
	"github.com/dep2p/go-natt/pkg/interfaces"
)

// Option 节点选项
type Option func(*options) error

type options struct {
	config *config.Config

	// techniques 额外的穿透技术
	techniques []interfaces.Technique

	// registerer 指标注册器，nil 使用默认注册器
	registerer prometheus.Registerer

	// fxOptions 追加的 fx 选项，用于替换或扩展内部组件
	fxOptions []fx.Option
}

func newOptions() *options {
	return &options{config: config.NewConfig()}
}

// WithConfig 使用完整配置
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return config.ErrNilConfig
		}
		o.config = cfg
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// WithPeerID 设置本节点在中介上的标识
func WithPeerID(id string) Option {
	return func(o *options) error {
		o.config.Orchestrator.PeerID = id
		return nil
	}
}

// WithProbeServer 设置分类使用的探测服务器 host:port
func WithProbeServer(addr string) Option {
	return func(o *options) error {
		o.config.Classifier.Server = addr
		return nil
	}
}

// WithTechnique 追加自定义穿透技术
func WithTechnique(t interfaces.Technique) Option {
	return func(o *options) error {
		if t == nil {
			return errors.New("natt: nil technique")
		}
		o.techniques = append(o.techniques, t)
		return nil
	}
}

// WithMetrics 启用编排指标并注册到 reg，reg 为 nil 时使用默认注册器
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.config.Metrics.Enabled = true
		o.registerer = reg
		return nil
	}
}

// WithFxOptions 追加 fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}

func (o *options) apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return fmt.Errorf("apply option: %w", err)
		}
	}
	return nil
}
