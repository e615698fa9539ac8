package orchestrator

import (
	"time"

	"github.com/dep2p/go-natt/pkg/types"
)

// Config 编排器配置
type Config struct {
	// PeerID 本节点在中介上的标识
	PeerID types.PeerID

	// ClassifyPort 分类时使用的本地端口，0 表示每次临时分配
	ClassifyPort int

	// QueryTimeout 源端查询目标行为与技术集合的超时
	QueryTimeout time.Duration

	// TechniqueTimeout 覆盖技术自身声明的响应超时，0 表示使用声明值
	TechniqueTimeout time.Duration

	// RegisterTimeout 注册与注销请求超时
	RegisterTimeout time.Duration

	// KeepAliveInterval 目标端保活间隔
	KeepAliveInterval time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		QueryTimeout:      2 * time.Second,
		RegisterTimeout:   5 * time.Second,
		KeepAliveInterval: 15 * time.Second,
	}
}

// Validate 校验配置并修正无效值
func (c *Config) Validate() error {
	defaults := DefaultConfig()
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = defaults.QueryTimeout
	}
	if c.RegisterTimeout <= 0 {
		c.RegisterTimeout = defaults.RegisterTimeout
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = defaults.KeepAliveInterval
	}
	if c.TechniqueTimeout < 0 {
		c.TechniqueTimeout = 0
	}
	if c.ClassifyPort < 0 || c.ClassifyPort > 65535 {
		return ErrInvalidPort
	}
	return nil
}

// techniqueTimeout 返回某个技术的尝试超时
func (c Config) techniqueTimeout(md types.TechniqueMetadata) time.Duration {
	if c.TechniqueTimeout > 0 {
		return c.TechniqueTimeout
	}
	if md.ResponseTimeout > 0 {
		return md.ResponseTimeout
	}
	return 10 * time.Second
}
