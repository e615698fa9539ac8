package holepunch

import (
	"time"
)

// Config 打洞配置
type Config struct {
	// DialTimeout 单次拨号超时
	DialTimeout time.Duration

	// RetryInterval 同一候选端点两次拨号之间的最小间隔
	RetryInterval time.Duration

	// AuthTimeout 三消息认证超时
	AuthTimeout time.Duration

	// DiscoverTimeout 获取本地端点的超时
	DiscoverTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		DialTimeout:     time.Second,
		RetryInterval:   100 * time.Millisecond,
		AuthTimeout:     3 * time.Second,
		DiscoverTimeout: 3 * time.Second,
	}
}

// Validate 校验配置并修正无效值
func (c *Config) Validate() error {
	defaults := DefaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaults.DialTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaults.RetryInterval
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = defaults.AuthTimeout
	}
	if c.DiscoverTimeout <= 0 {
		c.DiscoverTimeout = defaults.DiscoverTimeout
	}
	return nil
}
