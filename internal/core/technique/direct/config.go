package direct

import (
	"time"
)

// Config 直连技术配置
type Config struct {
	// ListenAddr 目标端注册期间的监听地址
	ListenAddr string

	// AdvertiseAddr 对外通告的地址，为空时自动确定
	AdvertiseAddr string

	// DialTimeout 源端单次拨号超时
	DialTimeout time.Duration

	// AuthTimeout 三消息认证超时
	AuthTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ListenAddr:  "0.0.0.0:0",
		DialTimeout: 2 * time.Second,
		AuthTimeout: 3 * time.Second,
	}
}

// Validate 校验配置并修正无效值
func (c *Config) Validate() error {
	defaults := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = defaults.ListenAddr
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaults.DialTimeout
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = defaults.AuthTimeout
	}
	return nil
}
