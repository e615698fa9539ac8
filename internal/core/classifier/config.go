package classifier

import (
	"fmt"
	"net"
	"time"
)

// Config 分类器配置
type Config struct {
	// Server 探测服务器主地址 host:port
	Server string

	// FilteringTimeout 过滤测试每个阶段等待回连的时间
	FilteringTimeout time.Duration

	// DialTimeout 建立探测连接的超时
	DialTimeout time.Duration

	// IOTimeout 单条探测消息读写超时
	IOTimeout time.Duration

	// CacheTTL 行为缓存有效期，0 表示不缓存
	CacheTTL time.Duration

	// CacheSize 缓存条目数（按源端口）
	CacheSize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		FilteringTimeout: 3 * time.Second,
		DialTimeout:      2 * time.Second,
		IOTimeout:        3 * time.Second,
		CacheSize:        16,
	}
}

// Validate 校验配置并修正无效值
func (c *Config) Validate() error {
	defaults := DefaultConfig()
	if c.FilteringTimeout <= 0 {
		c.FilteringTimeout = defaults.FilteringTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaults.DialTimeout
	}
	if c.IOTimeout <= 0 {
		c.IOTimeout = defaults.IOTimeout
	}
	if c.CacheSize <= 0 {
		c.CacheSize = defaults.CacheSize
	}
	if c.CacheTTL < 0 {
		c.CacheTTL = 0
	}

	if c.Server == "" {
		return ErrNoServer
	}
	if _, _, err := net.SplitHostPort(c.Server); err != nil {
		return fmt.Errorf("classifier: invalid server address %q: %w", c.Server, err)
	}
	return nil
}
