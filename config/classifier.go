package config

import (
	"fmt"
	"net"

	"github.com/dep2p/go-natt/internal/core/classifier"
)

// ClassifierConfig NAT 行为分类配置
//
// Server 为空时不做分类，本地行为按未知处理。
type ClassifierConfig struct {
	// Server 探测服务器主地址 host:port
	Server string `json:"server,omitempty"`

	// FilteringTimeout 过滤测试每个阶段等待回连的时间
	FilteringTimeout Duration `json:"filtering_timeout"`

	// DialTimeout 探测连接拨号超时
	DialTimeout Duration `json:"dial_timeout"`

	// IOTimeout 单条探测消息读写超时
	IOTimeout Duration `json:"io_timeout"`

	// CacheTTL 行为缓存有效期，0 关闭缓存
	CacheTTL Duration `json:"cache_ttl"`

	// CacheSize 缓存条目数
	CacheSize int `json:"cache_size"`
}

// DefaultClassifierConfig 返回默认分类配置
func DefaultClassifierConfig() ClassifierConfig {
	d := classifier.DefaultConfig()
	return ClassifierConfig{
		FilteringTimeout: Duration(d.FilteringTimeout),
		DialTimeout:      Duration(d.DialTimeout),
		IOTimeout:        Duration(d.IOTimeout),
		CacheTTL:         Duration(d.CacheTTL),
		CacheSize:        d.CacheSize,
	}
}

// Enabled 是否配置了探测服务器
func (c ClassifierConfig) Enabled() bool {
	return c.Server != ""
}

// Validate 校验服务器地址，超时由组件修正
func (c *ClassifierConfig) Validate() error {
	if c.Server == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Server); err != nil {
		return fmt.Errorf("invalid server address %q: %w", c.Server, err)
	}
	return nil
}

// Build 转换为分类器配置
func (c ClassifierConfig) Build() classifier.Config {
	return classifier.Config{
		Server:           c.Server,
		FilteringTimeout: c.FilteringTimeout.Std(),
		DialTimeout:      c.DialTimeout.Std(),
		IOTimeout:        c.IOTimeout.Std(),
		CacheTTL:         c.CacheTTL.Std(),
		CacheSize:        c.CacheSize,
	}
}
