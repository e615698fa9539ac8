package config

import (
	"fmt"
	"net"

	"github.com/dep2p/go-natt/internal/core/holepunch"
	"github.com/dep2p/go-natt/internal/core/technique/direct"
	"github.com/dep2p/go-natt/internal/core/technique/reversal"
)

// ============================================================================
//                              打洞
// ============================================================================

// HolePunchConfig 打洞技术配置
type HolePunchConfig struct {
	// Enable 是否提供打洞技术
	Enable bool `json:"enable"`

	DialTimeout     Duration `json:"dial_timeout"`
	RetryInterval   Duration `json:"retry_interval"`
	AuthTimeout     Duration `json:"auth_timeout"`
	DiscoverTimeout Duration `json:"discover_timeout"`
}

// DefaultHolePunchConfig 返回默认打洞配置
func DefaultHolePunchConfig() HolePunchConfig {
	d := holepunch.DefaultConfig()
	return HolePunchConfig{
		Enable:          true,
		DialTimeout:     Duration(d.DialTimeout),
		RetryInterval:   Duration(d.RetryInterval),
		AuthTimeout:     Duration(d.AuthTimeout),
		DiscoverTimeout: Duration(d.DiscoverTimeout),
	}
}

// Validate 无需校验，非正值由组件修正
func (c *HolePunchConfig) Validate() error {
	return nil
}

// Build 转换为打洞配置
func (c HolePunchConfig) Build() holepunch.Config {
	return holepunch.Config{
		DialTimeout:     c.DialTimeout.Std(),
		RetryInterval:   c.RetryInterval.Std(),
		AuthTimeout:     c.AuthTimeout.Std(),
		DiscoverTimeout: c.DiscoverTimeout.Std(),
	}
}

// ============================================================================
//                              直连
// ============================================================================

// DirectConfig 直连技术配置
type DirectConfig struct {
	Enable bool `json:"enable"`

	// ListenAddr 目标端注册期间的监听地址
	ListenAddr string `json:"listen_addr"`

	// AdvertiseAddr 对外通告的地址，为空时自动确定
	AdvertiseAddr string `json:"advertise_addr,omitempty"`

	DialTimeout Duration `json:"dial_timeout"`
	AuthTimeout Duration `json:"auth_timeout"`
}

// DefaultDirectConfig 返回默认直连配置
func DefaultDirectConfig() DirectConfig {
	d := direct.DefaultConfig()
	return DirectConfig{
		Enable:      true,
		ListenAddr:  d.ListenAddr,
		DialTimeout: Duration(d.DialTimeout),
		AuthTimeout: Duration(d.AuthTimeout),
	}
}

// Validate 校验地址格式
func (c *DirectConfig) Validate() error {
	return validateAddrs(c.ListenAddr, c.AdvertiseAddr)
}

// Build 转换为直连配置
func (c DirectConfig) Build() direct.Config {
	return direct.Config{
		ListenAddr:    c.ListenAddr,
		AdvertiseAddr: c.AdvertiseAddr,
		DialTimeout:   c.DialTimeout.Std(),
		AuthTimeout:   c.AuthTimeout.Std(),
	}
}

// ============================================================================
//                              反向连接
// ============================================================================

// ReversalConfig 反向连接技术配置
type ReversalConfig struct {
	Enable bool `json:"enable"`

	// ListenAddr 源端等待回连的监听地址
	ListenAddr string `json:"listen_addr"`

	// AdvertiseAddr 对外通告的地址，为空时自动确定
	AdvertiseAddr string `json:"advertise_addr,omitempty"`

	DialTimeout   Duration `json:"dial_timeout"`
	RetryInterval Duration `json:"retry_interval"`
	AuthTimeout   Duration `json:"auth_timeout"`
}

// DefaultReversalConfig 返回默认反向连接配置
func DefaultReversalConfig() ReversalConfig {
	d := reversal.DefaultConfig()
	return ReversalConfig{
		Enable:        true,
		ListenAddr:    d.ListenAddr,
		DialTimeout:   Duration(d.DialTimeout),
		RetryInterval: Duration(d.RetryInterval),
		AuthTimeout:   Duration(d.AuthTimeout),
	}
}

// Validate 校验地址格式
func (c *ReversalConfig) Validate() error {
	return validateAddrs(c.ListenAddr, c.AdvertiseAddr)
}

// Build 转换为反向连接配置
func (c ReversalConfig) Build() reversal.Config {
	return reversal.Config{
		ListenAddr:    c.ListenAddr,
		AdvertiseAddr: c.AdvertiseAddr,
		DialTimeout:   c.DialTimeout.Std(),
		RetryInterval: c.RetryInterval.Std(),
		AuthTimeout:   c.AuthTimeout.Std(),
	}
}

// validateAddrs 空地址跳过，其余必须是 host:port
func validateAddrs(addrs ...string) error {
	for _, a := range addrs {
		if a == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(a); err != nil {
			return fmt.Errorf("invalid address %q: %w", a, err)
		}
	}
	return nil
}
