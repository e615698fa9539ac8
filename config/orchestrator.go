package config

import (
	"github.com/dep2p/go-natt/internal/core/orchestrator"
	"github.com/dep2p/go-natt/pkg/types"
)

// OrchestratorConfig 连接编排配置
type OrchestratorConfig struct {
	// PeerID 本节点在中介上的标识
	PeerID string `json:"peer_id,omitempty"`

	// ClassifyPort 分类使用的本地端口，0 表示临时分配
	ClassifyPort int `json:"classify_port,omitempty"`

	// QueryTimeout 查询目标行为与技术集合的超时
	QueryTimeout Duration `json:"query_timeout"`

	// TechniqueTimeout 统一的技术尝试超时，0 使用技术声明值
	TechniqueTimeout Duration `json:"technique_timeout,omitempty"`

	// RegisterTimeout 注册与注销请求超时
	RegisterTimeout Duration `json:"register_timeout"`

	// KeepAliveInterval 目标端保活间隔
	KeepAliveInterval Duration `json:"keepalive_interval"`
}

// DefaultOrchestratorConfig 返回默认编排配置
func DefaultOrchestratorConfig() OrchestratorConfig {
	d := orchestrator.DefaultConfig()
	return OrchestratorConfig{
		QueryTimeout:      Duration(d.QueryTimeout),
		RegisterTimeout:   Duration(d.RegisterTimeout),
		KeepAliveInterval: Duration(d.KeepAliveInterval),
	}
}

// Validate 转换后交由编排器校验
func (c *OrchestratorConfig) Validate() error {
	cfg := c.Build()
	return cfg.Validate()
}

// Build 转换为编排器配置
func (c OrchestratorConfig) Build() orchestrator.Config {
	return orchestrator.Config{
		PeerID:            types.PeerID(c.PeerID),
		ClassifyPort:      c.ClassifyPort,
		QueryTimeout:      c.QueryTimeout.Std(),
		TechniqueTimeout:  c.TechniqueTimeout.Std(),
		RegisterTimeout:   c.RegisterTimeout.Std(),
		KeepAliveInterval: c.KeepAliveInterval.Std(),
	}
}
