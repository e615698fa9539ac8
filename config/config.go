// Package config 提供 natt 节点的统一配置
//
// 主 Config 按组件组织子配置，每个子配置在独立文件中定义，
// 并能转换为对应组件的内部配置。支持从 JSON 加载与保存。
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Classifier.Server = "203.0.113.10:3478"
//	cfg.Orchestrator.PeerID = "peer-a"
//
//	// 从文件加载
//	cfg, err := config.Load("natt.json")
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrNilConfig 配置为空
var ErrNilConfig = errors.New("config: config is nil")

// Config natt 节点的完整配置
//
//   - Classifier: NAT 行为分类（探测服务器地址、超时、缓存）
//   - Orchestrator: 源端与目标端编排（节点标识、查询与技术超时、保活）
//   - HolePunch: 打洞竞速
//   - Direct: 直连技术
//   - Reversal: 反向连接技术
//   - Metrics: Prometheus 指标
type Config struct {
	Classifier   ClassifierConfig   `json:"classifier"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	HolePunch    HolePunchConfig    `json:"holepunch"`
	Direct       DirectConfig       `json:"direct"`
	Reversal     ReversalConfig     `json:"reversal"`
	Metrics      MetricsConfig      `json:"metrics"`
}

// NewConfig 返回默认配置
func NewConfig() *Config {
	return &Config{
		Classifier:   DefaultClassifierConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		HolePunch:    DefaultHolePunchConfig(),
		Direct:       DefaultDirectConfig(),
		Reversal:     DefaultReversalConfig(),
		Metrics:      DefaultMetricsConfig(),
	}
}

// Validate 校验所有子配置，可修复的值直接修正
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if err := c.Classifier.Validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if err := c.Orchestrator.Validate(); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	if err := c.HolePunch.Validate(); err != nil {
		return fmt.Errorf("holepunch: %w", err)
	}
	if err := c.Direct.Validate(); err != nil {
		return fmt.Errorf("direct: %w", err)
	}
	if err := c.Reversal.Validate(); err != nil {
		return fmt.Errorf("reversal: %w", err)
	}
	return nil
}

// FromJSON 从 JSON 创建配置，未出现的字段保持默认值
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// Load 读取并校验 JSON 配置文件
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToJSON 序列化为缩进的 JSON
func (c *Config) ToJSON() ([]byte, error) {
	if c == nil {
		return nil, ErrNilConfig
	}
	return json.MarshalIndent(c, "", "  ")
}
