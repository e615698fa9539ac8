package config

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// Enabled 是否记录编排指标（注册到默认注册器）
	Enabled bool `json:"enabled"`
}

// DefaultMetricsConfig 默认关闭
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{}
}
