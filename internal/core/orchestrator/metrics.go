package orchestrator

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "natt_orchestrator"

// Role 编排角色
type Role string

const (
	RoleSource Role = "source"
	RoleTarget Role = "target"
)

var (
	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "attempts_total",
			Help:      "技术尝试次数",
		},
		[]string{"role", "technique", "outcome"},
	)

	attemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Name:      "attempt_duration_seconds",
			Help:      "技术尝试耗时",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 20},
		},
		[]string{"role", "technique"},
	)

	connectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "connections_total",
			Help:      "连接建立结果",
		},
		[]string{"role", "result"},
	)

	collectors = []prometheus.Collector{
		attemptsTotal,
		attemptDuration,
		connectionsTotal,
	}
)

// MetricsTracer 记录编排指标
type MetricsTracer interface {
	// AttemptFinished 一次技术尝试结束
	AttemptFinished(role Role, technique string, kind OutcomeKind, elapsed time.Duration)

	// ConnectionFinished 一次连接建立结束
	ConnectionFinished(role Role, established bool)
}

type metricsTracer struct{}

var _ MetricsTracer = (*metricsTracer)(nil)

type metricsTracerSetting struct {
	reg prometheus.Registerer
}

// MetricsTracerOption 指标追踪器选项
type MetricsTracerOption func(*metricsTracerSetting)

// WithRegisterer 指定注册器
func WithRegisterer(reg prometheus.Registerer) MetricsTracerOption {
	return func(s *metricsTracerSetting) {
		if reg != nil {
			s.reg = reg
		}
	}
}

// NewMetricsTracer 创建 Prometheus 指标追踪器
func NewMetricsTracer(opts ...MetricsTracerOption) MetricsTracer {
	setting := &metricsTracerSetting{reg: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(setting)
	}
	registerCollectors(setting.reg, collectors...)
	return &metricsTracer{}
}

func (m *metricsTracer) AttemptFinished(role Role, technique string, kind OutcomeKind, elapsed time.Duration) {
	attemptsTotal.WithLabelValues(string(role), technique, kind.String()).Inc()
	attemptDuration.WithLabelValues(string(role), technique).Observe(elapsed.Seconds())
}

func (m *metricsTracer) ConnectionFinished(role Role, established bool) {
	result := "failed"
	if established {
		result = "established"
	}
	connectionsTotal.WithLabelValues(string(role), result).Inc()
}

// registerCollectors 注册收集器，忽略重复注册
func registerCollectors(reg prometheus.Registerer, cs ...prometheus.Collector) {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			if ok := errors.As(err, &prometheus.AlreadyRegisteredError{}); !ok {
				panic(err)
			}
		}
	}
}

type noopTracer struct{}

func (noopTracer) AttemptFinished(Role, string, OutcomeKind, time.Duration) {}
func (noopTracer) ConnectionFinished(Role, bool)                          {}
