// Package logger 提供 go-natt 的统一日志系统
//
// 基于 log/slog，按子系统配置级别，通过环境变量控制：
//
//	# 默认 info，classifier 子系统 debug
//	NATT_LOG_LEVEL=natt.classifier=debug,info
//
//	# JSON 输出
//	NATT_LOG_FORMAT=json
//
// 使用示例:
//
//	var log = logger.Logger("natt.holepunch")
//
//	log.Info("打洞成功", "peer", peer, "remote", conn.RemoteAddr())
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	// loggers 缓存各子系统的 Logger
	loggers sync.Map // map[string]*slog.Logger

	// handlers 缓存各子系统的 Handler，用于动态调整级别
	handlers sync.Map // map[string]*subsystemHandler
)

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回同一实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	h := newHandler(subsystem, cfg.LevelForSubsystem(subsystem), cfg)

	actual, loaded := loggers.LoadOrStore(subsystem, slog.New(h))
	if !loaded {
		handlers.Store(subsystem, h)
	}
	return actual.(*slog.Logger)
}

// SetLevel 动态设置子系统的日志级别
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).SetLevel(level)
	}
}

// SetGlobalLevel 设置所有已创建子系统的日志级别
func SetGlobalLevel(level slog.Level) {
	handlers.Range(func(_, value any) bool {
		value.(*subsystemHandler).SetLevel(level)
		return true
	})
}

// SetOutput 设置日志输出目标
//
// 已创建的 Logger 也会切换到新的输出。
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
}

// Discard 返回丢弃所有日志的 Logger，主要用于测试
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}
