package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// 环境变量
const (
	// EnvLevel 级别配置，格式: 子系统=级别,子系统=级别,默认级别
	EnvLevel = "NATT_LOG_LEVEL"
	// EnvFormat text 或 json
	EnvFormat = "NATT_LOG_FORMAT"
	// EnvAddSource true 或 false
	EnvAddSource = "NATT_LOG_SOURCE"
	// EnvFxLog 非空时输出 fx 生命周期日志
	EnvFxLog = "NATT_FX_LOG"
)

// LogFormat 日志输出格式
type LogFormat int

const (
	// FormatText 文本格式（默认）
	FormatText LogFormat = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	DefaultLevel    slog.Level
	SubsystemLevels map[string]slog.Level
	Format          LogFormat
	AddSource       bool
}

// LevelForSubsystem 获取子系统的日志级别
//
// 先精确匹配，再按 "." 分隔逐级匹配父子系统（natt.classifier -> natt）。
func (c *Config) LevelForSubsystem(subsystem string) slog.Level {
	for name := subsystem; name != ""; {
		if level, ok := c.SubsystemLevels[name]; ok {
			return level
		}
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			break
		}
		name = name[:i]
	}
	return c.DefaultLevel
}

var (
	configCache *Config
	configOnce  sync.Once
)

// ConfigFromEnv 从环境变量解析配置，结果缓存
func ConfigFromEnv() *Config {
	configOnce.Do(func() {
		configCache = ParseConfig(os.Getenv(EnvLevel), os.Getenv(EnvFormat), os.Getenv(EnvAddSource))
	})
	return configCache
}

// ResetConfig 重置配置缓存（仅用于测试）
func ResetConfig() {
	configOnce = sync.Once{}
	configCache = nil
}

// ParseConfig 解析级别、格式与源码位置配置
func ParseConfig(levels, format, addSource string) *Config {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}

	for _, part := range strings.Split(levels, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if subsystem, levelName, ok := strings.Cut(part, "="); ok {
			if level, ok := parseLevel(strings.TrimSpace(levelName)); ok {
				cfg.SubsystemLevels[strings.TrimSpace(subsystem)] = level
			}
			continue
		}
		if level, ok := parseLevel(part); ok {
			cfg.DefaultLevel = level
		}
	}

	if strings.EqualFold(format, "json") {
		cfg.Format = FormatJSON
	}
	cfg.AddSource = addSource == "true" || addSource == "1"

	return cfg
}

// parseLevel 解析日志级别名称
func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
