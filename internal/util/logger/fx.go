package logger

import (
	"os"

	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// FxEventLogger 返回 fx 生命周期事件的日志器
//
// 默认静默，避免干扰用户日志；设置 NATT_FX_LOG 后输出到 zap 开发模式日志器。
func FxEventLogger() fxevent.Logger {
	if os.Getenv(EnvFxLog) == "" {
		return &fxevent.ZapLogger{Logger: zap.NewNop()}
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: l.Named("fx")}
}
