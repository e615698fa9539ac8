package logger

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxevent"
)

func TestSetOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	log := Logger("natt.test")
	log.Info("test message", "key", "value")

	output := buf.String()
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "key=value")
	assert.Contains(t, output, "subsystem=natt.test")
}

func TestSetOutput_ExistingLogger(t *testing.T) {
	log := Logger("natt.test2")

	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	log.Info("after switch", "key", "value")
	assert.Contains(t, buf.String(), "after switch")
}

func TestSetLevel_SharedWithDerived(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	log := Logger("natt.test3")
	derived := log.With("session", "abc")

	SetLevel("natt.test3", slog.LevelError)
	derived.Info("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	SetLevel("natt.test3", slog.LevelDebug)
	derived.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "session=abc")
}

func TestParseConfig(t *testing.T) {
	cfg := ParseConfig("natt=warn, natt.classifier=debug ,error", "JSON", "1")

	assert.Equal(t, slog.LevelError, cfg.DefaultLevel)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.True(t, cfg.AddSource)

	assert.Equal(t, slog.LevelDebug, cfg.LevelForSubsystem("natt.classifier"))
	assert.Equal(t, slog.LevelWarn, cfg.LevelForSubsystem("natt.holepunch"), "应继承父子系统级别")
	assert.Equal(t, slog.LevelError, cfg.LevelForSubsystem("other"))

	cfg = ParseConfig("", "", "")
	assert.Equal(t, slog.LevelInfo, cfg.DefaultLevel)
	assert.Equal(t, FormatText, cfg.Format)
	assert.False(t, cfg.AddSource)
}

func TestDiscard(t *testing.T) {
	l := Discard()
	require.NotNil(t, l)
	l.Error("nothing")
}

func TestFxEventLogger(t *testing.T) {
	t.Setenv(EnvFxLog, "")
	l := FxEventLogger()
	_, ok := l.(*fxevent.ZapLogger)
	assert.True(t, ok)
}
