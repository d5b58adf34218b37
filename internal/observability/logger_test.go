package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/config"
)

// syncBuffer adapts bytes.Buffer to zapcore.WriteSyncer.
type syncBuffer struct {
	bytes.Buffer
}

func (b *syncBuffer) Sync() error { return nil }

func TestInitializeWritesToConsoleCore(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "aegis-test"}, buf)

	logger := GetLogger()
	require.NotNil(t, logger)
	logger.Info("hello from the test")
	logger.Sync()

	out := buf.String()
	assert.Contains(t, out, "hello from the test")
	assert.Contains(t, out, "aegis-test")
}

func TestInitializeHappensOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &syncBuffer{}
	second := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "one"}, first)
	Initialize(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "two"}, second)

	GetLogger().Info("routed")
	GetLogger().Sync()

	assert.Contains(t, first.String(), "routed")
	assert.Empty(t, second.String(), "a second Initialize call must be a no-op")
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "nonsense", Format: "json", ServiceName: "svc"}, buf)

	GetLogger().Debug("invisible")
	GetLogger().Info("visible")
	GetLogger().Sync()

	assert.NotContains(t, buf.String(), "invisible")
	assert.Contains(t, buf.String(), "visible")
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	assert.NotNil(t, GetLogger(), "callers always get a usable logger")
}

var _ zapcore.WriteSyncer = (*syncBuffer)(nil)
