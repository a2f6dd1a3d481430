package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLogUsableBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() { Log.Infof("round %d", 1) })
}

func TestBootstrap(t *testing.T) {
	prev := Log
	defer func() { Log = prev }()

	Bootstrap()
	assert.True(t, Log.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.False(t, Log.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestBootstrapReportsEarlyFailures(t *testing.T) {
	prev := Log
	defer func() { Log = prev }()

	var buf bytes.Buffer
	Log = newConsole(zapcore.AddSync(&buf)).Sugar()
	Log.Errorf("Failed to load configuration: %v", errors.New("yaml: line 2: mapping values are not allowed"))

	assert.Contains(t, buf.String(), "ERROR")
	assert.Contains(t, buf.String(), "Failed to load configuration: yaml: line 2")
}

func TestInit(t *testing.T) {
	prev := Log
	defer func() { Log = prev }()

	require.NoError(t, Init("debug", "json"))
	assert.True(t, Log.Desugar().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, Init("warn", "console"))
	assert.False(t, Log.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Log.Desugar().Core().Enabled(zapcore.WarnLevel))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}
