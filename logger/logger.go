package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It discards everything until Bootstrap or
// Init is called.
var Log = zap.NewNop().Sugar()

// Bootstrap installs an info level console logger on stderr. Call it first
// thing in main so failures before Init, such as a bad config file, are
// reported.
func Bootstrap() {
	Log = newConsole(zapcore.Lock(os.Stderr)).Sugar()
}

func newConsole(out zapcore.WriteSyncer) *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(enc), out, zapcore.InfoLevel))
}

// Init replaces Log. format "json" selects the production encoder, anything
// else the development console encoder.
func Init(level, format string) error {
	var zapCfg zap.Config
	if format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(parseLevel(level))

	logger, err := zapCfg.Build()
	if err != nil {
		return err
	}
	Log = logger.Sugar()
	return nil
}

// Sync flushes buffered entries.
func Sync() {
	_ = Log.Sync()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
