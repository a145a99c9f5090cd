package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger = zap.NewNop().Sugar()

// Init replaces the no-op logger. Production mode writes JSON, otherwise a
// console encoder is used.
func Init(production, debug bool) error {
	var cfg zap.Config
	if production {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	Logger = l.Sugar()
	return nil
}

// Sync flushes buffered entries.
func Sync() {
	_ = Logger.Sync()
}

func With(args ...any) *zap.SugaredLogger {
	return Logger.With(args...)
}

func Info(msg string, args ...any) {
	Logger.Infow(msg, args...)
}

func Error(msg string, args ...any) {
	Logger.Errorw(msg, args...)
}

func Debug(msg string, args ...any) {
	Logger.Debugw(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger.Warnw(msg, args...)
}
