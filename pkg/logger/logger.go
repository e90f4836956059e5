package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment selects the encoder and default level of a new logger.
type Environment string

const (
	Production  Environment = "production"
	Development Environment = "development"
)

// Logger is the structured key-value logging interface used across the
// pipeline. Every constructor in this repo accepts one and tolerates nil via
// EnsureLogger.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Debugf(format string, args ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Infof(format string, args ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Warnf(format string, args ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(msg string, keysAndValues ...interface{})
	Fatalf(format string, args ...interface{})
	With(keysAndValues ...interface{}) Logger
	Sync() error
}

type zapLogger struct {
	sugared *zap.SugaredLogger
}

// NewLogger builds a zap-backed Logger. Production uses JSON encoding at info
// level, development uses console encoding at debug level.
func NewLogger(env Environment) (Logger, error) {
	var cfg zap.Config
	switch env {
	case Production:
		cfg = zap.NewProductionConfig()
	case Development, "":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown logger environment: %s", env)
	}
	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &zapLogger{sugared: base.Sugar()}, nil
}

func (l *zapLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugared.Debugw(msg, keysAndValues...)
}

func (l *zapLogger) Debugf(format string, args ...interface{}) {
	l.sugared.Debugf(format, args...)
}

func (l *zapLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugared.Infow(msg, keysAndValues...)
}

func (l *zapLogger) Infof(format string, args ...interface{}) {
	l.sugared.Infof(format, args...)
}

func (l *zapLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugared.Warnw(msg, keysAndValues...)
}

func (l *zapLogger) Warnf(format string, args ...interface{}) {
	l.sugared.Warnf(format, args...)
}

func (l *zapLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugared.Errorw(msg, keysAndValues...)
}

func (l *zapLogger) Errorf(format string, args ...interface{}) {
	l.sugared.Errorf(format, args...)
}

func (l *zapLogger) Fatal(msg string, keysAndValues ...interface{}) {
	l.sugared.Fatalw(msg, keysAndValues...)
}

func (l *zapLogger) Fatalf(format string, args ...interface{}) {
	l.sugared.Fatalf(format, args...)
}

func (l *zapLogger) With(keysAndValues ...interface{}) Logger {
	return &zapLogger{sugared: l.sugared.With(keysAndValues...)}
}

func (l *zapLogger) Sync() error {
	return l.sugared.Sync()
}
