package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base = zap.NewNop()
	log  = base.Sugar()
)

// New builds a zap logger. env selects the encoder preset, level the minimum level.
func New(env, level string) (*zap.Logger, error) {
	var zapConfig zap.Config
	if env == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	switch level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return zapConfig.Build()
}

// Init installs the process-wide logger and returns it for injection.
func Init(env, level string) *zap.Logger {
	l, err := New(env, level)
	if err != nil {
		panic(err)
	}
	base = l
	log = l.Sugar()
	return l
}

// L returns the process-wide logger. It is a no-op logger until Init runs.
func L() *zap.Logger {
	return base
}

func Sync() {
	_ = log.Sync()
}

func Debug(msg string, keysAndValues ...interface{}) {
	log.Debugw(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...interface{}) {
	log.Infow(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...interface{}) {
	log.Warnw(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...interface{}) {
	log.Errorw(msg, keysAndValues...)
}

// Fatal logs and exits the process.
func Fatal(msg string, keysAndValues ...interface{}) {
	log.Fatalw(msg, keysAndValues...)
}
