package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"pdmflow/pkg/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultTraceID = "0"
)

type traceKey struct{}

// Logger wraps a zap logger. It is constructed once per process and passed
// to every component that logs.
type Logger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// New builds a logger from configuration
func New(cfg config.LoggerConfig) (*Logger, error) {
	atomicLevel := zap.NewAtomicLevel()
	atomicLevel.SetLevel(parseLevel(cfg.Level))

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var syncer zapcore.WriteSyncer
	switch cfg.Output {
	case "file":
		file, err := openLogFile(cfg.File.Path)
		if err != nil {
			return nil, err
		}
		syncer = zapcore.AddSync(file)
	case "both":
		file, err := openLogFile(cfg.File.Path)
		if err != nil {
			return nil, err
		}
		syncer = zapcore.NewMultiWriteSyncer(
			zapcore.AddSync(os.Stdout),
			zapcore.AddSync(file),
		)
	default: // console
		syncer = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		syncer,
		atomicLevel,
	)

	return FromZap(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)), atomicLevel), nil
}

// FromZap wraps an existing zap logger, e.g. zaptest.NewLogger in tests.
func FromZap(base *zap.Logger, level zap.AtomicLevel) *Logger {
	return &Logger{base: base, sugar: base.Sugar(), level: level}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return FromZap(zap.NewNop(), zap.NewAtomicLevel())
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}
	return file, nil
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

// SetLevel changes the level at runtime
func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(parseLevel(level))
}

// Zap exposes the underlying zap logger
func (l *Logger) Zap() *zap.Logger {
	return l.base
}

// With returns a child logger carrying the given fields
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.base.With(fields...)
	return &Logger{base: child, sugar: child.Sugar(), level: l.level}
}

// WithTraceID stores a trace id (a run id for pipeline runs) on the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID returns the trace id stored on ctx, or "0".
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return defaultTraceID
	}
	if id, ok := ctx.Value(traceKey{}).(string); ok && id != "" {
		return id
	}
	return defaultTraceID
}

// Info level
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.base.Info(msg, fields...)
}

// Warn level
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.base.Warn(msg, fields...)
}

// Error level
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.base.Error(msg, fields...)
}

func (l *Logger) DebugCtx(ctx context.Context, format string, args ...interface{}) {
	l.sugar.Debugf(TraceID(ctx)+"\t"+format, args...)
}

func (l *Logger) InfoCtx(ctx context.Context, format string, args ...interface{}) {
	l.sugar.Infof(TraceID(ctx)+"\t"+format, args...)
}

func (l *Logger) WarnCtx(ctx context.Context, format string, args ...interface{}) {
	l.sugar.Warnf(TraceID(ctx)+"\t"+format, args...)
}

func (l *Logger) ErrorCtx(ctx context.Context, format string, args ...interface{}) {
	l.sugar.Errorf(TraceID(ctx)+"\t"+format, args...)
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.base.Sync()
}
