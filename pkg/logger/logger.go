// Package logger is the structured logger shared by the CLI, the worker and
// the application services. It is a thin layer over zap that fixes the
// encoding and adds the admissions field helpers.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a zap level.
type Level = zapcore.Level

const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelWarn  = zapcore.WarnLevel
	LevelError = zapcore.ErrorLevel
)

// ParseLevel reads a level name, accepting "warning" for warn. Anything it
// does not recognise is info.
func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return LevelWarn
	}
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return LevelInfo
	}
	return lvl
}

// Format is the output encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Options configures New.
type Options struct {
	Output    io.Writer
	Level     Level
	Format    Format
	AddCaller bool
}

// Logger writes structured entries. The zero value is not usable; build one
// with New or Nop.
type Logger struct {
	z *zap.Logger
}

// New builds a logger. JSON is the default format and stdout the default
// output.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	var encoder zapcore.Encoder = zapcore.NewJSONEncoder(enc)
	if opts.Format == FormatConsole {
		encoder = zapcore.NewConsoleEncoder(enc)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(out)), opts.Level)
	var zo []zap.Option
	if opts.AddCaller {
		zo = append(zo, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	return &Logger{z: zap.New(core, zo...)}
}

// Nop discards everything.
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields ...Field) *Logger { return &Logger{z: l.z.With(fields...)} }

// Named returns a child logger with a dotted name segment added.
func (l *Logger) Named(name string) *Logger { return &Logger{z: l.z.Named(name)} }

// Zap exposes the zap logger for libraries that take one.
func (l *Logger) Zap() *zap.Logger { return l.z }

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.z.Sync() }

func (l *Logger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

// Enabled reports whether entries at lvl are written.
func (l *Logger) Enabled(lvl Level) bool { return l.z.Core().Enabled(lvl) }

type ctxKey struct{}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}

// Field is a zap field.
type Field = zap.Field

func String(key, value string) Field                 { return zap.String(key, value) }
func Int(key string, value int) Field                { return zap.Int(key, value) }
func Int64(key string, value int64) Field            { return zap.Int64(key, value) }
func Float64(key string, value float64) Field        { return zap.Float64(key, value) }
func Bool(key string, value bool) Field              { return zap.Bool(key, value) }
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }
func Time(key string, value time.Time) Field         { return zap.Time(key, value) }
func Any(key string, value any) Field                { return zap.Any(key, value) }

// Err adds err under "error"; a nil error adds nothing.
func Err(err error) Field { return zap.Error(err) }

func ApplicationID(id string) Field { return zap.String("application_id", id) }
func StudentID(id string) Field     { return zap.String("student_id", id) }
func ProgramID(id string) Field     { return zap.String("program_id", id) }
func Actor(id string) Field         { return zap.String("actor", id) }
func Status(s string) Field         { return zap.String("status", s) }
func Component(name string) Field   { return zap.String("component", name) }
func Operation(name string) Field   { return zap.String("operation", name) }
func RequestID(id string) Field     { return zap.String("request_id", id) }
func Latency(d time.Duration) Field { return zap.Duration("latency", d) }
