package logger

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured log attribute.
type Field = zap.Field

// Logger is the logging surface every component depends on. Messages are
// short snake_case event names; values travel in fields.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// zapLogger implements Logger using a SugaredLogger internally.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

func (l *zapLogger) Debug(msg string, fields ...Field) {
	l.sugar.Debugw(msg, zapFieldsToKV(fields)...)
}
func (l *zapLogger) Info(msg string, fields ...Field) {
	l.sugar.Infow(msg, zapFieldsToKV(fields)...)
}
func (l *zapLogger) Warn(msg string, fields ...Field) {
	l.sugar.Warnw(msg, zapFieldsToKV(fields)...)
}
func (l *zapLogger) Error(msg string, fields ...Field) {
	l.sugar.Errorw(msg, zapFieldsToKV(fields)...)
}

func (l *zapLogger) Sync() error { return l.sugar.Sync() }

// Sync flushes any buffered entries of l. Loggers that do not buffer are a
// no-op.
func Sync(l Logger) error {
	if s, ok := l.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

// NewZapLogger creates a production logger (JSON encoding, level INFO).
func NewZapLogger() (Logger, error) {
	return NewZapLoggerLevel("info")
}

// NewZapLoggerLevel is NewZapLogger with an explicit minimum level
// ("debug", "info", "warn", "error").
func NewZapLoggerLevel(level string) (Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{sugar: z.Sugar()}, nil
}

// NewNop returns a logger that discards everything (parameter sweeps).
func NewNop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

// zapFieldsToKV flattens fields into the key/value list SugaredLogger expects.
// Encoding through a MapObjectEncoder keeps numeric and string fields intact.
func zapFieldsToKV(fields []Field) []interface{} {
	if len(fields) == 0 {
		return nil
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	out := make([]interface{}, 0, len(enc.Fields)*2)
	for _, f := range fields {
		if v, ok := enc.Fields[f.Key]; ok {
			out = append(out, f.Key, v)
		}
	}
	return out
}

func String(key, val string) Field          { return zap.String(key, val) }
func Float64(key string, val float64) Field { return zap.Float64(key, val) }
func Int(key string, val int) Field         { return zap.Int(key, val) }
func Bool(key string, val bool) Field       { return zap.Bool(key, val) }
func Time(key string, val time.Time) Field  { return zap.Time(key, val) }
func Err(err error) Field                   { return zap.Error(err) }
