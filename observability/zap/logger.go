// Package zap adapts core.Logger to go.uber.org/zap, the structured
// logger the rest of the example pack (FeatureBaseDB-featurebase in
// particular) standardizes on, so a WorkerPool's Logger field can be
// wired straight to production logging infrastructure instead of the
// teacher's stdlib-`log`-backed DefaultLogger.
package zap

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/swind/stealpool/core"
)

// Logger adapts a *zap.Logger to core.Logger.
type Logger struct {
	z *zap.Logger
}

// New wraps z as a core.Logger.
func New(z *zap.Logger) *Logger {
	return &Logger{z: z}
}

// NewProduction builds a production zap configuration and wraps it.
func NewProduction() (*Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return New(z), nil
}

// NewDevelopment builds a development zap configuration and wraps it.
func NewDevelopment() (*Logger, error) {
	z, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return New(z), nil
}

func (l *Logger) Debug(msg string, fields ...core.Field) { l.z.Debug(msg, toZapFields(fields)...) }
func (l *Logger) Info(msg string, fields ...core.Field)  { l.z.Info(msg, toZapFields(fields)...) }
func (l *Logger) Warn(msg string, fields ...core.Field)  { l.z.Warn(msg, toZapFields(fields)...) }
func (l *Logger) Error(msg string, fields ...core.Field) { l.z.Error(msg, toZapFields(fields)...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.z.Sync() }

func toZapFields(fields []core.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

var _ core.Logger = (*Logger)(nil)
