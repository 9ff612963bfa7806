// Package zaplog adapts go.uber.org/zap to the storekit.Logger
// interface.
package zaplog

import (
	"go.uber.org/zap"

	"github.com/gobeaver/storekit"
)

// Logger wraps a zap.Logger.
type Logger struct {
	l *zap.Logger
}

// New wraps an existing zap logger.
func New(l *zap.Logger) *Logger {
	return &Logger{l: l}
}

// NewProduction builds a zap production logger wrapped for storekit.
func NewProduction() (*Logger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &Logger{l: l}, nil
}

func (z *Logger) Debug(msg string, fields storekit.Fields) { z.l.Debug(msg, toZap(fields)...) }
func (z *Logger) Info(msg string, fields storekit.Fields)  { z.l.Info(msg, toZap(fields)...) }
func (z *Logger) Warn(msg string, fields storekit.Fields)  { z.l.Warn(msg, toZap(fields)...) }
func (z *Logger) Error(msg string, fields storekit.Fields) { z.l.Error(msg, toZap(fields)...) }

// Sync flushes buffered entries.
func (z *Logger) Sync() error { return z.l.Sync() }

func toZap(fields storekit.Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

var _ storekit.Logger = (*Logger)(nil)
