package obs

import (
	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
)

// WatermillLogger routes watermill logs to zap
type WatermillLogger struct {
	l *zap.Logger
}

func NewWatermillLogger(l *zap.Logger) watermill.LoggerAdapter {
	return &WatermillLogger{l: l.Named("watermill")}
}

func (w *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.l.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (w *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	w.l.Info(msg, zapFields(fields)...)
}

func (w *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.l.Debug(msg, zapFields(fields)...)
}

// Trace is noisy enough to stay below debug
func (w *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	if ce := w.l.Check(zap.DebugLevel-1, msg); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

func (w *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillLogger{l: w.l.With(zapFields(fields)...)}
}

func zapFields(fields watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
