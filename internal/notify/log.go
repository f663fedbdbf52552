package notify

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hackgods/surgical-authorization-tracker/internal/surgical"
)

// LogSink writes every notice to the structured log, at a level matching its
// severity.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Notify(_ context.Context, n surgical.Notice) {
	level := zapcore.InfoLevel
	switch n.Severity {
	case surgical.SeverityWarning:
		level = zapcore.WarnLevel
	case surgical.SeverityError:
		level = zapcore.ErrorLevel
	}

	s.log.Log(level, n.Message,
		zap.String("severity", string(n.Severity)),
		zap.String("kind", string(n.Kind)),
		zap.String("case_id", n.CaseID),
	)
}
