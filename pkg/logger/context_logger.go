package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type participantKey struct{}

// WithParticipant tags a context with the participant a request acts
// on, so request-scoped log entries can carry it.
func WithParticipant(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, participantKey{}, id)
}

// ContextLogger enriches log entries with request-scoped identifiers:
// the active trace span and the participant, when the context carries
// them.
type ContextLogger struct {
	base *zap.SugaredLogger
}

func NewContextLogger(base *zap.SugaredLogger) *ContextLogger {
	return &ContextLogger{base: base}
}

// WithContext returns the base logger annotated with the context's
// identifiers. A context without a recording span or a participant
// yields the base logger unchanged.
func (cl *ContextLogger) WithContext(ctx context.Context) *zap.SugaredLogger {
	log := cl.base
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		log = log.With(
			"trace_id", sc.TraceID().String(),
			"span_id", sc.SpanID().String(),
		)
	}
	if id, ok := ctx.Value(participantKey{}).(string); ok && id != "" {
		log = log.With("participant_id", id)
	}
	return log
}
