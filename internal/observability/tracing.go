package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "findit"

// Tracer returns the findit tracer from the global provider. Without an
// installed SDK provider spans are no-ops.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Stage is one timed, traced step of a pipeline run.
type Stage struct {
	name  string
	start time.Time
	span  trace.Span
}

// StartStage opens a span named "stage.<name>" and starts its timer.
func StartStage(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Stage) {
	ctx, span := Tracer().Start(ctx, "stage."+name, trace.WithAttributes(attrs...))
	return ctx, &Stage{name: name, start: time.Now(), span: span}
}

// End records the stage latency and closes the span, marking it failed
// when err is non-nil.
func (s *Stage) End(err error) {
	StageDuration.WithLabelValues(s.name).Observe(time.Since(s.start).Seconds())
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}
