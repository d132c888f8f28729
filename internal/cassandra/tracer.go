package cassandra

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// tracer wraps an injected trace.Tracer so span creation is optional and
// nil-safe.
//
// A zero-value tracer records nothing and costs one nil check per call,
// so components can be constructed in tests without wiring a real
// exporter.
type tracer struct {
	t trace.Tracer
}

func newTracer(t trace.Tracer) tracer {
	return tracer{t: t}
}

// startSpan opens a span if a tracer was configured, otherwise returns
// ctx unchanged and a no-op end function.
func (tr tracer) startSpan(ctx context.Context, name string) (context.Context, func()) {
	if tr.t == nil {
		return ctx, func() {}
	}
	ctx, span := tr.t.Start(ctx, name)
	return ctx, func() { span.End() }
}

// recordError attaches err to the active span, used by the query runner
// when a callback's error must be recorded without aborting other
// batches.
func (tr tracer) recordError(ctx context.Context, err error) {
	if tr.t == nil || err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
}
