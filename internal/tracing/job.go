package tracing

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	attrJobID = attribute.Key("clearframe.job.id")
	attrStage = attribute.Key("clearframe.stage")
)

// Carrier travels inside queue payloads so the worker's span joins the
// trace of the request that started processing.
type Carrier struct {
	TraceParent string `json:"trace_parent,omitempty"`
	TraceState  string `json:"trace_state,omitempty"`
}

// NewCarrier captures the span context of ctx.
func NewCarrier(ctx context.Context) Carrier {
	m := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, m)
	return Carrier{TraceParent: m.Get("traceparent"), TraceState: m.Get("tracestate")}
}

// Context returns ctx as a child of the carried span, or ctx unchanged
// when nothing was carried.
func (c Carrier) Context(ctx context.Context) context.Context {
	if c.TraceParent == "" {
		return ctx
	}
	m := propagation.MapCarrier{"traceparent": c.TraceParent}
	if c.TraceState != "" {
		m["tracestate"] = c.TraceState
	}
	return otel.GetTextMapPropagator().Extract(ctx, m)
}

// StartRun opens the consumer span around one processing attempt.
func StartRun(ctx context.Context, id uuid.UUID) (context.Context, trace.Span) {
	return tracer().Start(ctx, "clearframe.job.run",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrJobID.String(id.String())),
	)
}

// StartDispatch opens the producer span for handing a job to the queue.
func StartDispatch(ctx context.Context, id uuid.UUID) (context.Context, trace.Span) {
	return tracer().Start(ctx, "clearframe.job.dispatch",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attrJobID.String(id.String())),
	)
}

// StartStage wraps one step of a run, e.g. "resolve", "ffmpeg" or
// "upload".
func StartStage(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, "clearframe.stage."+stage,
		trace.WithAttributes(append(attrs, attrStage.String(stage))...),
	)
}

// Annotate adds attributes to the span in ctx.
func Annotate(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
