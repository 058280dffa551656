package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/happysentences/pkg/types"
)

const tracerName = "github.com/MrWong99/happysentences"

// Span attribute keys shared by the pipeline stages.
const (
	AttrLang    = attribute.Key("sentence.lang")
	AttrEmotion = attribute.Key("sentence.emotion")
	AttrLength  = attribute.Key("sentence.length")
	AttrKind    = attribute.Key("outcome.kind")
	AttrAction  = attribute.Key("outcome.requires_action")
)

// Tracer returns the tracer of the globally registered provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span carrying attrs. The caller ends it, usually through
// [EndSpan] or [EndOutcome].
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span when it is non-nil and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// EndOutcome annotates span with a settled pipeline outcome and ends it.
// Failed outcomes set an error status whose description is the failure kind;
// the outcome itself is not an error, so no exception event is recorded.
func EndOutcome(span trace.Span, out types.Outcome) {
	if out.Emotion != "" {
		span.SetAttributes(AttrEmotion.String(out.Emotion))
	}
	if out.Success {
		span.SetAttributes(AttrKind.String("ok"))
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetAttributes(AttrKind.String(string(out.Kind)))
		if out.RequiresAction != "" {
			span.SetAttributes(AttrAction.String(string(out.RequiresAction)))
		}
		span.SetStatus(codes.Error, string(out.Kind))
	}
	span.End()
}

// CorrelationID returns the trace ID of the active span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id attached when
// ctx carries an active span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
