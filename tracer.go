package vigil

import "context"

// Tracer is a minimal tracing capability. The core depends only on this
// interface; the observer package adapts it to OpenTelemetry. The zero
// configuration is a no-op tracer, so tracing never becomes a hard
// dependency of the event loop.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...SpanAttr) (context.Context, Span)
}

// Span is an in-flight trace span.
type Span interface {
	SetAttr(attrs ...SpanAttr)
	RecordError(err error)
	End()
}

// SpanAttr is a key/value pair attached to a span.
type SpanAttr struct {
	Key   string
	Value any
}

// StringAttr returns a string-valued span attribute.
func StringAttr(key, value string) SpanAttr { return SpanAttr{Key: key, Value: value} }

// IntAttr returns an int-valued span attribute.
func IntAttr(key string, value int) SpanAttr { return SpanAttr{Key: key, Value: value} }

// BoolAttr returns a bool-valued span attribute.
func BoolAttr(key string, value bool) SpanAttr { return SpanAttr{Key: key, Value: value} }

// Float64Attr returns a float-valued span attribute.
func Float64Attr(key string, value float64) SpanAttr { return SpanAttr{Key: key, Value: value} }

type nopTracer struct{}

func (nopTracer) Start(ctx context.Context, _ string, _ ...SpanAttr) (context.Context, Span) {
	return ctx, nopSpan{}
}

type nopSpan struct{}

func (nopSpan) SetAttr(...SpanAttr)  {}
func (nopSpan) RecordError(error)    {}
func (nopSpan) End()                 {}

// NopTracer returns a tracer that records nothing.
func NopTracer() Tracer { return nopTracer{} }
