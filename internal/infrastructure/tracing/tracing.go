// Package tracing implements ports.Tracer over go.opentelemetry.io/otel,
// opening spans under a tracer named "Rockestra" for flow/node/module
// invocations.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/rockestra/rockestra/internal/rockestra/ports"
)

const tracerName = "Rockestra"

// Tracer wraps an otel.Tracer behind ports.Tracer.
type Tracer struct {
	tracer oteltrace.Tracer
}

// New constructs a Tracer against the process-wide TracerProvider; call
// NewProvider first to install one with a real exporter, or rely on the
// global no-op provider in tests.
func New() *Tracer {
	return &Tracer{tracer: otel.Tracer(tracerName)}
}

// NewProvider builds an SDK TracerProvider with the given span processor
// (an OTLP/stdout exporter wrapped in sdktrace.NewBatchSpanProcessor, for
// example) and installs it as the process-wide default.
func NewProvider(opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp
}

func (t *Tracer) StartSpan(ctx context.Context, name string, attributes ...interface{}) (context.Context, ports.Span) {
	spanCtx, span := t.tracer.Start(ctx, name)
	s := &Span{span: span}
	s.SetAttributes(attributes...)
	return spanCtx, s
}

// Span wraps an oteltrace.Span behind ports.Span.
type Span struct {
	span oteltrace.Span
}

// SetAttributes applies a flat key/value... variadic list, matching the
// Logger field convention used elsewhere in Rockestra.
func (s *Span) SetAttributes(kvs ...interface{}) {
	for i := 0; i+1 < len(kvs); i += 2 {
		key, ok := kvs[i].(string)
		if !ok {
			continue
		}
		s.SetAttribute(key, kvs[i+1])
	}
}

func (s *Span) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, stringify(v)))
	}
}

func (s *Span) SetStatus(status ports.SpanStatus, message string) {
	if status == ports.SpanStatusError {
		s.span.SetStatus(codes.Error, message)
		return
	}
	s.span.SetStatus(codes.Ok, message)
}

func (s *Span) End() { s.span.End() }

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	if str, ok := v.(interface{ String() string }); ok {
		return str.String()
	}
	return ""
}

var (
	_ ports.Tracer = (*Tracer)(nil)
	_ ports.Span   = (*Span)(nil)
)
