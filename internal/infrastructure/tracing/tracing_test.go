package tracing

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"github.com/stretchr/testify/require"

	"github.com/rockestra/rockestra/internal/rockestra/ports"
)

func TestStartSpanRecordsAttributesAndStatus(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	NewProvider(sdktrace.WithSyncer(exporter))

	tracer := New()
	_, span := tracer.StartSpan(context.Background(), "flow.execute", "flow_name", "rank", "attempt", 1)
	span.SetStatus(ports.SpanStatusOK, "")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "flow.execute", spans[0].Name)

	var sawFlowName, sawAttempt bool
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "flow_name" && a.Value.AsString() == "rank" {
			sawFlowName = true
		}
		if string(a.Key) == "attempt" && a.Value.AsInt64() == 1 {
			sawAttempt = true
		}
	}
	require.True(t, sawFlowName)
	require.True(t, sawAttempt)
}

func TestSetStatusErrorMarksSpanError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	NewProvider(sdktrace.WithSyncer(exporter))

	tracer := New()
	_, span := tracer.StartSpan(context.Background(), "module.execute")
	span.SetStatus(ports.SpanStatusError, "timeout")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "timeout", spans[0].Status.Description)
}
