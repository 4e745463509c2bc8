package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestRunTracerSpan(t *testing.T) {
	recorder := recordSpans(t)

	_, span := NewRunTracer("orders.csv").StartSpan(context.Background(), "produce")
	span.SetAttribute("rows", 12)
	span.End(nil)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "csvmachine.produce", ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)

	attrs := map[string]string{}
	for _, kv := range ended[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "orders.csv", attrs["csv.source"])
	assert.Equal(t, "12", attrs["rows"])
}

func TestSpanRecordsError(t *testing.T) {
	recorder := recordSpans(t)

	_, span := NewSpan(context.Background(), "consume")
	span.End(errors.New("boom"))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "boom", ended[0].Status().Description)
}

func TestInitTracingWritesSpans(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var out bytes.Buffer
	shutdown, err := InitTracing(TracingConfig{ServiceName: "csvmachine", SamplingRate: 1, Writer: &out})
	require.NoError(t, err)

	_, span := NewSpan(context.Background(), "header")
	span.End(nil)
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, out.String(), `"Name":"header"`)
}
