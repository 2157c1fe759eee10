package telemetry

import (
	"context"
	"testing"
	"time"

	"seatwarden/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func restoreGlobal(t *testing.T) {
	t.Helper()
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestInit_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	p, err := Init(context.Background(), config.TracingConfig{}, config.AppConfig{Name: "seatwarden"}, nil)
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.Equal(t, before, otel.GetTracerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))

	var zero *Provider
	assert.NoError(t, zero.Shutdown(context.Background()))
}

func TestInit_RecordsSpans(t *testing.T) {
	restoreGlobal(t)
	recorder := tracetest.NewSpanRecorder()

	cfg := config.TracingConfig{Enabled: true, SampleRatio: 1}
	p, err := Init(context.Background(), cfg, config.AppConfig{Name: "seatwarden", Version: "test"}, nil,
		sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := otel.Tracer("test").Start(context.Background(), "unit")
	assert.True(t, span.IsRecording())
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "unit", ended[0].Name())

	var serviceName string
	for _, kv := range ended[0].Resource().Attributes() {
		if kv.Key == "service.name" {
			serviceName = kv.Value.AsString()
		}
	}
	assert.Equal(t, "seatwarden", serviceName)

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_ZeroRatioSamplesNothing(t *testing.T) {
	restoreGlobal(t)
	recorder := tracetest.NewSpanRecorder()

	p, err := Init(context.Background(), config.TracingConfig{Enabled: true, SampleRatio: 0}, config.AppConfig{}, nil,
		sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := otel.Tracer("test").Start(context.Background(), "dropped")
	assert.False(t, span.IsRecording())
	span.End()
	assert.Empty(t, recorder.Ended())
}

func TestInit_WithEndpoint(t *testing.T) {
	restoreGlobal(t)

	cfg := config.TracingConfig{Enabled: true, Endpoint: "127.0.0.1:4317", Insecure: true, SampleRatio: 1}
	p, err := Init(context.Background(), cfg, config.AppConfig{Name: "seatwarden"}, nil)
	require.NoError(t, err)
	assert.True(t, p.Enabled())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.Shutdown(ctx)
}
