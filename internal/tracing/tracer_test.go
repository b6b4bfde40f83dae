package tracing

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.False(t, cfg.Enabled, "tracing should be disabled by default")
	require.Equal(t, "file", cfg.Exporter)
	require.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	require.Equal(t, 1.0, cfg.SampleRate)
	require.Equal(t, "pkgdb", cfg.ServiceName)
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: false})
	require.NoError(t, err)
	require.False(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), "noop")
	require.False(t, span.SpanContext().IsValid(), "no-op spans carry no ids")
	span.End()
	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_Exporters(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "file", cfg: Config{Enabled: true, Exporter: "file", FilePath: filepath.Join(t.TempDir(), "t.jsonl")}},
		{name: "stdout", cfg: Config{Enabled: true, Exporter: "stdout"}},
		{name: "none", cfg: Config{Enabled: true, Exporter: "none"}},
		{name: "file without path", cfg: Config{Enabled: true, Exporter: "file"}, wantErr: "file_path required"},
		{name: "unknown", cfg: Config{Enabled: true, Exporter: "zipkin"}, wantErr: "unsupported exporter type: zipkin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.cfg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.True(t, provider.Enabled())

			_, span := provider.Tracer().Start(context.Background(), SpanEnsure)
			require.True(t, span.SpanContext().IsValid())
			span.End()
			require.NoError(t, provider.Shutdown(context.Background()))
		})
	}
}

func recordingTracer(t *testing.T) (trace.Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp.Tracer("test"), recorder
}

func TestRun_RecordsOutcome(t *testing.T) {
	tracer, recorder := recordingTracer(t)
	ctx := ContextWithRequestID(context.Background(), "req-42")

	err := Run(ctx, tracer, SpanFeed, func(ctx context.Context, span trace.Span) error {
		span.AddEvent(EventGhostCreated)
		return errors.New("feed down")
	}, attribute.String(AttrFeedName, "npm:public"))
	require.EqualError(t, err, "feed down")

	require.NoError(t, Run(ctx, tracer, SpanSave, func(context.Context, trace.Span) error { return nil }))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Equal(t, "feed down", spans[0].Status().Description)
	require.Contains(t, spans[0].Attributes(), attribute.String(AttrRequestID, "req-42"))
	require.Contains(t, spans[0].Attributes(), attribute.String(AttrFeedName, "npm:public"))
	require.Equal(t, codes.Ok, spans[1].Status().Code)
}

func TestRequestID(t *testing.T) {
	require.Empty(t, RequestIDFromContext(context.Background()))
	require.Empty(t, RequestIDFromContext(nil)) //nolint:staticcheck // nil context is handled

	id := NewRequestID()
	require.Len(t, id, 36)
	require.NotEqual(t, id, NewRequestID())

	ctx := ContextWithRequestID(context.Background(), id)
	require.Equal(t, id, RequestIDFromContext(ctx))
	require.Equal(t, context.Background(), ContextWithRequestID(context.Background(), ""))
}
