package observability

import (
	"context"
	"testing"

	"github.com/annel0/chunkstream/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTelemetry_Disabled(t *testing.T) {
	shutdown, err := InitTelemetry(context.Background(), config.TelemetryConfig{Enabled: false, ServiceName: "test"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestTracer_NoopWithoutProvider(t *testing.T) {
	_, span := Tracer("streamer").Start(context.Background(), "chunk.generate")
	defer span.End()
	assert.False(t, span.SpanContext().IsSampled())
}
