package tracing

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/INLOpen/nexuscommit/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitTracerProvider_Disabled(t *testing.T) {
	tp, cleanup, err := InitTracerProvider(config.TracingConfig{Enabled: false}, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, tp)
	require.NotNil(t, cleanup)
	cleanup()
}

func TestInitTracerProvider_UnsupportedProtocol(t *testing.T) {
	_, _, err := InitTracerProvider(config.TracingConfig{
		Enabled:  true,
		Endpoint: "localhost:4317",
		Protocol: "udp",
	}, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported tracing protocol")
}

func TestInitTracerProvider_GRPC(t *testing.T) {
	tp, cleanup, err := InitTracerProvider(config.TracingConfig{
		Enabled:  true,
		Endpoint: "localhost:4317",
		Protocol: "grpc",
	}, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, tp)

	// The provider becomes the process-wide default when tracing is enabled.
	assert.Same(t, tp, otel.GetTracerProvider())

	// No spans were recorded, so shutdown has nothing to flush.
	cleanup()
}

func TestInitTracerProvider_HTTP(t *testing.T) {
	tp, cleanup, err := InitTracerProvider(config.TracingConfig{
		Enabled:  true,
		Endpoint: "localhost:4318",
		Protocol: "http",
	}, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, tp)
	cleanup()
}
