package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neopilot-ai/neopilot/internal/config"
)

func TestSetup_DisabledIsNoOp(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetup_StdoutFallbackWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:     true,
		ServiceName: "neopilot-test",
	})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
