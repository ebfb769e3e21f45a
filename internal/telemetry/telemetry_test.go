package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/config"
)

func TestInit_Disabled(t *testing.T) {
	cfg := config.DefaultTelemetryConfig()
	require.False(t, cfg.Enabled)

	p, err := Init(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, p)

	// Shutdown is a no-op for noop providers.
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestShutdown_NilProviders(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestBuildVersion(t *testing.T) {
	assert.NotEmpty(t, buildVersion())
}
