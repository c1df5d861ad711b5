package di

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenq-ai/tenq-cli/internal/application/ports"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TENQ_API_URL", "TENQ_API_KEY", "TENQ_LOG_LEVEL",
		"TENQ_STREAM_TIMEOUT", "TENQ_DEBUG",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("TENQ_CONFIG_FILE", filepath.Join(t.TempDir(), "config.json"))
}

func TestNewContainerWiresEverything(t *testing.T) {
	isolateEnv(t)

	container, err := NewContainer()
	require.NoError(t, err)

	assert.NotNil(t, container.Config)
	assert.NotNil(t, container.ConfigRepo)
	assert.NotNil(t, container.Logger)
	assert.NotNil(t, container.AuthManager)
	assert.NotNil(t, container.APIGateway)
	assert.NotNil(t, container.StreamClient)
	assert.NotNil(t, container.SummaryService)

	cliDeps := container.GetCLIContainer()
	require.NotNil(t, cliDeps)
	assert.Same(t, container.Config, cliDeps.Config)
	assert.Same(t, container.SummaryService, cliDeps.SummaryService)
	assert.Same(t, container, cliDeps.MainContainer)
}

func TestNewContainerFallsBackToDefaultsOnBadConfig(t *testing.T) {
	isolateEnv(t)
	t.Setenv("TENQ_STREAM_TIMEOUT", "bogus")

	container, err := NewContainer()
	require.NoError(t, err)
	assert.Equal(t, "https://api.tenq.ai", container.Config.APIEndpoint)
	assert.Equal(t, 120, container.Config.StreamTimeoutSeconds)
}

func TestApplyAPIURLOverride(t *testing.T) {
	isolateEnv(t)

	container, err := NewContainer()
	require.NoError(t, err)
	previousService := container.SummaryService

	require.NoError(t, container.ApplyAPIURLOverride("https://staging.tenq.ai"))

	assert.Equal(t, "https://staging.tenq.ai", container.Config.APIEndpoint)
	assert.NotSame(t, previousService, container.SummaryService, "services must be rebuilt against the new endpoint")
	assert.Same(t, container.SummaryService, container.GetCLIContainer().SummaryService)

	assert.Error(t, container.ApplyAPIURLOverride(""))
}

func TestApplyDebugOverride(t *testing.T) {
	isolateEnv(t)

	container, err := NewContainer()
	require.NoError(t, err)
	require.NoError(t, container.ApplyDebugOverride())

	assert.True(t, container.Config.Debug)
	assert.Equal(t, ports.LogLevelDebug, container.Logger.GetLogLevel())
}
