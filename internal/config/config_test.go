package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basket/taskorc/internal/config"
)

func withHome(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("TASKORC_HOME", dir)
}

func TestLoadAppliesDefaultsOnFirstRun(t *testing.T) {
	withHome(t, t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	require.True(t, cfg.NeedsGenesis)
	require.Equal(t, "127.0.0.1:18790", cfg.BindAddr)
	require.Equal(t, "memory", cfg.Broker.Backend)
	require.Equal(t, 5, cfg.Scheduler.PollIntervalSeconds)
	require.Equal(t, 20, cfg.Scheduler.StaleAfterMinutes)
}

func TestLoadReadsConfigYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	withHome(t, dir)

	yaml := `
bind_addr: "0.0.0.0:9000"
broker:
  backend: redis
  redis_addr: "localhost:6379"
llm:
  provider: anthropic
  model: claude-sonnet-4-5-20250929
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := config.Load()
	require.NoError(t, err)
	require.False(t, cfg.NeedsGenesis)
	require.Equal(t, "0.0.0.0:9000", cfg.BindAddr)
	require.Equal(t, "redis", cfg.Broker.Backend)
	require.Equal(t, "localhost:6379", cfg.Broker.RedisAddr)
	require.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestEnvOverridesBeatConfigYAML(t *testing.T) {
	dir := t.TempDir()
	withHome(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("bind_addr: \"0.0.0.0:9000\"\n"), 0o644))
	t.Setenv("TASKORC_BIND_ADDR", "127.0.0.1:7777")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7777", cfg.BindAddr)
}

func TestResolveLLMConfigFallsBackToBuiltinModel(t *testing.T) {
	cfg := config.Config{LLM: config.LLMConfig{Provider: "anthropic"}}
	provider, model, _ := cfg.ResolveLLMConfig()
	require.Equal(t, "anthropic", provider)
	require.Equal(t, config.BuiltinModels["anthropic"][0].ID, model)
}

func TestLLMProviderAPIKeyPrefersEnvOverConfig(t *testing.T) {
	cfg := config.Config{Providers: map[string]config.ProviderConfig{
		"anthropic": {APIKey: "from-config"},
	}}
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	require.Equal(t, "from-env", cfg.LLMProviderAPIKey("anthropic"))
}

func TestFingerprintChangesWithBindAddr(t *testing.T) {
	a := config.Config{BindAddr: "a"}
	b := config.Config{BindAddr: "b"}
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
