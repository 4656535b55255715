package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "claude", cfg.LLM.DefaultProvider)
	assert.Equal(t, 10, cfg.Memory.WorkingLimit)
	assert.Equal(t, 50, cfg.Memory.CompressionThreshold)
	assert.Equal(t, 1000, cfg.Memory.EpisodicCapacity)
	assert.Equal(t, 30, cfg.Executor.DefaultTimeoutS)
	assert.True(t, cfg.Executor.EnableSnapshots)
	assert.Equal(t, 5, cfg.Executor.MaxParallelSteps)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Executor.DefaultTimeoutS)
}

func TestLoader_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
executor:
  default_timeout_s: 45
  max_parallel_steps: 3
memory:
  compression_threshold: 12
ux:
  temperature: 0.2
`)
	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 45, cfg.Executor.DefaultTimeoutS)
	assert.Equal(t, 3, cfg.Executor.MaxParallelSteps)
	assert.Equal(t, 12, cfg.Memory.CompressionThreshold)
	assert.InDelta(t, 0.2, cfg.UX.Temperature, 1e-9)
	// Untouched sections keep defaults.
	assert.Equal(t, 1000, cfg.Memory.EpisodicCapacity)
}

func TestLoader_ProviderBlocks(t *testing.T) {
	path := writeConfigFile(t, `
llm:
  default_provider: claude
  providers:
    claude:
      api_key: sk-test
      models: [claude-3-5-sonnet-20241022]
      priority: 100
      enabled: true
      timeout: 90s
      max_retries: 2
    gemini:
      api_key: g-test
      models: [gemini-2.0-flash]
      priority: 50
      enabled: false
`)
	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	require.Len(t, cfg.LLM.Providers, 2)
	claude := cfg.LLM.Providers["claude"]
	assert.Equal(t, "sk-test", claude.APIKey)
	assert.Equal(t, []string{"claude-3-5-sonnet-20241022"}, claude.Models)
	assert.Equal(t, 100, claude.Priority)
	assert.True(t, claude.Enabled)
	assert.Equal(t, 90*time.Second, claude.Timeout)
	assert.Equal(t, 2, claude.MaxRetries)
	assert.False(t, cfg.LLM.Providers["gemini"].Enabled)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
log:
  level: warn
executor:
  default_timeout_s: 45
`)
	t.Setenv("SUPERAGENT_LOG_LEVEL", "debug")
	t.Setenv("SUPERAGENT_EXECUTOR_MAX_PARALLEL_STEPS", "7")
	t.Setenv("SUPERAGENT_LLM_TIMEOUT", "90s")
	t.Setenv("SUPERAGENT_SECURITY_ALLOWED_PATHS", "/srv/work, /tmp/scratch")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 45, cfg.Executor.DefaultTimeoutS, "file value survives when env does not name the field")
	assert.Equal(t, 7, cfg.Executor.MaxParallelSteps)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, []string{"/srv/work", "/tmp/scratch"}, cfg.Security.AllowedPaths)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("SA_LOG_LEVEL", "error")
	cfg, err := NewLoader().WithEnvPrefix("SA").Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoader_ValidatorRejects(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return assert.AnError }).
		Load()
	assert.Error(t, err)
}

func TestValidate_TemperatureBounds(t *testing.T) {
	for _, temp := range []float64{0, 1, 2} {
		cfg := DefaultConfig()
		cfg.UX.Temperature = temp
		assert.NoError(t, cfg.Validate(), "temperature %v must be accepted", temp)
	}
	for _, temp := range []float64{-0.1, 2.1} {
		cfg := DefaultConfig()
		cfg.UX.Temperature = temp
		assert.Error(t, cfg.Validate(), "temperature %v must be rejected", temp)
	}
}

func TestValidate_ExecutorBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Executor.DefaultTimeoutS = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Executor.MaxParallelSteps = -1
	assert.Error(t, cfg.Validate())
}

func TestValidate_EnabledProviderNeedsModels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Providers = map[string]ProviderConfig{
		"claude": {Enabled: true},
	}
	assert.Error(t, cfg.Validate())

	cfg.LLM.Providers["claude"] = ProviderConfig{Enabled: true, Models: []string{"claude-3-5-sonnet-20241022"}}
	assert.NoError(t, cfg.Validate())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "postgres",
			cfg:  DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "sa", SSLMode: "disable"},
			want: "host=db port=5432 user=u password=p dbname=sa sslmode=disable",
		},
		{
			name: "mysql",
			cfg:  DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "sa"},
			want: "u:p@tcp(db:3306)/sa?parseTime=true",
		},
		{
			name: "sqlite",
			cfg:  DatabaseConfig{Driver: "sqlite", Name: "sa.db"},
			want: "sa.db",
		},
		{
			name: "unknown",
			cfg:  DatabaseConfig{Driver: "oracle"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}

func TestMustLoad_PanicsOnBadFile(t *testing.T) {
	path := writeConfigFile(t, "llm: [not a mapping")
	assert.Panics(t, func() { MustLoad(path) })
}
