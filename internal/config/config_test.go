package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configVars = []string{
	"FIRECRAWL_API_KEY", "FIRECRAWL_BASE_URL", "DIRECTORY_BASE_URL",
	"AI_PROVIDER", "OPENROUTER_API_KEY", "OPENROUTER_MODEL", "OPENROUTER_BASE_URL",
	"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL",
	"AI_MAX_RETRIES", "AI_RATE_LIMIT_RPS", "AI_REQUEST_TIMEOUT",
	"DATABASE_PATH", "REDIS_URL", "HTTP_ADDR", "WORKERS", "QUEUE_SIZE",
	"LEASE_TTL", "MIN_RELEVANCE", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configVars {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Pipeline.MinRelevance)
	assert.Equal(t, ProviderNone, cfg.ResolvedProvider())
	assert.Equal(t, "google/gemini-2.0-flash-exp:free", cfg.AI.OpenRouter.Model)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
discovery:
  firecrawl_api_key: fc-from-file
ai:
  provider: auto
  gemini:
    api_key: g-key
  request_timeout: 45s
queue:
  workers: 4
pipeline:
  min_relevance: 55
log:
  format: console
`), 0o600))

	t.Setenv("WORKERS", "8")
	t.Setenv("LEASE_TTL", "2m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fc-from-file", cfg.Discovery.FirecrawlAPIKey)
	assert.Equal(t, ProviderGemini, cfg.ResolvedProvider())
	assert.Equal(t, 45*time.Second, cfg.AI.RequestTimeout)
	assert.Equal(t, 8, cfg.Queue.Workers)
	assert.Equal(t, 2*time.Minute, cfg.Queue.LeaseTTL)
	assert.Equal(t, 55, cfg.Pipeline.MinRelevance)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipline:\n  min_relevance: 10\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad_int", env: map[string]string{"WORKERS": "many"}},
		{name: "zero_workers", env: map[string]string{"WORKERS": "0"}},
		{name: "bad_duration", env: map[string]string{"LEASE_TTL": "soon"}},
		{name: "bad_provider", env: map[string]string{"AI_PROVIDER": "claude"}},
		{name: "missing_key", env: map[string]string{"AI_PROVIDER": "openrouter"}},
		{name: "threshold_range", env: map[string]string{"MIN_RELEVANCE": "101"}},
		{name: "zero_threshold", env: map[string]string{"MIN_RELEVANCE": "0"}},
		{name: "log_format", env: map[string]string{"LOG_FORMAT": "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestResolvedProviderPrefersOpenRouter(t *testing.T) {
	cfg := Default()
	cfg.AI.OpenRouter.APIKey = "sk-or"
	cfg.AI.Gemini.APIKey = "g"
	assert.Equal(t, ProviderOpenRouter, cfg.ResolvedProvider())

	cfg.AI.Provider = ProviderNone
	assert.Equal(t, ProviderNone, cfg.ResolvedProvider())
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("MIN_RELEVANCE=61\n"), 0o600))

	// clearEnv registered a restore for MIN_RELEVANCE; unset it so the file value applies.
	require.NoError(t, os.Unsetenv("MIN_RELEVANCE"))
	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 61, cfg.Pipeline.MinRelevance)
}
