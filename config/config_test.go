package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/snapq/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DriverBadger, cfg.Storage.Driver)
	assert.Equal(t, DefaultPath, cfg.Storage.Path)
	assert.Equal(t, ai.ProviderLocal, cfg.Embedding.Provider)
	assert.Equal(t, 500, cfg.Ingestion.MaxTokens)
	assert.Equal(t, 5*time.Minute, cfg.Ingestion.AttemptTimeout)
	assert.GreaterOrEqual(t, cfg.Ingestion.Workers, 1)
	assert.Equal(t, 5, cfg.Search.DefaultLimit)
	assert.Equal(t, []string{"eng"}, cfg.Extraction.OCRLanguages)

	aiCfg := cfg.AIConfig()
	require.NoError(t, aiCfg.Validate())
	assert.Equal(t, ai.LocalDimension, aiCfg.Dimension)
}

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default().Storage, cfg.Storage)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "snapq.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: sqlite
  path: /var/lib/snapq/chunks.db
ingestion:
  workers: 3
  attempt_timeout: 90s
search:
  default_limit: 8
`), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
		assert.Equal(t, "/var/lib/snapq/chunks.db", cfg.Storage.Path)
		assert.Equal(t, 3, cfg.Ingestion.Workers)
		assert.Equal(t, 90*time.Second, cfg.Ingestion.AttemptTimeout)
		assert.Equal(t, 8, cfg.Search.DefaultLimit)
		assert.Equal(t, 500, cfg.Ingestion.MaxTokens, "unset fields keep defaults")
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "snapq.yaml")
		require.NoError(t, os.WriteFile(path, []byte("storage:\n  path: from-file\n"), 0o600))
		t.Setenv("SNAPQ_DB", "from-env")
		t.Setenv("SNAPQ_WORKERS", "7")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Storage.Path)
		assert.Equal(t, 7, cfg.Ingestion.Workers)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "snapq.yaml")
		require.NoError(t, os.WriteFile(path, []byte("storage: [unclosed"), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "snapq.yaml")
		require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: postgres\n"), 0o600))
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snapq.yaml")
	cfg := Default()
	cfg.Embedding.Provider = ai.ProviderOpenAI
	cfg.Embedding.Model = "text-embedding-3-small"
	cfg.Ingestion.AttemptTimeout = 2 * time.Minute

	require.NoError(t, Save(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "attempt_timeout: 2m0s")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Embedding, loaded.Embedding)
	assert.Equal(t, cfg.Ingestion, loaded.Ingestion)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SNAPQ_STORAGE_DRIVER":      "sqlite",
		"SNAPQ_EMBEDDING_PROVIDER":  "openai",
		"SNAPQ_EMBEDDING_HOST":      "http://embeddings:8080",
		"SNAPQ_EMBEDDING_MODEL":     "nomic-embed-text",
		"SNAPQ_EMBEDDING_TOKEN":     "secret",
		"SNAPQ_EMBEDDING_DIMENSION": "768",
		"SNAPQ_DB":                  "",
	}))
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, DefaultPath, cfg.Storage.Path, "empty values are ignored")
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "http://embeddings:8080", cfg.Embedding.Host)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, "secret", cfg.Embedding.Token)
	assert.Equal(t, 768, cfg.Embedding.Dimension)

	err = Default().ApplyEnv(envMap(map[string]string{"SNAPQ_WORKERS": "many"}))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	unchanged := Default()
	require.NoError(t, unchanged.ApplyEnv(noEnv))
	assert.Equal(t, Default(), unchanged)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"badger without path", func(c *Config) { c.Storage.Path = "" }},
		{"sqlite without path", func(c *Config) { c.Storage.Driver = DriverSQLite; c.Storage.Path = "" }},
		{"sqlite in memory", func(c *Config) { c.Storage.Driver = DriverSQLite; c.Storage.InMemory = true }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"openai unknown model without dimension", func(c *Config) {
			c.Embedding.Provider = ai.ProviderOpenAI
			c.Embedding.Model = "custom-model"
		}},
		{"zero workers", func(c *Config) { c.Ingestion.Workers = 0 }},
		{"negative queue", func(c *Config) { c.Ingestion.QueueSize = -1 }},
		{"zero max tokens", func(c *Config) { c.Ingestion.MaxTokens = 0 }},
		{"zero timeout", func(c *Config) { c.Ingestion.AttemptTimeout = 0 }},
		{"zero embed batch", func(c *Config) { c.Ingestion.EmbedBatchSize = 0 }},
		{"zero embed concurrency", func(c *Config) { c.Ingestion.EmbedConcurrency = 0 }},
		{"zero dpi", func(c *Config) { c.Extraction.OCRDPI = 0 }},
		{"zero search limit", func(c *Config) { c.Search.DefaultLimit = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("badger in memory needs no path", func(t *testing.T) {
		cfg := Default()
		cfg.Storage.Path = ""
		cfg.Storage.InMemory = true
		assert.NoError(t, cfg.Validate())
	})
}
