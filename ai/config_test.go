package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, ProviderLocal, cfg.Provider)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "embeddinggemma", cfg.EmbeddingModel)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.Zero(t, cfg.Dimension)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with options", func(t *testing.T) {
		cfg := NewConfig(
			WithProvider(ProviderOpenAI),
			WithEmbeddingHost("http://embed:8080/v1"),
			WithEmbeddingModel("text-embedding-3-small"),
			WithDimension(512),
			WithToken("secret"),
			WithRequestsPerSecond(2.5),
			WithBatchSize(16),
		)

		assert.Equal(t, ProviderOpenAI, cfg.Provider)
		assert.Equal(t, "http://embed:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
		assert.Equal(t, 512, cfg.Dimension)
		assert.Equal(t, "secret", cfg.Token)
		assert.Equal(t, 2.5, cfg.RequestsPerSecond)
		assert.Equal(t, 16, cfg.BatchSize)
	})
}

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{"adds v1", "http://localhost:11434", "http://localhost:11434/v1"},
		{"strips trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"keeps v1", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"empty stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host}
			cfg.Normalize()
			assert.Equal(t, tt.expected, cfg.EmbeddingHost)
		})
	}

	t.Run("infers dimension", func(t *testing.T) {
		local := NewConfig()
		local.Normalize()
		assert.Equal(t, LocalDimension, local.Dimension)

		remote := NewConfig(WithProvider("OpenAI"), WithEmbeddingModel("nomic-embed-text"))
		remote.Normalize()
		assert.Equal(t, ProviderOpenAI, remote.Provider)
		assert.Equal(t, 768, remote.Dimension)

		explicit := NewConfig(WithDimension(99))
		explicit.Normalize()
		assert.Equal(t, 99, explicit.Dimension)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("default config is valid", func(t *testing.T) {
		require.NoError(t, NewConfig().Validate())
	})

	t.Run("openai with known model", func(t *testing.T) {
		cfg := NewConfig(WithProvider(ProviderOpenAI))
		require.NoError(t, cfg.Validate())
		assert.Equal(t, 768, cfg.Dimension)
	})

	t.Run("invalid configs", func(t *testing.T) {
		tests := []struct {
			name string
			cfg  *Config
		}{
			{"unknown provider", NewConfig(WithProvider("magic"))},
			{"openai without host", NewConfig(WithProvider(ProviderOpenAI), WithEmbeddingHost(""))},
			{"openai without model", NewConfig(WithProvider(ProviderOpenAI), WithEmbeddingModel(""))},
			{"openai unknown model without dimension", NewConfig(WithProvider(ProviderOpenAI), WithEmbeddingModel("custom"))},
			{"negative rate", NewConfig(WithRequestsPerSecond(-1))},
			{"negative batch", NewConfig(WithBatchSize(-1))},
			{"negative dimension", NewConfig(WithDimension(-5))},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Error(t, tt.cfg.Validate())
			})
		}
	})
}
