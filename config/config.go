// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/snapq/ai"
	"github.com/poiesic/snapq/chunking"
	"github.com/poiesic/snapq/ingestion"
	"github.com/poiesic/snapq/storage"
)

// Storage drivers.
const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// DefaultPath is where the store lives when nothing else is configured.
const DefaultPath = "./snapq_db"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the root configuration.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Search     SearchConfig     `yaml:"search"`
}

// StorageConfig selects the chunk store.
type StorageConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"` // badger only
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"`
	Host              string  `yaml:"host"`
	Model             string  `yaml:"model"`
	Dimension         int     `yaml:"dimension"` // 0 infers the size from provider and model
	Token             string  `yaml:"token,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BatchSize         int     `yaml:"batch_size"`
}

// IngestionConfig tunes the ingestion pipeline.
type IngestionConfig struct {
	Workers          int           `yaml:"workers"`
	QueueSize        int           `yaml:"queue_size"`
	MaxTokens        int           `yaml:"max_tokens"`
	TokenModel       string        `yaml:"token_model"` // empty means the characters/4 estimate
	AttemptTimeout   time.Duration `yaml:"attempt_timeout"`
	EmbedBatchSize   int           `yaml:"embed_batch_size"`
	EmbedConcurrency int           `yaml:"embed_concurrency"`
}

// ExtractionConfig configures OCR and PDF rasterisation.
type ExtractionConfig struct {
	OCR            bool     `yaml:"ocr"`
	OCRLanguages   []string `yaml:"ocr_languages"`
	TessdataPrefix string   `yaml:"tessdata_prefix,omitempty"`
	PDFToPPMPath   string   `yaml:"pdftoppm_path"`
	OCRDPI         int      `yaml:"ocr_dpi"`
}

// SearchConfig configures retrieval.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
}

// Default returns the built-in configuration: a badger store under
// ./snapq_db and the in-process embedder.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Storage: StorageConfig{
			Driver: DriverBadger,
			Path:   DefaultPath,
		},
		Embedding: EmbeddingConfig{
			Provider:  aiDefaults.Provider,
			Host:      aiDefaults.EmbeddingHost,
			Model:     aiDefaults.EmbeddingModel,
			BatchSize: aiDefaults.BatchSize,
		},
		Ingestion: IngestionConfig{
			Workers:          max(1, runtime.NumCPU()/2),
			MaxTokens:        chunking.DefaultMaxTokens,
			AttemptTimeout:   ingestion.DefaultAttemptTimeout,
			EmbedBatchSize:   ingestion.DefaultEmbedBatchSize,
			EmbedConcurrency: ingestion.DefaultEmbedConcurrency,
		},
		Extraction: ExtractionConfig{
			OCR:          true,
			OCRLanguages: []string{"eng"},
			PDFToPPMPath: "pdftoppm",
			OCRDPI:       300,
		},
		Search: SearchConfig{
			DefaultLimit: storage.DefaultLimit,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ApplyEnv overrides fields from SNAPQ_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v)
		}
		*dst = n
		return nil
	}

	str("SNAPQ_DB", &c.Storage.Path)
	str("SNAPQ_STORAGE_DRIVER", &c.Storage.Driver)
	str("SNAPQ_EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("SNAPQ_EMBEDDING_HOST", &c.Embedding.Host)
	str("SNAPQ_EMBEDDING_MODEL", &c.Embedding.Model)
	str("SNAPQ_EMBEDDING_TOKEN", &c.Embedding.Token)
	if err := num("SNAPQ_EMBEDDING_DIMENSION", &c.Embedding.Dimension); err != nil {
		return err
	}
	return num("SNAPQ_WORKERS", &c.Ingestion.Workers)
}

// Validate checks the configuration for values no component would accept.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverBadger:
		if c.Storage.Path == "" && !c.Storage.InMemory {
			return fmt.Errorf("%w: storage.path is required", ErrInvalidConfig)
		}
	case DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required", ErrInvalidConfig)
		}
		if c.Storage.InMemory {
			return fmt.Errorf("%w: storage.in_memory is only supported by badger", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}

	if err := c.AIConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	in := c.Ingestion
	switch {
	case in.Workers < 1:
		return fmt.Errorf("%w: ingestion.workers must be at least 1", ErrInvalidConfig)
	case in.QueueSize < 0:
		return fmt.Errorf("%w: ingestion.queue_size cannot be negative", ErrInvalidConfig)
	case in.MaxTokens < 1:
		return fmt.Errorf("%w: ingestion.max_tokens must be at least 1", ErrInvalidConfig)
	case in.AttemptTimeout <= 0:
		return fmt.Errorf("%w: ingestion.attempt_timeout must be positive", ErrInvalidConfig)
	case in.EmbedBatchSize < 1:
		return fmt.Errorf("%w: ingestion.embed_batch_size must be at least 1", ErrInvalidConfig)
	case in.EmbedConcurrency < 1:
		return fmt.Errorf("%w: ingestion.embed_concurrency must be at least 1", ErrInvalidConfig)
	}

	if c.Extraction.OCRDPI <= 0 {
		return fmt.Errorf("%w: extraction.ocr_dpi must be positive", ErrInvalidConfig)
	}
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("%w: search.default_limit must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// AIConfig converts the embedding section to an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	e := c.Embedding
	return ai.NewConfig(
		ai.WithProvider(e.Provider),
		ai.WithEmbeddingHost(e.Host),
		ai.WithEmbeddingModel(e.Model),
		ai.WithDimension(e.Dimension),
		ai.WithToken(e.Token),
		ai.WithRequestsPerSecond(e.RequestsPerSecond),
		ai.WithBatchSize(e.BatchSize),
	)
}
