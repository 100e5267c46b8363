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

package snapq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/snapq/ai"
	"github.com/poiesic/snapq/ai/local"
	"github.com/poiesic/snapq/ai/openai"
	"github.com/poiesic/snapq/chunking"
	"github.com/poiesic/snapq/config"
	"github.com/poiesic/snapq/core"
	"github.com/poiesic/snapq/extraction"
	"github.com/poiesic/snapq/ingestion"
	"github.com/poiesic/snapq/reembed"
	"github.com/poiesic/snapq/search"
	"github.com/poiesic/snapq/storage"
	"github.com/poiesic/snapq/storage/badger"
	"github.com/poiesic/snapq/storage/sqlite"
)

// KnowledgeBase owns the store and embedding provider shared by ingestion,
// search and re-embedding.
type KnowledgeBase struct {
	config    *config.Config
	store     storage.Store
	provider  ai.Provider
	extractor *extraction.Extractor
	chunker   *chunking.Chunker
	logger    *slog.Logger
}

// Option configures a KnowledgeBase.
type Option func(*options)

type options struct {
	provider ai.Provider
	ocr      extraction.OCR
	runner   extraction.CommandRunner
	logger   *slog.Logger
}

// WithProvider supplies the embedding provider instead of building one
// from the configuration. The knowledge base closes it on Close.
func WithProvider(p ai.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithOCR sets the OCR engine for images and scanned PDFs. It is ignored
// when extraction.ocr is disabled.
func WithOCR(ocr extraction.OCR) Option {
	return func(o *options) {
		o.ocr = ocr
	}
}

// WithCommandRunner replaces the runner used for pdftoppm.
func WithCommandRunner(r extraction.CommandRunner) Option {
	return func(o *options) {
		o.runner = r
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open builds a knowledge base from cfg. A nil cfg means config.Default().
func Open(cfg *config.Config, opts ...Option) (*KnowledgeBase, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	extractorOpts := []extraction.Option{
		extraction.WithPDFToPPM(cfg.Extraction.PDFToPPMPath),
		extraction.WithDPI(cfg.Extraction.OCRDPI),
		extraction.WithLogger(o.logger),
	}
	if cfg.Extraction.OCR && o.ocr != nil {
		extractorOpts = append(extractorOpts, extraction.WithOCR(o.ocr))
	}
	if o.runner != nil {
		extractorOpts = append(extractorOpts, extraction.WithCommandRunner(o.runner))
	}
	extractor, err := extraction.New(extractorOpts...)
	if err != nil {
		return nil, err
	}

	chunkerOpts := []chunking.Option{chunking.WithMaxTokens(cfg.Ingestion.MaxTokens)}
	if cfg.Ingestion.TokenModel != "" {
		chunkerOpts = append(chunkerOpts, chunking.WithEstimator(chunking.ModelEstimator{Model: cfg.Ingestion.TokenModel}))
	}
	chunker, err := chunking.New(chunkerOpts...)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(cfg.Storage, o.logger)
	if err != nil {
		return nil, err
	}

	provider := o.provider
	if provider == nil {
		provider, err = NewProvider(cfg.AIConfig())
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	return &KnowledgeBase{
		config:    cfg,
		store:     store,
		provider:  provider,
		extractor: extractor,
		chunker:   chunker,
		logger:    o.logger,
	}, nil
}

// OpenStore opens the store selected by cfg.Driver.
func OpenStore(cfg config.StorageConfig, logger *slog.Logger) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)
	switch cfg.Driver {
	case config.DriverBadger:
		var s *badger.Store
		if cfg.InMemory {
			s, err = badger.OpenMemory(logger)
		} else {
			s, err = badger.Open(cfg.Path, logger)
		}
		store = s
	case config.DriverSQLite:
		var s *sqlite.Store
		s, err = sqlite.Open(cfg.Path, sqlite.WithLogger(logger))
		store = s
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", config.ErrInvalidConfig, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Driver, err)
	}
	return store, nil
}

// NewProvider creates the embedding provider named by cfg.Provider.
func NewProvider(cfg *ai.Config) (ai.Provider, error) {
	cfg.Normalize()
	switch cfg.Provider {
	case ai.ProviderLocal:
		return local.NewProvider(cfg)
	case ai.ProviderOpenAI:
		return openai.NewProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// Close releases the provider and the store.
func (kb *KnowledgeBase) Close() error {
	var errs []error
	if err := kb.provider.Close(); err != nil {
		kb.logger.Error("error closing embedding provider", "err", err)
		errs = append(errs, err)
	}
	if err := kb.store.Close(); err != nil {
		kb.logger.Error("error closing store", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (kb *KnowledgeBase) Config() *config.Config {
	return kb.config
}

func (kb *KnowledgeBase) Store() storage.Store {
	return kb.store
}

func (kb *KnowledgeBase) Embedder() ai.Embedder {
	return kb.provider.Embedder()
}

func (kb *KnowledgeBase) Extractor() *extraction.Extractor {
	return kb.extractor
}

func (kb *KnowledgeBase) Chunker() *chunking.Chunker {
	return kb.chunker
}

// NewPipeline creates an ingestion pipeline sized by the configuration.
// Options in opts are applied after the configured ones.
func (kb *KnowledgeBase) NewPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	in := kb.config.Ingestion
	base := []ingestion.Option{
		ingestion.WithPoolSize(in.Workers),
		ingestion.WithQueueSize(in.QueueSize),
		ingestion.WithAttemptTimeout(in.AttemptTimeout),
		ingestion.WithEmbedBatchSize(in.EmbedBatchSize),
		ingestion.WithEmbedConcurrency(in.EmbedConcurrency),
		ingestion.WithLogger(kb.logger),
	}
	return ingestion.NewPipeline(kb.store, kb.extractor, kb.chunker, kb.Embedder(), append(base, opts...)...)
}

// NewSearcher creates a searcher over the knowledge base.
func (kb *KnowledgeBase) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	base := []search.Option{
		search.WithDefaultLimit(kb.config.Search.DefaultLimit),
		search.WithLogger(kb.logger),
	}
	return search.NewSearcher(kb.store, kb.Embedder(), append(base, opts...)...)
}

// NewReembedder creates a reembedder that moves the store to the
// configured embedding model.
func (kb *KnowledgeBase) NewReembedder(cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(kb.store, kb.Embedder(), cfg, progress)
}

// Status returns the lifecycle record of a document.
func (kb *KnowledgeBase) Status(ctx context.Context, tenantID, sourceID string) (*core.Document, error) {
	return kb.store.Get(ctx, tenantID, sourceID)
}

// Documents lists a tenant's documents, optionally filtered by status.
func (kb *KnowledgeBase) Documents(ctx context.Context, tenantID string, status core.DocumentStatus) ([]*core.Document, error) {
	return kb.store.List(ctx, tenantID, status)
}
