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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/snapq/ai"
	"github.com/poiesic/snapq/core"
	"github.com/poiesic/snapq/storage"
)

const (
	// DefaultAttemptTimeout bounds one ingestion attempt end to end.
	DefaultAttemptTimeout = 5 * time.Minute

	// DefaultEmbedBatchSize is the number of chunks sent per embedding call.
	DefaultEmbedBatchSize = 32

	// DefaultEmbedConcurrency is the number of embedding calls in flight per attempt.
	DefaultEmbedConcurrency = 2

	// failureRecordTimeout bounds the write that records a failed attempt.
	failureRecordTimeout = 10 * time.Second
)

// Pipeline orchestrates ingestion attempts for documents.
// It runs attempts for distinct documents concurrently on a worker pool.
type Pipeline struct {
	store     storage.Store
	extractor TextExtractor
	splitter  Splitter
	embedder  ai.Embedder
	embedding *embeddingStage
	pool      *ants.Pool
	pending   sync.WaitGroup

	poolSize         int
	queueSize        int
	attemptTimeout   time.Duration
	embedBatchSize   int
	embedConcurrency int
	monitor          Monitor
	logger           *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of concurrent ingestion workers.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.poolSize = size
		return nil
	}
}

// WithQueueSize bounds how many submissions may wait for a free worker.
// Beyond that Submit fails with ErrQueueFull. Zero means unbounded.
func WithQueueSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 0 {
			return fmt.Errorf("queue size must not be negative: %d", size)
		}
		p.queueSize = size
		return nil
	}
}

// WithAttemptTimeout bounds each attempt's extraction, embedding and commit.
func WithAttemptTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("attempt timeout must be positive: %s", d)
		}
		p.attemptTimeout = d
		return nil
	}
}

// WithEmbedBatchSize sets the number of chunks sent per embedding call.
func WithEmbedBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("embed batch size must be at least 1: %d", n)
		}
		p.embedBatchSize = n
		return nil
	}
}

// WithEmbedConcurrency sets how many embedding calls one attempt may have
// in flight.
func WithEmbedConcurrency(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		p.embedConcurrency = n
		return nil
	}
}

// WithMonitor installs attempt callbacks.
func WithMonitor(m Monitor) Option {
	return func(p *Pipeline) error {
		if m == nil {
			m = &noopMonitor{}
		}
		p.monitor = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// antsLogger routes worker pool messages to slog.
type antsLogger struct {
	logger *slog.Logger
}

func (l *antsLogger) Printf(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	store storage.Store,
	extractor TextExtractor,
	splitter Splitter,
	embedder ai.Embedder,
	opts ...Option,
) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if splitter == nil {
		return nil, ErrChunkerRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	p := &Pipeline{
		store:            store,
		extractor:        extractor,
		splitter:         splitter,
		embedder:         embedder,
		poolSize:         max(1, runtime.NumCPU()/2),
		attemptTimeout:   DefaultAttemptTimeout,
		embedBatchSize:   DefaultEmbedBatchSize,
		embedConcurrency: DefaultEmbedConcurrency,
		monitor:          &noopMonitor{},
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	poolOpts := []ants.Option{
		ants.WithLogger(&antsLogger{logger: p.logger}),
		ants.WithPanicHandler(func(v any) {
			p.logger.Error("ingestion worker panicked", "panic", v)
		}),
	}
	if p.queueSize > 0 {
		poolOpts = append(poolOpts, ants.WithMaxBlockingTasks(p.queueSize))
	}
	pool, err := ants.NewPool(p.poolSize, poolOpts...)
	if err != nil {
		return nil, err
	}
	p.pool = pool

	p.embedding = &embeddingStage{
		embedder:    embedder,
		batchSize:   p.embedBatchSize,
		concurrency: p.embedConcurrency,
		logger:      p.logger,
	}
	return p, nil
}

// Register records an upload as a queued document without starting it.
// Re-registering a completed or failed document refreshes its file details
// and leaves it ready for a retry. Returns core.ErrDuplicateSource while an
// attempt for the pair is queued or running.
func (p *Pipeline) Register(ctx context.Context, req Request) (*core.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return p.store.Create(ctx, req.document())
}

// Submit registers the request and queues an ingestion attempt.
func (p *Pipeline) Submit(ctx context.Context, req Request) (Job, error) {
	doc, err := p.Register(ctx, req)
	if err != nil {
		return Job{}, err
	}
	return p.enqueue(ctx, doc)
}

// Ingest registers the request and runs one attempt on the calling
// goroutine. A failed attempt returns the failed document together with
// the error that was recorded on it.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*core.Document, error) {
	doc, err := p.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.attempt(ctx, newJob(doc))
}

// Retry queues a new attempt for a completed or failed document using its
// stored filename and location.
func (p *Pipeline) Retry(ctx context.Context, tenantID, sourceID string) (Job, error) {
	doc, err := p.store.Get(ctx, tenantID, sourceID)
	if err != nil {
		return Job{}, err
	}
	if !doc.Status.Terminal() {
		return Job{}, fmt.Errorf("%w: %s/%s is %s", core.ErrInvalidTransition, tenantID, sourceID, doc.Status)
	}
	return p.enqueue(ctx, doc)
}

// Wait blocks until every submitted job has finished.
func (p *Pipeline) Wait() {
	p.pending.Wait()
}

// Release releases resources including worker pools.
// Call Wait first to let queued jobs finish; the pipeline should not be
// used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

func (p *Pipeline) enqueue(ctx context.Context, doc *core.Document) (Job, error) {
	job := newJob(doc)
	p.pending.Add(1)
	err := p.pool.Submit(func() {
		defer p.pending.Done()
		p.run(job)
	})
	if err != nil {
		p.pending.Done()
		switch {
		case errors.Is(err, ants.ErrPoolOverload):
			err = ErrQueueFull
		case errors.Is(err, ants.ErrPoolClosed):
			err = ErrPipelineClosed
		}
		// A queued document that never reaches a worker would stay queued
		// until Recover; fail it so the caller can retry.
		if doc.Status == core.StatusQueued {
			p.fail(ctx, job, err)
		}
		return Job{}, err
	}
	p.logger.Debug("ingestion job queued", "tenant", job.TenantID, "source", job.SourceID, "job", job.ID.String())
	return job, nil
}

// run executes a queued job on a worker. Failures are recorded on the
// document by attempt; nothing escapes to the pool.
func (p *Pipeline) run(job Job) {
	ctx := context.Background()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("ingestion attempt panicked", "tenant", job.TenantID, "source", job.SourceID,
				"job", job.ID.String(), "panic", r)
			p.fail(ctx, job, fmt.Errorf("panic: %v", r))
		}
	}()
	_, _ = p.attempt(ctx, job)
}

// attempt claims the document and runs extract, chunk, embed and commit.
func (p *Pipeline) attempt(ctx context.Context, job Job) (*core.Document, error) {
	start := time.Now()
	logger := p.logger.With("tenant", job.TenantID, "source", job.SourceID, "job", job.ID.String())
	p.monitor.AttemptStarted(job)

	if doc, err := p.rejectUnsupported(ctx, job); err != nil {
		logger.Error("ingestion attempt failed", "err", err)
		p.monitor.AttemptFinished(job, doc, err, time.Since(start))
		return doc, err
	}

	// The processing transition is the only guard against two attempts on
	// one document. A rejected claim belongs to the attempt that holds it,
	// so nothing is recorded here.
	doc, err := p.store.Transition(ctx, job.TenantID, job.SourceID, core.StatusProcessing, "")
	if err != nil {
		logger.Warn("ingestion attempt rejected", "err", err)
		p.monitor.AttemptFinished(job, nil, err, time.Since(start))
		return nil, err
	}
	logger.Info("ingestion attempt started", "file", doc.Filename, "attempt", doc.Attempts)

	attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
	defer cancel()

	done, err := p.process(attemptCtx, job, doc)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %w", ErrAttemptTimeout, p.attemptTimeout, err)
		}
		logger.Error("ingestion attempt failed", "err", err)
		failed := p.fail(ctx, job, err)
		p.monitor.AttemptFinished(job, failed, err, time.Since(start))
		return failed, err
	}

	logger.Info("ingestion attempt completed", "chunks", done.ChunkCount, "elapsed", time.Since(start))
	p.monitor.AttemptFinished(job, done, nil, time.Since(start))
	return done, nil
}

func (p *Pipeline) process(ctx context.Context, job Job, doc *core.Document) (*core.Document, error) {
	text, err := bounded(ctx, func(ctx context.Context) (string, error) {
		return p.extractor.Extract(ctx, doc.Location, doc.Filename)
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, core.ErrNoTextExtracted
	}
	p.monitor.TextExtracted(job, len(text))

	pieces := p.splitter.Chunk(text)
	if len(pieces) == 0 {
		return nil, core.ErrNoTextExtracted
	}
	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}

	vectors, err := bounded(ctx, func(ctx context.Context) ([][]float32, error) {
		return p.embedding.embed(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	p.monitor.ChunksEmbedded(job, len(vectors))

	chunks := make([]*core.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &core.Chunk{
			Seq:           piece.Seq,
			Text:          piece.Text,
			TokenEstimate: piece.TokenEstimate,
			Vector:        vectors[i],
		}
	}
	return p.store.CommitChunks(ctx, doc.TenantID, doc.SourceID, doc.Attempts, p.embedder.Space(), chunks)
}

// bounded runs fn on its own goroutine and returns when fn does or when
// ctx is done, whichever comes first. Extractors and embedders that block
// without watching ctx (cgo OCR, a stuck pdf page) cannot hold the worker
// past the attempt deadline. A result arriving after ctx is done is
// dropped; its attempt has already been recorded as failed.
func bounded[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// rejectUnsupported fails a queued document whose file type has no
// extraction strategy without entering processing. A nil error means the
// normal attempt should run.
func (p *Pipeline) rejectUnsupported(ctx context.Context, job Job) (*core.Document, error) {
	checker, ok := p.extractor.(typeChecker)
	if !ok || checker.Supports(job.Filename) {
		return nil, nil
	}
	doc, err := p.store.Get(ctx, job.TenantID, job.SourceID)
	if err != nil || doc.Status != core.StatusQueued {
		return nil, nil
	}
	cause := fmt.Errorf("%w: %q", core.ErrUnsupportedFileType, filepath.Ext(job.Filename))
	return p.fail(ctx, job, cause), cause
}

// fail records cause on the document. It uses its own deadline so that an
// attempt cancelled by its caller is still recorded.
func (p *Pipeline) fail(ctx context.Context, job Job, cause error) *core.Document {
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureRecordTimeout)
	defer cancel()

	doc, err := p.store.Transition(recordCtx, job.TenantID, job.SourceID, core.StatusFailed, cause.Error())
	if err != nil {
		p.logger.Error("failed to record ingestion failure", "tenant", job.TenantID, "source", job.SourceID,
			"job", job.ID.String(), "cause", cause, "err", err)
		return nil
	}
	return doc
}
