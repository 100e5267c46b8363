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

package chunking

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultMaxTokens is the default token budget per chunk.
const DefaultMaxTokens = 500

const sentenceSeparator = ". "

// ErrInvalidMaxTokens indicates a non-positive token budget.
var ErrInvalidMaxTokens = errors.New("max tokens must be at least 1")

// Chunk is one segment of text produced by the Chunker.
type Chunk struct {
	Seq           int
	Text          string
	TokenEstimate int
}

// Chunker packs sentences into chunks of bounded token estimate.
// It holds no mutable state and is safe for concurrent use.
type Chunker struct {
	maxTokens int
	estimator Estimator
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithMaxTokens sets the token budget per chunk.
func WithMaxTokens(n int) Option {
	return func(c *Chunker) error {
		if n < 1 {
			return fmt.Errorf("%w: %d", ErrInvalidMaxTokens, n)
		}
		c.maxTokens = n
		return nil
	}
}

// WithEstimator replaces the default character-based token estimator.
func WithEstimator(e Estimator) Option {
	return func(c *Chunker) error {
		if e != nil {
			c.estimator = e
		}
		return nil
	}
}

// New creates a Chunker. Defaults to DefaultMaxTokens and CharEstimator.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		maxTokens: DefaultMaxTokens,
		estimator: CharEstimator{},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MaxTokens returns the configured token budget.
func (c *Chunker) MaxTokens() int {
	return c.maxTokens
}

// Chunk splits text into chunks numbered 0..n-1.
//
// Sentences are accumulated until adding the next one would push the running
// estimate over the budget; the accumulated segment is then flushed with a
// trailing period restored. The final segment is flushed as-is, so its text
// ends exactly as the input did. Any non-empty input, whitespace included,
// yields at least one chunk; only "" yields none.
func (c *Chunker) Chunk(text string) []Chunk {
	if text == "" {
		return nil
	}

	var (
		chunks  []Chunk
		segment []string
		running int
	)
	for _, sentence := range strings.Split(text, sentenceSeparator) {
		tokens := c.estimator.Estimate(sentence)
		if running+tokens > c.maxTokens && len(segment) > 0 {
			chunks = append(chunks, Chunk{
				Seq:           len(chunks),
				Text:          strings.Join(segment, sentenceSeparator) + ".",
				TokenEstimate: running,
			})
			segment = segment[:0]
			running = 0
		}
		segment = append(segment, sentence)
		running += tokens
	}

	if len(segment) > 0 {
		chunks = append(chunks, Chunk{
			Seq:           len(chunks),
			Text:          strings.Join(segment, sentenceSeparator),
			TokenEstimate: running,
		})
	}
	return chunks
}
