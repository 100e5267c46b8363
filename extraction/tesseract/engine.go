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

//go:build !notesseract

package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/poiesic/snapq/extraction"
)

// Engine runs Tesseract OCR. A fresh client is created per call because
// gosseract clients are not safe for concurrent use.
type Engine struct {
	languages      []string
	tessdataPrefix string
}

var _ extraction.OCR = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithLanguages sets the recognition languages, e.g. "eng", "deu".
func WithLanguages(langs ...string) Option {
	return func(e *Engine) {
		if len(langs) > 0 {
			e.languages = langs
		}
	}
}

// WithTessdataPrefix points Tesseract at a custom tessdata directory.
func WithTessdataPrefix(prefix string) Option {
	return func(e *Engine) {
		e.tessdataPrefix = prefix
	}
}

// New creates an Engine that recognises English unless configured otherwise.
func New(opts ...Option) *Engine {
	e := &Engine{languages: []string{"eng"}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract recognises the text in image. Cancellation is only checked
// before recognition starts; Tesseract itself cannot be interrupted.
func (e *Engine) Extract(ctx context.Context, name string, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if e.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.tessdataPrefix); err != nil {
			return "", fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(e.languages...); err != nil {
		return "", fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to load image %s: %w", name, err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr failed for %s: %w", name, err)
	}
	return text, nil
}
