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

package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/poiesic/snapq/core"
)

// Strategy extracts text from a file at location.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, location string) (string, error)
}

var imageExtensions = []string{"png", "jpg", "jpeg", "tiff", "bmp"}

// Extractor dispatches files to extraction strategies by extension.
// It is safe for concurrent use once constructed.
type Extractor struct {
	strategies map[string][]Strategy
	ocr        OCR
	runner     CommandRunner
	pdftoppm   string
	dpi        int
	logger     *slog.Logger
	overrides  map[string][]Strategy
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithOCR sets the OCR engine used for images and scanned PDFs.
func WithOCR(ocr OCR) Option {
	return func(e *Extractor) error {
		e.ocr = ocr
		return nil
	}
}

// WithCommandRunner replaces the runner used to invoke pdftoppm.
func WithCommandRunner(r CommandRunner) Option {
	return func(e *Extractor) error {
		if r == nil {
			return errors.New("command runner cannot be nil")
		}
		e.runner = r
		return nil
	}
}

// WithPDFToPPM sets the path of the pdftoppm binary.
func WithPDFToPPM(path string) Option {
	return func(e *Extractor) error {
		if path != "" {
			e.pdftoppm = path
		}
		return nil
	}
}

// WithDPI sets the rasterisation resolution for scanned PDFs.
func WithDPI(dpi int) Option {
	return func(e *Extractor) error {
		if dpi <= 0 {
			return fmt.Errorf("dpi must be positive, got %d", dpi)
		}
		e.dpi = dpi
		return nil
	}
}

// WithStrategies replaces the strategy chain for an extension.
func WithStrategies(ext string, strategies ...Strategy) Option {
	return func(e *Extractor) error {
		e.overrides[normalizeExt(ext)] = strategies
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		if logger != nil {
			e.logger = logger
		}
		return nil
	}
}

// New creates an Extractor with the default strategy table.
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{
		runner:    ExecRunner{},
		pdftoppm:  "pdftoppm",
		dpi:       300,
		logger:    slog.Default(),
		overrides: make(map[string][]Strategy),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "extraction")

	imageOCR := &ImageOCR{OCR: e.ocr}
	e.strategies = map[string][]Strategy{
		"pdf": {
			&PDFText{},
			&PDFOCR{OCR: e.ocr, Runner: e.runner, Binary: e.pdftoppm, DPI: e.dpi},
		},
		"txt": {&PlainText{}},
		"md":  {&PlainText{}},
	}
	for _, ext := range imageExtensions {
		e.strategies[ext] = []Strategy{imageOCR}
	}
	for ext, s := range e.overrides {
		e.strategies[ext] = s
	}
	return e, nil
}

// Supports reports whether filename has an extension with strategies.
func (e *Extractor) Supports(filename string) bool {
	return len(e.strategies[extOf(filename)]) > 0
}

// Extensions returns the supported extensions in sorted order.
func (e *Extractor) Extensions() []string {
	exts := make([]string, 0, len(e.strategies))
	for ext, s := range e.strategies {
		if len(s) > 0 {
			exts = append(exts, ext)
		}
	}
	slices.Sort(exts)
	return exts
}

// Extract returns the text of the file at location. The type is taken from
// filename, which need not share a name with location.
func (e *Extractor) Extract(ctx context.Context, location, filename string) (string, error) {
	ext := extOf(filename)
	chain := e.strategies[ext]
	if len(chain) == 0 {
		return "", fmt.Errorf("%w: %q", core.ErrUnsupportedFileType, filepath.Ext(filename))
	}

	var errs []error
	for _, s := range chain {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := s.Extract(ctx, location)
		if err != nil {
			// A cancelled context ends the chain; later strategies would fail the same way.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", fmt.Errorf("%s: %w", s.Name(), ctxErr)
			}
			e.logger.Debug("extraction strategy failed", "strategy", s.Name(), "file", filename, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
		e.logger.Debug("extraction strategy returned no text", "strategy", s.Name(), "file", filename)
	}

	if len(errs) > 0 {
		return "", fmt.Errorf("%w: %w", core.ErrNoTextExtracted, errors.Join(errs...))
	}
	return "", core.ErrNoTextExtracted
}

func extOf(filename string) string {
	return normalizeExt(filepath.Ext(filename))
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
