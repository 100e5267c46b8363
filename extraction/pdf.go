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
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFText reads the embedded text layer of a PDF page by page.
// Scanned PDFs usually have no text layer and yield an empty string.
type PDFText struct{}

func (*PDFText) Name() string { return "pdf-text" }

func (*PDFText) Extract(ctx context.Context, location string) (text string, err error) {
	// The parser panics on some malformed streams and unsupported filters.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: %v", ErrPDFUnreadable, r)
		}
	}()

	f, r, err := pdf.Open(location)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPDFUnreadable, err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %w", ErrPDFUnreadable, i, err)
		}
		if strings.TrimSpace(content) != "" {
			pages = append(pages, content)
		}
	}
	return strings.Join(pages, "\n"), nil
}

// PDFOCR renders every page of a PDF to PNG with pdftoppm and runs OCR over
// the images in page order.
type PDFOCR struct {
	OCR    OCR
	Runner CommandRunner
	Binary string
	DPI    int
}

func (*PDFOCR) Name() string { return "pdf-ocr" }

func (s *PDFOCR) Extract(ctx context.Context, location string) (string, error) {
	if s.OCR == nil {
		return "", ErrOCRUnavailable
	}

	dir, err := os.MkdirTemp("", "snapq-ocr-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	out, err := s.Runner.Run(ctx, s.Binary, "-r", strconv.Itoa(s.DPI), "-png", location, filepath.Join(dir, "page"))
	if err != nil {
		return "", fmt.Errorf("%w: %w: %s", ErrRasterizeFailed, err, strings.TrimSpace(string(out)))
	}

	images, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRasterizeFailed, err)
	}
	// pdftoppm zero-pads page numbers to a common width, so lexical order is page order.
	slices.Sort(images)

	var pages []string
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		data, err := os.ReadFile(img)
		if err != nil {
			return "", fmt.Errorf("failed to read rendered page: %w", err)
		}
		text, err := s.OCR.Extract(ctx, img, data)
		if err != nil {
			return "", fmt.Errorf("ocr %s: %w", filepath.Base(img), err)
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}
