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
	"strings"
)

// PlainText reads a file as UTF-8. Invalid byte sequences are replaced
// with U+FFFD rather than failing the document.
type PlainText struct{}

func (*PlainText) Name() string { return "plain-text" }

func (*PlainText) Extract(_ context.Context, location string) (string, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}

// ImageOCR runs OCR over an image file.
type ImageOCR struct {
	OCR OCR
}

func (*ImageOCR) Name() string { return "image-ocr" }

func (s *ImageOCR) Extract(ctx context.Context, location string) (string, error) {
	if s.OCR == nil {
		return "", ErrOCRUnavailable
	}
	data, err := os.ReadFile(location)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	return s.OCR.Extract(ctx, location, data)
}
