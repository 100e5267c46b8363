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

package main

import (
	"github.com/poiesic/snapq/config"
	"github.com/poiesic/snapq/extraction"
	"github.com/poiesic/snapq/extraction/tesseract"
)

func newOCR(cfg config.ExtractionConfig) extraction.OCR {
	if !cfg.OCR {
		return nil
	}
	return tesseract.New(
		tesseract.WithLanguages(cfg.OCRLanguages...),
		tesseract.WithTessdataPrefix(cfg.TessdataPrefix),
	)
}
