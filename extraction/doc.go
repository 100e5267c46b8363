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

// Package extraction converts stored files into plain text.
//
// An Extractor maps a file extension to an ordered list of strategies. The
// strategies are tried in order until one yields non-blank text:
//
//	pdf                     PDFText, then PDFOCR
//	txt, md                 PlainText
//	png, jpg, jpeg, tiff, bmp  ImageOCR
//
// Extensions without strategies fail with core.ErrUnsupportedFileType. When
// every strategy comes back empty the result is core.ErrNoTextExtracted,
// joined with whatever errors the strategies reported.
//
// OCR is pluggable through the OCR interface; see the tesseract subpackage
// for the gosseract-backed engine. Scanned PDFs are rasterised with
// poppler's pdftoppm through a CommandRunner so the external tool can be
// replaced in tests.
package extraction
