package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/snapq/core"
)

// fakeOCR returns the image bytes as the recognised text.
type fakeOCR struct {
	calls atomic.Int32
	err   error
}

func (f *fakeOCR) Extract(_ context.Context, _ string, image []byte) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return string(image), nil
}

// pageRunner imitates pdftoppm by writing one PNG per entry in pages.
type pageRunner struct {
	pages []string
	err   error
	args  []string
}

func (r *pageRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.args = append([]string{name}, args...)
	if r.err != nil {
		return []byte("boom"), r.err
	}
	prefix := args[len(args)-1]
	for i, p := range r.pages {
		if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, i+1), []byte(p), 0o644); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

type staticStrategy struct {
	name string
	text string
	err  error
}

func (s staticStrategy) Name() string { return s.name }
func (s staticStrategy) Extract(context.Context, string) (string, error) {
	return s.text, s.err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newExtractor(t *testing.T, opts ...Option) *Extractor {
	t.Helper()
	e, err := New(opts...)
	require.NoError(t, err)
	return e
}

func TestExtractor_Extract_PlainText(t *testing.T) {
	e := newExtractor(t)
	ctx := context.Background()

	for _, name := range []string{"notes.txt", "README.md", "SHOUTING.TXT"} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, "upload.bin", []byte("Replace the filter by sliding it out."))
			text, err := e.Extract(ctx, path, name)
			require.NoError(t, err)
			assert.Equal(t, "Replace the filter by sliding it out.", text)
		})
	}

	t.Run("invalid utf-8 is replaced", func(t *testing.T) {
		path := writeFile(t, "bad.txt", []byte("ok \xff done"))
		text, err := e.Extract(ctx, path, "bad.txt")
		require.NoError(t, err)
		assert.Equal(t, "ok � done", text)
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeFile(t, "empty.txt", nil)
		_, err := e.Extract(ctx, path, "empty.txt")
		assert.ErrorIs(t, err, core.ErrNoTextExtracted)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := e.Extract(ctx, filepath.Join(t.TempDir(), "nope.txt"), "nope.txt")
		assert.ErrorIs(t, err, core.ErrNoTextExtracted)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestExtractor_Extract_UnsupportedFileType(t *testing.T) {
	e := newExtractor(t)
	for _, name := range []string{"doc.xyz", "archive.tar.gz", "noextension"} {
		_, err := e.Extract(context.Background(), "/does/not/matter", name)
		assert.ErrorIs(t, err, core.ErrUnsupportedFileType, name)
		assert.False(t, e.Supports(name))
	}
}

func TestExtractor_Extract_Image(t *testing.T) {
	ctx := context.Background()

	t.Run("ocr text", func(t *testing.T) {
		ocr := &fakeOCR{}
		e := newExtractor(t, WithOCR(ocr))
		for _, name := range []string{"a.png", "a.jpg", "a.JPEG", "a.tiff", "a.bmp"} {
			path := writeFile(t, name, []byte("scanned words"))
			text, err := e.Extract(ctx, path, name)
			require.NoError(t, err, name)
			assert.Equal(t, "scanned words", text)
		}
		assert.Equal(t, int32(5), ocr.calls.Load())
	})

	t.Run("ocr finds nothing", func(t *testing.T) {
		e := newExtractor(t, WithOCR(&fakeOCR{}))
		path := writeFile(t, "blank.png", []byte("   "))
		_, err := e.Extract(ctx, path, "blank.png")
		assert.ErrorIs(t, err, core.ErrNoTextExtracted)
	})

	t.Run("no ocr engine", func(t *testing.T) {
		e := newExtractor(t)
		path := writeFile(t, "a.png", []byte("x"))
		_, err := e.Extract(ctx, path, "a.png")
		assert.ErrorIs(t, err, core.ErrNoTextExtracted)
		assert.ErrorIs(t, err, ErrOCRUnavailable)
	})
}

func TestExtractor_Extract_PDFTextLayer(t *testing.T) {
	ocr := &fakeOCR{}
	runner := &pageRunner{}
	e := newExtractor(t, WithOCR(ocr), WithCommandRunner(runner))

	path := writeFile(t, "manual.pdf", buildPDF("Replace the filter by sliding it out", "Close the cover"))
	text, err := e.Extract(context.Background(), path, "manual.pdf")
	require.NoError(t, err)

	assert.Contains(t, text, "Replace the filter by sliding it out")
	assert.Contains(t, text, "Close the cover")
	assert.Less(t, strings.Index(text, "Replace"), strings.Index(text, "Close"))
	assert.Zero(t, ocr.calls.Load(), "ocr must not run when the text layer has content")
	assert.Nil(t, runner.args)
}

func TestExtractor_Extract_ScannedPDF(t *testing.T) {
	ctx := context.Background()
	scanned := buildPDF("", "")

	t.Run("falls back to ocr", func(t *testing.T) {
		ocr := &fakeOCR{}
		runner := &pageRunner{pages: []string{"page one", "page two"}}
		e := newExtractor(t, WithOCR(ocr), WithCommandRunner(runner), WithDPI(150), WithPDFToPPM("/opt/poppler/pdftoppm"))

		path := writeFile(t, "scan.pdf", scanned)
		text, err := e.Extract(ctx, path, "scan.pdf")
		require.NoError(t, err)
		assert.Equal(t, "page one\n\npage two", text)
		assert.Equal(t, int32(2), ocr.calls.Load())
		require.Len(t, runner.args, 6)
		assert.Equal(t, []string{"/opt/poppler/pdftoppm", "-r", "150", "-png", path}, runner.args[:5])
	})

	t.Run("rasterizer fails", func(t *testing.T) {
		runner := &pageRunner{err: errors.New("exit status 1")}
		e := newExtractor(t, WithOCR(&fakeOCR{}), WithCommandRunner(runner))

		path := writeFile(t, "scan.pdf", scanned)
		_, err := e.Extract(ctx, path, "scan.pdf")
		assert.ErrorIs(t, err, core.ErrNoTextExtracted)
		assert.ErrorIs(t, err, ErrRasterizeFailed)
	})

	t.Run("ocr yields nothing", func(t *testing.T) {
		runner := &pageRunner{pages: []string{"", " "}}
		e := newExtractor(t, WithOCR(&fakeOCR{}), WithCommandRunner(runner))

		path := writeFile(t, "scan.pdf", scanned)
		_, err := e.Extract(ctx, path, "scan.pdf")
		assert.ErrorIs(t, err, core.ErrNoTextExtracted)
	})
}

func TestExtractor_Extract_CorruptPDF(t *testing.T) {
	e := newExtractor(t)
	path := writeFile(t, "broken.pdf", []byte("definitely not a pdf"))

	_, err := e.Extract(context.Background(), path, "broken.pdf")
	assert.ErrorIs(t, err, core.ErrNoTextExtracted)
	assert.ErrorIs(t, err, ErrPDFUnreadable)
	assert.ErrorIs(t, err, ErrOCRUnavailable)
}

func TestExtractor_StrategyChain(t *testing.T) {
	ctx := context.Background()

	t.Run("first non-empty result wins", func(t *testing.T) {
		e := newExtractor(t, WithStrategies(".html",
			staticStrategy{name: "empty", text: "  "},
			staticStrategy{name: "broken", err: errors.New("nope")},
			staticStrategy{name: "good", text: "hello"},
			staticStrategy{name: "never", text: "unreachable"},
		))
		text, err := e.Extract(ctx, "x", "page.HTML")
		require.NoError(t, err)
		assert.Equal(t, "hello", text)
	})

	t.Run("override default chain", func(t *testing.T) {
		e := newExtractor(t, WithStrategies("pdf", staticStrategy{name: "stub", text: "stubbed"}))
		text, err := e.Extract(ctx, "x", "a.pdf")
		require.NoError(t, err)
		assert.Equal(t, "stubbed", text)
	})

	t.Run("cancelled context", func(t *testing.T) {
		e := newExtractor(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := e.Extract(cctx, "x", "a.txt")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestExtractor_Extensions(t *testing.T) {
	e := newExtractor(t)
	assert.Equal(t, []string{"bmp", "jpeg", "jpg", "md", "pdf", "png", "tiff", "txt"}, e.Extensions())
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(WithDPI(0))
	assert.Error(t, err)

	_, err = New(WithCommandRunner(nil))
	assert.Error(t, err)
}
