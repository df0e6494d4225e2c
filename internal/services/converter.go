package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lllllllleong/documentcleanflow/internal/ocr"
)

// Preprocessor cleans a PDF into dst.
type Preprocessor interface {
	Preprocess(ctx context.Context, src, dst string) (string, error)
}

type ConverterOptions struct {
	Languages   []string
	KeepCleaned bool
}

// DocumentConverter turns one local file into machine-readable output. PDFs
// are cleaned first; everything else goes to the engine unchanged.
type DocumentConverter struct {
	preprocessor Preprocessor
	engine       ocr.Engine
	opts         ConverterOptions
}

func NewDocumentConverter(p Preprocessor, e ocr.Engine, opts ConverterOptions) *DocumentConverter {
	return &DocumentConverter{preprocessor: p, engine: e, opts: opts}
}

// Close releases the engine's clients, if it holds any.
func (c *DocumentConverter) Close() error {
	if closer, ok := c.engine.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// CleanedPath is where the cleaned copy of a PDF is written: <stem>.clean.pdf
// beside it.
func CleanedPath(path string) string {
	return stem(path) + ".clean.pdf"
}

// OutputPath is where the conversion of path in format is written.
func OutputPath(path string, format ocr.Format) string {
	return stem(path) + "." + format.Extension()
}

func stem(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// ConvertDocument cleans and converts path and returns the output path.
func (c *DocumentConverter) ConvertDocument(ctx context.Context, path string, format ocr.Format) (string, error) {
	processed, err := c.Clean(ctx, path)
	if err != nil {
		return "", err
	}
	if processed != path && !c.opts.KeepCleaned {
		defer os.Remove(processed)
	}
	return c.Recognize(ctx, path, processed, format)
}

// Clean preprocesses path if it is a PDF and returns the file the engine
// should read.
func (c *DocumentConverter) Clean(ctx context.Context, path string) (string, error) {
	if DetectFileType(path) != pdfMIME {
		return path, nil
	}
	cleaned, err := c.preprocessor.Preprocess(ctx, path, CleanedPath(path))
	if err != nil {
		return "", fmt.Errorf("failed to preprocess %s: %w", path, err)
	}
	return cleaned, nil
}

// Recognize runs the engine over processed and writes the output named
// after original.
func (c *DocumentConverter) Recognize(ctx context.Context, original, processed string, format ocr.Format) (string, error) {
	logCtx := slog.With("sourcePath", original, "engine", c.engine.Name(), "format", string(format))
	start := time.Now()

	out := OutputPath(original, format)
	req := ocr.Request{
		InputPath:  processed,
		OutputPath: out,
		MIMEType:   DetectFileType(processed),
		Format:     format,
		Languages:  c.opts.Languages,
	}
	if err := c.engine.Convert(ctx, req); err != nil {
		return "", fmt.Errorf("failed to convert %s: %w", original, err)
	}
	logCtx.Info("Document converted.", "outputPath", out, "duration", time.Since(start).String())
	return out, nil
}
