// Package ocr holds the conversion engines that turn a (cleaned) document into
// machine-readable output.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Lllllllleong/documentcleanflow/internal/gcp"
	"github.com/Lllllllleong/documentcleanflow/internal/preprocess"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrUnknownEngine     = errors.New("unknown ocr engine")
	ErrRefusal           = errors.New("model refused to convert document")
)

// Format selects the output representation.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatJSON     Format = "json"
)

// ParseFormat accepts a format name or a common alias. Empty means markdown.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// Extension is the file extension, without the dot, of outputs in this format.
func (f Format) Extension() string {
	return string(f)
}

// Request describes one conversion.
type Request struct {
	InputPath  string
	OutputPath string
	MIMEType   string
	Format     Format
	Languages  []string
}

// Engine converts the file at Request.InputPath and writes Request.OutputPath.
type Engine interface {
	Name() string
	Convert(ctx context.Context, req Request) error
}

// Deps carries what the engines may need. Only the chosen engine's fields must be set.
type Deps struct {
	Rasterizer preprocess.Rasterizer
	Vertex     *gcp.VertexClient
}

// NewEngine returns the engine registered under name ("tesseract" or "gemini").
func NewEngine(name string, deps Deps) (Engine, error) {
	switch strings.ToLower(name) {
	case "", "tesseract":
		if deps.Rasterizer == nil {
			deps.Rasterizer = preprocess.NewFitzRasterizer(0)
		}
		return NewTesseractEngine(deps.Rasterizer), nil
	case "gemini", "vertex":
		if deps.Vertex == nil {
			return nil, fmt.Errorf("gemini engine requires a vertex client")
		}
		engine := NewGeminiEngine(deps.Vertex.ConverterModel)
		engine.closer = deps.Vertex
		return engine, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
}
