package preprocess

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/gen2brain/go-fitz"
)

// DefaultRenderDPI is used when no resolution is configured.
const DefaultRenderDPI = 200

// PDF readers accept the header anywhere in the first kilobyte.
const pdfHeaderWindow = 1024

var pdfMagic = []byte("%PDF-")

// PageImage is one rendered page. Index is 0-based and matches document order.
// DPI is the resolution the page was rendered at; zero means one pixel per point.
type PageImage struct {
	Index int
	Image image.Image
	DPI   float64
}

// Rasterizer renders every page of a PDF to an in-memory image.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string) ([]PageImage, error)
}

// FitzRasterizer renders pages through MuPDF (go-fitz).
type FitzRasterizer struct {
	// DPI is the rendering resolution. Zero means DefaultRenderDPI.
	DPI float64
}

// NewFitzRasterizer creates a rasterizer rendering at the given DPI (0 = DefaultRenderDPI).
func NewFitzRasterizer(dpi float64) *FitzRasterizer {
	return &FitzRasterizer{DPI: dpi}
}

func (r *FitzRasterizer) dpi() float64 {
	if r.DPI > 0 {
		return r.DPI
	}
	return DefaultRenderDPI
}

// Rasterize opens pdfPath and renders all of its pages in order.
func (r *FitzRasterizer) Rasterize(ctx context.Context, pdfPath string) ([]PageImage, error) {
	if err := checkSource(pdfPath); err != nil {
		return nil, err
	}
	// MuPDF also opens images and e-books, so the format is checked first.
	if err := checkPDFHeader(pdfPath); err != nil {
		return nil, err
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrSourceRead, pdfPath, err)
	}
	defer doc.Close()

	dpi := r.dpi()
	pageCount := doc.NumPage()
	pages := make([]PageImage, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, dpi)
		if err != nil {
			return nil, fmt.Errorf("%w: render page %d of %s: %w", ErrSourceRead, i, pdfPath, err)
		}
		pages = append(pages, PageImage{Index: i, Image: img, DPI: dpi})
	}
	return pages, nil
}

// checkSource rejects paths that cannot possibly be rendered.
func checkSource(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSourceRead, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrSourceRead, path)
	}
	return nil
}

func checkPDFHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSourceRead, path, err)
	}
	defer f.Close()

	head := make([]byte, pdfHeaderWindow)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("%w: read %s: %w", ErrSourceRead, path, err)
	}
	if !bytes.Contains(head[:n], pdfMagic) {
		return fmt.Errorf("%w: %s is not a PDF document", ErrSourceRead, path)
	}
	return nil
}
