package preprocess

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/require"
)

// scannedPage draws a light page with dark "text" bars and a sprinkle of
// speckle noise. seed shifts the pattern so pages are distinguishable.
func scannedPage(w, h int, seed int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 230, G: 225, B: 210, A: 255}
			if (y/6)%3 == 0 && (x+seed*7)%20 < 14 {
				c = color.RGBA{R: 40, G: 40, B: 60, A: 255}
			}
			if (x*31+y*17+seed)%97 == 0 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// buildPDF writes one page per width into a new PDF and returns its path.
func buildPDF(t *testing.T, dir string, widths ...int) string {
	t.Helper()
	var imgs []string
	for i, w := range widths {
		p := filepath.Join(dir, "src_"+string(rune('a'+i))+".png")
		writePNG(t, p, scannedPage(w, 80, i))
		imgs = append(imgs, p)
	}
	out := filepath.Join(dir, "source.pdf")
	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full
	require.NoError(t, api.ImportImagesFile(imgs, out, imp, nil))
	return out
}

// pageWidths reads the media box widths of every page of a PDF.
func pageWidths(t *testing.T, path string) []float64 {
	t.Helper()
	dims, err := api.PageDimsFile(path)
	require.NoError(t, err)
	widths := make([]float64, len(dims))
	for i, d := range dims {
		widths[i] = d.Width
	}
	return widths
}

type fakeRasterizer struct {
	pages []PageImage
	err   error
	calls int
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, pdfPath string) ([]PageImage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

// blockingRasterizer waits for the context to end.
type blockingRasterizer struct{}

func (blockingRasterizer) Rasterize(ctx context.Context, pdfPath string) ([]PageImage, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingEnhancer struct {
	failAt int
	inner  Enhancer
}

func (f failingEnhancer) Enhance(page PageImage) (EnhancedPage, error) {
	if page.Index == f.failAt {
		return FilterChain{}.Enhance(PageImage{Index: page.Index})
	}
	return f.inner.Enhance(page)
}

func syntheticPages(widths ...int) []PageImage {
	pages := make([]PageImage, len(widths))
	for i, w := range widths {
		pages[i] = PageImage{Index: i, Image: scannedPage(w, 60, i)}
	}
	return pages
}

// touchSource creates a placeholder source document for runs that use a fake rasterizer.
func touchSource(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "scan.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4\n"), 0o644))
	return p
}
