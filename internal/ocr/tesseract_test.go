package ocr

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Lllllllleong/documentcleanflow/internal/preprocess"
)

type failingRasterizer struct{}

func (failingRasterizer) Rasterize(context.Context, string) ([]preprocess.PageImage, error) {
	return nil, preprocess.ErrSourceRead
}

func TestTesseractEngine_RasterizeFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "doc.markdown")

	err := NewTesseractEngine(failingRasterizer{}).Convert(context.Background(), Request{
		InputPath:  "missing.pdf",
		OutputPath: out,
		MIMEType:   "application/pdf",
		Format:     FormatMarkdown,
	})
	assert.ErrorIs(t, err, preprocess.ErrSourceRead)
	assert.NoFileExists(t, out)
}
