package preprocess

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for page validation
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const pointsPerInch = 72.0

// Rebuilder assembles ordered page images into a single PDF.
type Rebuilder interface {
	Rebuild(ctx context.Context, pages []PageFile, destPath string) error
}

// PDFRebuilder builds image-only PDFs with pdfcpu, one page per image. Each
// page is sized so that its image covers it at the page's DPI, which gives
// the rebuilt document the geometry of the document it was rendered from.
type PDFRebuilder struct {
	conf *model.Configuration
}

// NewPDFRebuilder creates a rebuilder with relaxed pdfcpu validation.
func NewPDFRebuilder() *PDFRebuilder {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFRebuilder{conf: conf}
}

// Rebuild writes pages, in the given order, as the pages of destPath.
// The document is first written next to destPath and renamed into place once
// its page count checks out, so destPath never holds a partial file.
func (r *PDFRebuilder) Rebuild(ctx context.Context, pages []PageFile, destPath string) error {
	if len(pages) == 0 {
		return fmt.Errorf("%w: no page images to assemble into %s", ErrRebuild, destPath)
	}

	images := make([]pageSource, 0, len(pages))
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		src, err := openImage(p)
		if err != nil {
			return err
		}
		defer src.file.Close()
		images = append(images, src)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp output for %s: %w", ErrRebuild, destPath, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := r.write(tmp, images); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: flush %s: %w", ErrRebuild, tmp.Name(), err)
	}

	pageCount, err := api.PageCountFile(tmp.Name())
	if err != nil {
		return fmt.Errorf("%w: verify %s: %w", ErrRebuild, tmp.Name(), err)
	}
	if pageCount != len(pages) {
		return fmt.Errorf("%w: rebuilt document has %d pages, expected %d", ErrRebuild, pageCount, len(pages))
	}

	if err := os.Chmod(tmp.Name(), outputMode(destPath)); err != nil {
		return fmt.Errorf("%w: set mode on %s: %w", ErrRebuild, tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return fmt.Errorf("%w: move into %s: %w", ErrRebuild, destPath, err)
	}
	committed = true
	return nil
}

// write imports every image as one page. A single import configuration
// cannot size pages individually, so the page tree is built here page by page.
func (r *PDFRebuilder) write(w io.Writer, images []pageSource) error {
	conf := *r.conf
	conf.Cmd = model.IMPORTIMAGES

	pdfCtx, err := pdfcpu.CreateContextWithXRefTable(&conf, images[0].dim())
	if err != nil {
		return fmt.Errorf("%w: create document: %w", ErrRebuild, err)
	}
	pagesIndRef, err := pdfCtx.Pages()
	if err != nil {
		return fmt.Errorf("%w: page tree: %w", ErrRebuild, err)
	}
	pagesDict, err := pdfCtx.DereferenceDict(*pagesIndRef)
	if err != nil {
		return fmt.Errorf("%w: page tree: %w", ErrRebuild, err)
	}

	for _, img := range images {
		indRefs, err := pdfcpu.NewPagesForImage(pdfCtx.XRefTable, img.file, pagesIndRef, img.importConfig())
		if err != nil {
			return fmt.Errorf("%w: import page %d: %w", ErrRebuild, img.index, err)
		}
		for _, indRef := range indRefs {
			if err := pdfCtx.SetValid(*indRef); err != nil {
				return fmt.Errorf("%w: import page %d: %w", ErrRebuild, img.index, err)
			}
			if err := model.AppendPageTree(indRef, 1, pagesDict); err != nil {
				return fmt.Errorf("%w: import page %d: %w", ErrRebuild, img.index, err)
			}
			pdfCtx.PageCount++
		}
	}

	if err := api.Write(pdfCtx, w, &conf); err != nil {
		return fmt.Errorf("%w: write %d pages: %w", ErrRebuild, len(images), err)
	}
	return nil
}

// pageSource is an opened page image with its pixel size.
type pageSource struct {
	index         int
	file          *os.File
	width, height int
	dpi           float64
}

// dim is the page size in points.
func (s pageSource) dim() *types.Dim {
	scale := s.scale()
	return &types.Dim{Width: float64(s.width) * scale, Height: float64(s.height) * scale}
}

func (s pageSource) scale() float64 {
	if s.dpi <= 0 {
		return 1
	}
	return pointsPerInch / s.dpi
}

// importConfig places the image scaled to exactly cover a page of dim().
func (s pageSource) importConfig() *pdfcpu.Import {
	imp := pdfcpu.DefaultImportConfig()
	imp.PageDim = s.dim()
	imp.UserDim = true
	imp.Pos = types.Center
	imp.ScaleAbs = true
	imp.Scale = s.scale()
	return imp
}

// openImage opens the page file and checks that it decodes as a supported
// image, leaving the file positioned at its start.
func openImage(page PageFile) (pageSource, error) {
	f, err := os.Open(page.Path)
	if err != nil {
		return pageSource{}, fmt.Errorf("%w: open page image: %w", ErrRebuild, err)
	}
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		f.Close()
		return pageSource{}, fmt.Errorf("%w: %s is not a valid image: %w", ErrRebuild, page.Path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return pageSource{}, fmt.Errorf("%w: rewind %s: %w", ErrRebuild, page.Path, err)
	}
	return pageSource{index: page.Index, file: f, width: cfg.Width, height: cfg.Height, dpi: page.DPI}, nil
}

// outputMode keeps the permissions of an existing destination; new files get 0644.
func outputMode(destPath string) fs.FileMode {
	if info, err := os.Stat(destPath); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}
