// Package preprocess cleans scanned PDFs before OCR: each page is rasterized,
// run through a fixed enhancement chain, and the enhanced pages are
// reassembled into a new image-only PDF.
package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Options controls a Preprocessor. The zero value is usable.
type Options struct {
	// TempRoot is where per-run workspaces are created. Empty means os.TempDir().
	TempRoot string
	// Workers bounds how many pages are enhanced at once. Values below 1 mean runtime.NumCPU().
	Workers int
	// Timeout is an overall deadline for one run. Zero disables it.
	Timeout time.Duration
	// KeepWorkspace leaves the page images on disk after the run.
	KeepWorkspace bool
}

// Result describes a finished run.
type Result struct {
	OutputPath   string
	PageCount    int
	WorkspaceDir string
	Pages        []PageFile
}

// Preprocessor drives rasterize -> enhance -> rebuild for one document at a time.
type Preprocessor struct {
	rasterizer Rasterizer
	enhancer   Enhancer
	rebuilder  Rebuilder
	opts       Options
}

// NewPreprocessor wires the pipeline stages together.
func NewPreprocessor(rasterizer Rasterizer, enhancer Enhancer, rebuilder Rebuilder, opts Options) *Preprocessor {
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	return &Preprocessor{
		rasterizer: rasterizer,
		enhancer:   enhancer,
		rebuilder:  rebuilder,
		opts:       opts,
	}
}

// NewDefaultPreprocessor uses go-fitz rendering at dpi, the standard filter
// chain and the pdfcpu rebuilder.
func NewDefaultPreprocessor(dpi float64, opts Options) *Preprocessor {
	return NewPreprocessor(NewFitzRasterizer(dpi), NewFilterChain(), NewPDFRebuilder(), opts)
}

// Preprocess cleans sourcePath into destPath and returns destPath.
func (p *Preprocessor) Preprocess(ctx context.Context, sourcePath, destPath string) (string, error) {
	res, err := p.Run(ctx, sourcePath, destPath)
	if err != nil {
		return "", err
	}
	return res.OutputPath, nil
}

// Run is Preprocess with details about the pages that were produced.
// On any failure destPath is left exactly as it was.
func (p *Preprocessor) Run(ctx context.Context, sourcePath, destPath string) (*Result, error) {
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	logCtx := slog.With("sourcePath", sourcePath, "destPath", destPath)
	start := time.Now()

	if err := checkSource(sourcePath); err != nil {
		logCtx.Error("Source document is not readable", "error", err)
		return nil, err
	}

	pages, err := p.rasterizer.Rasterize(ctx, sourcePath)
	if err != nil {
		logCtx.Error("Failed to rasterize source document", "error", err)
		return nil, err
	}
	logCtx.Info("Rasterized source document.", "pageCount", len(pages))

	ws, err := NewWorkspace(p.opts.TempRoot, destPath)
	if err != nil {
		logCtx.Error("Failed to create workspace", "error", err)
		return nil, err
	}
	if p.opts.KeepWorkspace {
		logCtx.Info("Keeping workspace after run.", "workspace", ws.Dir)
	} else {
		defer func() {
			if err := ws.Close(); err != nil {
				logCtx.Warn("Failed to remove workspace", "workspace", ws.Dir, "error", err)
			}
		}()
	}

	files, err := p.enhanceAll(ctx, ws, pages)
	if err != nil {
		logCtx.Error("Page enhancement failed", "error", err)
		return nil, err
	}

	if err := p.rebuilder.Rebuild(ctx, files, destPath); err != nil {
		logCtx.Error("Failed to rebuild cleaned PDF", "error", err)
		return nil, err
	}

	logCtx.Info("Preprocessing complete.", "pageCount", len(files), "duration", time.Since(start).String())
	res := &Result{
		OutputPath: destPath,
		PageCount:  len(files),
		Pages:      files,
	}
	if p.opts.KeepWorkspace {
		res.WorkspaceDir = ws.Dir
	}
	return res, nil
}

// enhanceAll enhances and persists every page on a bounded pool. The first
// failure cancels the rest. The returned files are ordered by page index.
func (p *Preprocessor) enhanceAll(ctx context.Context, ws *Workspace, pages []PageImage) ([]PageFile, error) {
	files := make([]PageFile, len(pages))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.opts.Workers)

	for i, page := range pages {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			enhanced, err := p.enhancer.Enhance(page)
			if err != nil {
				return fmt.Errorf("page %d: %w", page.Index, err)
			}
			file, err := ws.WritePage(enhanced)
			if err != nil {
				return fmt.Errorf("page %d: %w", page.Index, err)
			}
			files[i] = file
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(files, func(a, b int) bool { return files[a].Index < files[b].Index })
	return files, nil
}
