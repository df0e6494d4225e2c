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

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/documentcleanflow/internal/ocr"
)

// ArchiveName is the name of the optional zip written into the output directory.
const ArchiveName = "converted.zip"

// FileConverter converts one local file and returns the output path.
type FileConverter interface {
	ConvertDocument(ctx context.Context, path string, format ocr.Format) (string, error)
}

type BatchOptions struct {
	OutputDir   string
	FileWorkers int
}

// FileFailure records an input that could not be converted.
type FileFailure struct {
	Path string
	Err  error
}

func (f FileFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

type BatchResult struct {
	ExecutionID string
	// Outputs are in input order; failed inputs are omitted.
	Outputs     []string
	Failures    []FileFailure
	ArchivePath string
}

// BatchProcessor converts several files into one output directory.
type BatchProcessor struct {
	converter FileConverter
	opts      BatchOptions
}

func NewBatchProcessor(c FileConverter, opts BatchOptions) *BatchProcessor {
	if opts.FileWorkers < 1 {
		opts.FileWorkers = 1
	}
	return &BatchProcessor{converter: c, opts: opts}
}

// ProcessMultipleFiles converts files into the output directory. A file that
// fails is recorded in the result and the rest still run. The returned error
// is reserved for problems with the batch as a whole.
func (p *BatchProcessor) ProcessMultipleFiles(ctx context.Context, files []string, format ocr.Format, createZip bool) (*BatchResult, error) {
	result := &BatchResult{ExecutionID: uuid.NewString()}
	logCtx := slog.With("executionId", result.ExecutionID, "outputDir", p.opts.OutputDir, "fileCount", len(files))
	logCtx.Info("Starting batch conversion.")
	start := time.Now()

	if err := os.MkdirAll(p.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", p.opts.OutputDir, err)
	}

	outputs := make([]string, len(files))
	failures := make([]error, len(files))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.opts.FileWorkers)
	for _, group := range groupByStem(files) {
		eg.Go(func() error {
			for _, i := range group {
				file := files[i]
				if err := gctx.Err(); err != nil {
					failures[i] = err
					continue
				}
				out, err := p.convertOne(gctx, file, format)
				if err != nil {
					logCtx.Error("File conversion failed", "sourcePath", file, "error", err)
					failures[i] = err
					continue
				}
				outputs[i] = out
			}
			return nil
		})
	}
	_ = eg.Wait()

	for i, file := range files {
		if failures[i] != nil {
			result.Failures = append(result.Failures, FileFailure{Path: file, Err: failures[i]})
			continue
		}
		result.Outputs = append(result.Outputs, outputs[i])
	}

	if createZip {
		zipPath := filepath.Join(p.opts.OutputDir, ArchiveName)
		if err := CreateZipArchive(zipPath, result.Outputs); err != nil {
			return result, err
		}
		result.ArchivePath = zipPath
	}

	logCtx.Info("Batch conversion complete.",
		"converted", len(result.Outputs),
		"failed", len(result.Failures),
		"duration", time.Since(start).String(),
	)
	return result, ctx.Err()
}

// groupByStem returns the indexes of files grouped by base name without
// extension, in input order. Files in one group write the same output names
// and must not be converted concurrently.
func groupByStem(files []string) [][]int {
	var groups [][]int
	slot := make(map[string]int, len(files))
	for i, file := range files {
		key := strings.ToLower(filepath.Base(stem(file)))
		g, ok := slot[key]
		if !ok {
			g = len(groups)
			slot[key] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

func (p *BatchProcessor) convertOne(ctx context.Context, file string, format ocr.Format) (string, error) {
	out, err := p.converter.ConvertDocument(ctx, file, format)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(p.opts.OutputDir, filepath.Base(out))
	if err := moveFile(out, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if src == dst {
		return nil
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	in.Close()
	return os.Remove(src)
}
