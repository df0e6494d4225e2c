package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/documentcleanflow/internal/config"
	"github.com/Lllllllleong/documentcleanflow/internal/gcp"
	"github.com/Lllllllleong/documentcleanflow/internal/models"
	"github.com/Lllllllleong/documentcleanflow/internal/ocr"
)

// ErrInvalidRequest marks a batch request that can never succeed as sent.
var ErrInvalidRequest = errors.New("invalid batch request")

type BatchConverterConfig struct {
	OutputBucket string
	TempRoot     string
	FileWorkers  int
}

// BatchConverterFunction converts a set of bucket objects in one request.
type BatchConverterFunction struct {
	objects   ObjectStore
	converter FileConverter
	config    BatchConverterConfig
}

func NewBatchConverterFunction(objects ObjectStore, converter FileConverter, cfg BatchConverterConfig) *BatchConverterFunction {
	return &BatchConverterFunction{objects: objects, converter: converter, config: cfg}
}

// NewBatchConverter wires a BatchConverterFunction to Cloud Storage.
func NewBatchConverter(ctx context.Context) (*BatchConverterFunction, error) {
	cfg := config.Load()
	outputBucket := config.GetEnv("OUTPUT_BUCKET", "")
	if outputBucket == "" {
		return nil, fmt.Errorf("OUTPUT_BUCKET environment variable must be set")
	}

	converter, err := NewConverterFromConfig(ctx, cfg, false)
	if err != nil {
		return nil, err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	slog.Info("Batch converter initialized.", "outputBucket", outputBucket, "fileWorkers", cfg.FileWorkers)
	return NewBatchConverterFunction(gcp.NewStorageStore(storageClient), converter, BatchConverterConfig{
		OutputBucket: outputBucket,
		TempRoot:     cfg.TempRoot,
		FileWorkers:  cfg.FileWorkers,
	}), nil
}

// Process downloads the requested objects, converts them and uploads the
// results under batches/<executionId>/ in the output bucket.
func (f *BatchConverterFunction) Process(ctx context.Context, req *models.BatchConvertRequest) (*models.BatchConvertResponse, error) {
	if req.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", ErrInvalidRequest)
	}
	format, err := ocr.ParseFormat(req.OutputFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	logCtx := slog.With("gcsBucket", req.Bucket, "prefix", req.Prefix)

	objects, err := f.resolveObjects(ctx, req)
	if err != nil {
		logCtx.Error("Failed to list input objects", "error", err)
		return nil, err
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("%w: no objects selected", ErrInvalidRequest)
	}

	tempDir, err := os.MkdirTemp(f.config.TempRoot, "batch-converter-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	// Each object gets its own directory so equal base names stay apart.
	var local []string
	objectOf := map[string]string{}
	var failures []models.ObjectFailure
	for i, object := range objects {
		dir := filepath.Join(tempDir, "in", strconv.Itoa(i))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create input dir: %w", err)
		}
		path := filepath.Join(dir, filepath.Base(object))
		if err := f.objects.Download(ctx, req.Bucket, object, path); err != nil {
			logCtx.Error("Failed to download object", "gcsObject", object, "error", err)
			failures = append(failures, models.ObjectFailure{Object: object, Error: err.Error()})
			continue
		}
		local = append(local, path)
		objectOf[path] = object
	}

	processor := NewBatchProcessor(f.converter, BatchOptions{
		OutputDir:   filepath.Join(tempDir, "out"),
		FileWorkers: f.config.FileWorkers,
	})
	result, err := processor.ProcessMultipleFiles(ctx, local, format, req.CreateZip)
	if err != nil {
		logCtx.Error("Batch conversion failed", "error", err)
		return nil, err
	}
	logCtx = logCtx.With("executionId", result.ExecutionID)
	for _, ff := range result.Failures {
		failures = append(failures, models.ObjectFailure{Object: objectOf[ff.Path], Error: ff.Err.Error()})
	}

	resp := &models.BatchConvertResponse{
		ExecutionID: result.ExecutionID,
		Outputs:     []string{},
		Failures:    failures,
	}
	for _, out := range result.Outputs {
		uri, err := f.save(ctx, result.ExecutionID, out)
		if err != nil {
			logCtx.Error("Failed to upload output", "outputPath", out, "error", err)
			return nil, err
		}
		resp.Outputs = append(resp.Outputs, uri)
	}
	if result.ArchivePath != "" {
		if resp.ArchiveUri, err = f.save(ctx, result.ExecutionID, result.ArchivePath); err != nil {
			logCtx.Error("Failed to upload archive", "error", err)
			return nil, err
		}
	}

	switch {
	case len(failures) == 0:
		resp.Status = "success"
	case len(resp.Outputs) == 0:
		resp.Status = "failed"
	default:
		resp.Status = "partial"
	}
	logCtx.Info("Batch request complete.", "status", resp.Status, "outputs", len(resp.Outputs), "failures", len(failures))
	return resp, nil
}

func (f *BatchConverterFunction) resolveObjects(ctx context.Context, req *models.BatchConvertRequest) ([]string, error) {
	if len(req.Objects) > 0 {
		return req.Objects, nil
	}
	names, err := f.objects.List(ctx, req.Bucket, req.Prefix)
	if err != nil {
		return nil, err
	}
	objects := names[:0]
	for _, name := range names {
		// Folder placeholders created by the console.
		if strings.HasSuffix(name, "/") {
			continue
		}
		objects = append(objects, name)
	}
	return objects, nil
}

func (f *BatchConverterFunction) save(ctx context.Context, executionID, localPath string) (string, error) {
	object := fmt.Sprintf("batches/%s/%s", executionID, filepath.Base(localPath))
	if err := f.objects.SaveIfAbsent(ctx, f.config.OutputBucket, localPath, object); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", f.config.OutputBucket, object), nil
}
