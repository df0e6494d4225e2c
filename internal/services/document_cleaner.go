package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/Lllllllleong/documentcleanflow/internal/config"
	"github.com/Lllllllleong/documentcleanflow/internal/gcp"
	"github.com/Lllllllleong/documentcleanflow/internal/models"
	"github.com/Lllllllleong/documentcleanflow/internal/ocr"
	"github.com/Lllllllleong/documentcleanflow/internal/preprocess"
)

// JobStore persists conversion jobs.
type JobStore interface {
	FindByHash(ctx context.Context, fileHash string) (string, error)
	CreateJob(ctx context.Context, job models.ConversionJob) (string, error)
	UpdateStatus(ctx context.Context, jobID, status string, extra map[string]interface{}) error
	MarkFailed(ctx context.Context, jobID, errDetails string) error
}

// ObjectStore moves files between the local disk and a bucket.
type ObjectStore interface {
	Download(ctx context.Context, bucket, object, destPath string) error
	Upload(ctx context.Context, bucket, localPath, object string) error
	SaveIfAbsent(ctx context.Context, bucket, localPath, object string) error
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// WorkflowStarter starts a downstream workflow execution.
type WorkflowStarter interface {
	Trigger(ctx context.Context, payload interface{}) (string, error)
}

type CleanerConfig struct {
	OutputBucket string
	OutputFormat ocr.Format
	TempRoot     string
}

// CleanerFunction cleans and converts each document uploaded to the input bucket.
type CleanerFunction struct {
	objects   ObjectStore
	jobs      JobStore
	workflow  WorkflowStarter // nil disables the hand-off
	converter *DocumentConverter
	engine    string
	config    CleanerConfig
}

func NewCleanerFunction(objects ObjectStore, jobs JobStore, workflow WorkflowStarter, converter *DocumentConverter, cfg CleanerConfig) *CleanerFunction {
	return &CleanerFunction{
		objects:   objects,
		jobs:      jobs,
		workflow:  workflow,
		converter: converter,
		engine:    converter.engine.Name(),
		config:    cfg,
	}
}

// NewCleaner wires a CleanerFunction to Cloud Storage, Firestore and, when
// WORKFLOW_ID is set, Cloud Workflows.
func NewCleaner(ctx context.Context) (*CleanerFunction, error) {
	cfg := config.Load()
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	outputBucket := config.GetEnv("OUTPUT_BUCKET", "")
	if outputBucket == "" {
		return nil, fmt.Errorf("OUTPUT_BUCKET environment variable must be set")
	}
	format, err := ocr.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return nil, err
	}

	converter, err := NewConverterFromConfig(ctx, cfg, true)
	if err != nil {
		return nil, err
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	var workflow WorkflowStarter
	if workflowID := config.GetEnv("WORKFLOW_ID", ""); workflowID != "" {
		trigger, err := gcp.NewWorkflowTrigger(ctx, cfg.ProjectID, config.GetEnv("WORKFLOW_LOCATION", "us-central1"), workflowID)
		if err != nil {
			return nil, err
		}
		workflow = trigger
	}

	f := NewCleanerFunction(
		gcp.NewStorageStore(storageClient),
		gcp.NewJobStore(firestoreClient, config.GetEnv("FIRESTORE_COLLECTION", "documents")),
		workflow,
		converter,
		CleanerConfig{OutputBucket: outputBucket, OutputFormat: format, TempRoot: cfg.TempRoot},
	)
	slog.Info("Document cleaner initialized.", "engine", f.engine, "outputBucket", outputBucket, "workflowEnabled", workflow != nil)
	return f, nil
}

// NewConverterFromConfig builds the preprocessor and engine named by cfg.
// keepCleaned overrides cfg.KeepCleanedPDF when true.
func NewConverterFromConfig(ctx context.Context, cfg config.Config, keepCleaned bool) (*DocumentConverter, error) {
	rasterizer := preprocess.NewFitzRasterizer(cfg.RenderDPI)
	deps := ocr.Deps{Rasterizer: rasterizer}
	if name := cfg.OCREngine; name == "gemini" || name == "vertex" {
		vertexClient, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		deps.Vertex = vertexClient
	}
	engine, err := ocr.NewEngine(cfg.OCREngine, deps)
	if err != nil {
		return nil, err
	}
	pre := preprocess.NewPreprocessor(rasterizer, preprocess.NewFilterChain(), preprocess.NewPDFRebuilder(), cfg.PreprocessOptions())
	return NewDocumentConverter(pre, engine, ConverterOptions{
		Languages:   cfg.OCRLanguages,
		KeepCleaned: keepCleaned || cfg.KeepCleanedPDF,
	}), nil
}

// Process runs one uploaded object through the pipeline. Duplicates of an
// already seen file are skipped.
func (f *CleanerFunction) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")

	tempDir, err := os.MkdirTemp(f.config.TempRoot, "document-cleaner-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, filepath.Base(e.Name))
	if err := f.objects.Download(ctx, e.Bucket, e.Name, sourcePath); err != nil {
		logCtx.Error("Failed to download source document", "error", err)
		return err
	}

	fileHash, err := calculateFileHash(sourcePath)
	if err != nil {
		logCtx.Error("Failed to calculate file hash", "error", err)
		return fmt.Errorf("failed to calculate file hash: %w", err)
	}
	logCtx = logCtx.With("fileHash", fileHash)

	existingID, err := f.jobs.FindByHash(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if existingID != "" {
		logCtx.Info("Duplicate file detected. Skipping.", "existingDocId", existingID)
		return nil
	}

	jobID, err := f.jobs.CreateJob(ctx, models.ConversionJob{
		FileHash:         fileHash,
		OriginalFilename: e.Name,
		SourceBucket:     e.Bucket,
		Status:           models.StatusValidating,
		OutputFormat:     string(f.config.OutputFormat),
		Engine:           f.engine,
	})
	if err != nil {
		logCtx.Error("Failed to create job document", "error", err)
		return err
	}
	logCtx = logCtx.With("documentId", jobID)
	logCtx.Info("Created job document in Firestore.")

	return f.run(ctx, logCtx, jobID, sourcePath)
}

func (f *CleanerFunction) run(ctx context.Context, logCtx *slog.Logger, jobID, sourcePath string) error {
	isPDF := DetectFileType(sourcePath) == pdfMIME

	processed := sourcePath
	pageCount := 0
	if isPDF {
		if err := f.jobs.UpdateStatus(ctx, jobID, models.StatusPreprocessing, nil); err != nil {
			return f.handleError(ctx, logCtx, jobID, "failed to update status to PREPROCESSING", err)
		}
		cleaned, err := f.converter.Clean(ctx, sourcePath)
		if err != nil {
			return f.handleError(ctx, logCtx, jobID, "failed to preprocess document", err)
		}
		if pageCount, err = api.PageCountFile(cleaned); err != nil {
			return f.handleError(ctx, logCtx, jobID, "failed to get page count", err)
		}
		processed = cleaned
		logCtx.Info("Document preprocessed.", "pageCount", pageCount)
	}

	extra := map[string]interface{}{}
	if pageCount > 0 {
		extra["pageCount"] = pageCount
	}
	if err := f.jobs.UpdateStatus(ctx, jobID, models.StatusConverting, extra); err != nil {
		return f.handleError(ctx, logCtx, jobID, "failed to update status to CONVERTING", err)
	}
	output, err := f.converter.Recognize(ctx, sourcePath, processed, f.config.OutputFormat)
	if err != nil {
		return f.handleError(ctx, logCtx, jobID, "failed to convert document", err)
	}

	completed := map[string]interface{}{}
	if isPDF {
		uri, err := f.upload(ctx, jobID, processed)
		if err != nil {
			return f.handleError(ctx, logCtx, jobID, "failed to upload cleaned PDF", err)
		}
		completed["cleanedGcsUri"] = uri
	}
	outputURI, err := f.upload(ctx, jobID, output)
	if err != nil {
		return f.handleError(ctx, logCtx, jobID, "failed to upload converted output", err)
	}
	completed["outputGcsUri"] = outputURI

	if f.workflow != nil {
		execName, err := f.workflow.Trigger(ctx, models.WorkflowArgument{
			DocumentID:   jobID,
			PageCount:    pageCount,
			OutputGCSUri: outputURI,
		})
		if err != nil {
			return f.handleError(ctx, logCtx, jobID, "failed to trigger workflow execution", err)
		}
		completed["workflowExecutionId"] = execName
	}

	if err := f.jobs.UpdateStatus(ctx, jobID, models.StatusCompleted, completed); err != nil {
		return f.handleError(ctx, logCtx, jobID, "failed to update status to COMPLETED", err)
	}
	logCtx.Info("Document cleaned and converted.", "outputGcsUri", outputURI)
	return nil
}

func (f *CleanerFunction) upload(ctx context.Context, jobID, localPath string) (string, error) {
	object := fmt.Sprintf("%s/%s", jobID, filepath.Base(localPath))
	if err := f.objects.Upload(ctx, f.config.OutputBucket, localPath, object); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", f.config.OutputBucket, object), nil
}

func (f *CleanerFunction) handleError(ctx context.Context, logCtx *slog.Logger, jobID, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	fullError := fmt.Errorf("%s: %w", message, originalErr)
	if err := f.jobs.MarkFailed(ctx, jobID, fullError.Error()); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fullError
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
