package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const (
	uploadRetries      = 4
	uploadWriteTimeout = 50 * time.Second
)

// DownloadObject streams gs://bucket/object into destPath.
func DownloadObject(ctx context.Context, client *storage.Client, bucket, object, destPath string) error {
	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()

	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create local file at %s: %w", destPath, err)
	}
	defer localFile.Close()

	if _, err := io.Copy(localFile, reader); err != nil {
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return localFile.Close()
}

// ListObjects returns the sorted names of objects under prefix.
func ListObjects(ctx context.Context, client *storage.Client, bucket, prefix string) ([]string, error) {
	it := client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", bucket, prefix, err)
		}
		names = append(names, attrs.Name)
	}
	sort.Strings(names)
	return names, nil
}

// SaveToGCSAtomically writes r to an object only if it doesn't already exist.
// An existing object is not an error.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName string, r io.Reader) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			slog.Info("Object already exists. Skipping.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Info("Object already exists. Skipping.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// UploadFileWithRetry copies localPath to destObject, retrying with
// exponential backoff.
func UploadFileWithRetry(ctx context.Context, bucket *storage.BucketHandle, localPath, destObject string) error {
	backoff := 1 * time.Second
	var lastErr error

	for i := 0; i < uploadRetries; i++ {
		err := uploadOnce(ctx, bucket, localPath, destObject)
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", destObject,
			"attempt", i+1,
			"maxRetries", uploadRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", destObject, "error", ctx.Err())
			return ctx.Err()
		}
	}
	slog.Error("Upload failed after all retries.", "gcsObject", destObject, "error", lastErr)
	return fmt.Errorf("upload for %s failed after all retries: %w", destObject, lastErr)
}

func uploadOnce(ctx context.Context, bucket *storage.BucketHandle, localPath, destObject string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("could not open local file %s: %w", localPath, err)
	}
	defer f.Close()

	writeCtx, cancel := context.WithTimeout(ctx, uploadWriteTimeout)
	defer cancel()

	w := bucket.Object(destObject).NewWriter(writeCtx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("io.Copy to GCS failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// StorageStore exposes the helpers above bound to one client.
type StorageStore struct {
	client *storage.Client
}

func NewStorageStore(client *storage.Client) *StorageStore {
	return &StorageStore{client: client}
}

func (s *StorageStore) Download(ctx context.Context, bucket, object, destPath string) error {
	return DownloadObject(ctx, s.client, bucket, object, destPath)
}

func (s *StorageStore) Upload(ctx context.Context, bucket, localPath, object string) error {
	return UploadFileWithRetry(ctx, s.client.Bucket(bucket), localPath, object)
}

// SaveIfAbsent uploads localPath unless object already exists.
func (s *StorageStore) SaveIfAbsent(ctx context.Context, bucket, localPath, object string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("could not open local file %s: %w", localPath, err)
	}
	defer f.Close()
	return SaveToGCSAtomically(ctx, s.client.Bucket(bucket), object, f)
}

func (s *StorageStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	return ListObjects(ctx, s.client, bucket, prefix)
}
