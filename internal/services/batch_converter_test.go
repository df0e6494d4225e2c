package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/documentcleanflow/internal/models"
)

func newTestBatchConverter(t *testing.T, objects *memObjects) *BatchConverterFunction {
	t.Helper()
	conv := NewDocumentConverter(&copyPreprocessor{}, &echoEngine{}, ConverterOptions{})
	return NewBatchConverterFunction(objects, conv, BatchConverterConfig{
		OutputBucket: "out-bucket",
		TempRoot:     t.TempDir(),
		FileWorkers:  2,
	})
}

func TestBatchConverter_Prefix(t *testing.T) {
	objects := newMemObjects()
	objects.put("in-bucket", "scans/", nil)
	objects.put("in-bucket", "scans/b.pdf", []byte("%PDF-1.4"))
	objects.put("in-bucket", "scans/a.png", []byte("png"))
	objects.put("in-bucket", "other/c.png", []byte("png"))

	resp, err := newTestBatchConverter(t, objects).Process(context.Background(), &models.BatchConvertRequest{
		Bucket: "in-bucket", Prefix: "scans/", OutputFormat: "txt", CreateZip: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "success", resp.Status)
	prefix := "gs://out-bucket/batches/" + resp.ExecutionID + "/"
	assert.Equal(t, []string{prefix + "a.text", prefix + "b.text"}, resp.Outputs)
	assert.Equal(t, prefix+"converted.zip", resp.ArchiveUri)
	assert.Empty(t, resp.Failures)
	assert.Equal(t, "text:b.clean.pdf", string(objects.data["out-bucket/batches/"+resp.ExecutionID+"/b.text"]))
}

func TestBatchConverter_PartialFailure(t *testing.T) {
	objects := newMemObjects()
	objects.put("in-bucket", "good.png", []byte("png"))
	objects.put("in-bucket", "corrupt.png", []byte("png"))

	resp, err := newTestBatchConverter(t, objects).Process(context.Background(), &models.BatchConvertRequest{
		Bucket:  "in-bucket",
		Objects: []string{"good.png", "corrupt.png", "missing.png"},
	})
	require.NoError(t, err)

	assert.Equal(t, "partial", resp.Status)
	assert.Len(t, resp.Outputs, 1)
	require.Len(t, resp.Failures, 2)
	var failed []string
	for _, f := range resp.Failures {
		failed = append(failed, f.Object)
	}
	assert.ElementsMatch(t, []string{"corrupt.png", "missing.png"}, failed)
}

func TestBatchConverter_InvalidRequests(t *testing.T) {
	f := newTestBatchConverter(t, newMemObjects())

	_, err := f.Process(context.Background(), &models.BatchConvertRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.Process(context.Background(), &models.BatchConvertRequest{Bucket: "b", OutputFormat: "docx"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.Process(context.Background(), &models.BatchConvertRequest{Bucket: "b", Prefix: "empty/"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
