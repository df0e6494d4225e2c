package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/documentcleanflow/internal/ocr"
	"github.com/Lllllllleong/documentcleanflow/internal/preprocess"
)

func TestOutputPaths(t *testing.T) {
	assert.Equal(t, "/in/report.clean.pdf", CleanedPath("/in/report.pdf"))
	assert.Equal(t, "/in/report.markdown", OutputPath("/in/report.pdf", ocr.FormatMarkdown))
	assert.Equal(t, "/in/photo.json", OutputPath("/in/photo.jpg", ocr.FormatJSON))
}

func TestConvertDocument_PDFIsCleanedFirst(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "report.pdf"), "%PDF-1.4")
	pre := &copyPreprocessor{}
	engine := &echoEngine{}

	out, err := NewDocumentConverter(pre, engine, ConverterOptions{Languages: []string{"por", "eng"}}).
		ConvertDocument(context.Background(), src, ocr.FormatMarkdown)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "report.markdown"), out)
	assert.Equal(t, []string{src}, pre.calls)
	require.Len(t, engine.reqs, 1)
	assert.Equal(t, CleanedPath(src), engine.reqs[0].InputPath)
	assert.Equal(t, "application/pdf", engine.reqs[0].MIMEType)
	assert.Equal(t, []string{"por", "eng"}, engine.reqs[0].Languages)
	assert.Equal(t, "markdown:report.clean.pdf", readFile(t, out))
	assert.NoFileExists(t, CleanedPath(src))
}

func TestConvertDocument_KeepCleaned(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "report.pdf"), "%PDF-1.4")

	_, err := NewDocumentConverter(&copyPreprocessor{}, &echoEngine{}, ConverterOptions{KeepCleaned: true}).
		ConvertDocument(context.Background(), src, ocr.FormatText)
	require.NoError(t, err)
	assert.FileExists(t, CleanedPath(src))
}

func TestConvertDocument_ImagesSkipPreprocessing(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "receipt.png"), "png bytes")
	pre := &copyPreprocessor{}
	engine := &echoEngine{}

	out, err := NewDocumentConverter(pre, engine, ConverterOptions{}).
		ConvertDocument(context.Background(), src, ocr.FormatText)
	require.NoError(t, err)

	assert.Empty(t, pre.calls)
	assert.Equal(t, src, engine.reqs[0].InputPath)
	assert.Equal(t, "image/png", engine.reqs[0].MIMEType)
	assert.Equal(t, filepath.Join(dir, "receipt.text"), out)
}

func TestConvertDocument_PreprocessFailure(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "report.pdf"), "%PDF-1.4")
	pre := &copyPreprocessor{err: preprocess.ErrSourceRead}
	engine := &echoEngine{}

	_, err := NewDocumentConverter(pre, engine, ConverterOptions{}).
		ConvertDocument(context.Background(), src, ocr.FormatMarkdown)
	assert.ErrorIs(t, err, preprocess.ErrSourceRead)
	assert.Empty(t, engine.reqs)
}

func TestConvertDocument_EngineFailure(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "corrupt.pdf"), "%PDF-1.4")

	_, err := NewDocumentConverter(&copyPreprocessor{}, &echoEngine{}, ConverterOptions{}).
		ConvertDocument(context.Background(), src, ocr.FormatMarkdown)
	assert.True(t, errors.Is(err, errCorrupt))
	assert.NoFileExists(t, CleanedPath(src))
}

type closingEngine struct {
	echoEngine
	closed bool
}

func (e *closingEngine) Close() error {
	e.closed = true
	return nil
}

func TestDocumentConverter_Close(t *testing.T) {
	engine := &closingEngine{}
	require.NoError(t, NewDocumentConverter(&copyPreprocessor{}, engine, ConverterOptions{}).Close())
	assert.True(t, engine.closed)

	assert.NoError(t, NewDocumentConverter(&copyPreprocessor{}, &echoEngine{}, ConverterOptions{}).Close())
}
