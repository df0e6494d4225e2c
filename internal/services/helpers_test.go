package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/documentcleanflow/internal/models"
	"github.com/Lllllllleong/documentcleanflow/internal/ocr"
)

// copyPreprocessor stands in for the real pipeline by copying src to dst.
type copyPreprocessor struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *copyPreprocessor) Preprocess(_ context.Context, src, dst string) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, src)
	p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	return dst, os.WriteFile(dst, data, 0o644)
}

// echoEngine writes "<format>:<input base name>" to the output. Inputs whose
// name contains "corrupt" fail.
type echoEngine struct {
	mu   sync.Mutex
	reqs []ocr.Request
}

var errCorrupt = errors.New("corrupt input")

func (e *echoEngine) Name() string { return "echo" }

func (e *echoEngine) Convert(_ context.Context, req ocr.Request) error {
	e.mu.Lock()
	e.reqs = append(e.reqs, req)
	e.mu.Unlock()
	if strings.Contains(filepath.Base(req.InputPath), "corrupt") {
		return errCorrupt
	}
	return os.WriteFile(req.OutputPath, []byte(fmt.Sprintf("%s:%s", req.Format, filepath.Base(req.InputPath))), 0o644)
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// makePDF writes a PDF with the given number of pages.
func makePDF(t *testing.T, dir string, pages int) string {
	t.Helper()
	var imgs []string
	for i := 0; i < pages; i++ {
		img := image.NewGray(image.Rect(0, 0, 40+10*i, 40))
		for x := 0; x < img.Bounds().Dx(); x += 4 {
			img.SetGray(x, 20, color.Gray{Y: 0})
		}
		p := filepath.Join(dir, fmt.Sprintf("img_%d.png", i))
		f, err := os.Create(p)
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
		imgs = append(imgs, p)
	}
	out := filepath.Join(dir, "scan.pdf")
	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full
	require.NoError(t, api.ImportImagesFile(imgs, out, imp, nil))
	return out
}

// memObjects is an in-memory ObjectStore keyed by "bucket/object".
type memObjects struct {
	mu       sync.Mutex
	data     map[string][]byte
	uploaded []string
}

func newMemObjects() *memObjects {
	return &memObjects{data: map[string][]byte{}}
}

func (m *memObjects) put(bucket, object string, data []byte) {
	m.data[bucket+"/"+object] = data
}

func (m *memObjects) Download(_ context.Context, bucket, object, destPath string) error {
	m.mu.Lock()
	data, ok := m.data[bucket+"/"+object]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("object gs://%s/%s not found", bucket, object)
	}
	return os.WriteFile(destPath, data, 0o644)
}

func (m *memObjects) Upload(_ context.Context, bucket, localPath, object string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[bucket+"/"+object] = data
	m.uploaded = append(m.uploaded, bucket+"/"+object)
	return nil
}

func (m *memObjects) SaveIfAbsent(ctx context.Context, bucket, localPath, object string) error {
	m.mu.Lock()
	_, exists := m.data[bucket+"/"+object]
	m.mu.Unlock()
	if exists {
		return nil
	}
	return m.Upload(ctx, bucket, localPath, object)
}

func (m *memObjects) List(_ context.Context, bucket, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for key := range m.data {
		name, ok := strings.CutPrefix(key, bucket+"/")
		if ok && strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// memJobs is an in-memory JobStore that keeps every status transition.
type memJobs struct {
	jobs     map[string]*models.ConversionJob
	statuses map[string][]string
	extras   map[string]map[string]interface{}
	failOn   string
}

func newMemJobs() *memJobs {
	return &memJobs{
		jobs:     map[string]*models.ConversionJob{},
		statuses: map[string][]string{},
		extras:   map[string]map[string]interface{}{},
	}
}

func (s *memJobs) FindByHash(_ context.Context, fileHash string) (string, error) {
	for id, job := range s.jobs {
		if job.FileHash == fileHash {
			return id, nil
		}
	}
	return "", nil
}

func (s *memJobs) CreateJob(_ context.Context, job models.ConversionJob) (string, error) {
	id := fmt.Sprintf("job-%d", len(s.jobs)+1)
	s.jobs[id] = &job
	s.statuses[id] = []string{job.Status}
	s.extras[id] = map[string]interface{}{}
	return id, nil
}

func (s *memJobs) UpdateStatus(_ context.Context, jobID, status string, extra map[string]interface{}) error {
	if status == s.failOn {
		return errors.New("firestore unavailable")
	}
	s.jobs[jobID].Status = status
	s.statuses[jobID] = append(s.statuses[jobID], status)
	for k, v := range extra {
		s.extras[jobID][k] = v
	}
	return nil
}

func (s *memJobs) MarkFailed(ctx context.Context, jobID, errDetails string) error {
	s.jobs[jobID].ErrorDetails = errDetails
	return s.UpdateStatus(ctx, jobID, models.StatusFailed, nil)
}

type recordingWorkflow struct {
	payloads []interface{}
}

func (w *recordingWorkflow) Trigger(_ context.Context, payload interface{}) (string, error) {
	w.payloads = append(w.payloads, payload)
	return fmt.Sprintf("executions/%d", len(w.payloads)), nil
}
