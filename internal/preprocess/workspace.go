package preprocess

import (
	"bufio"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

const workspaceSuffix = "_pages"

// PageFile is an enhanced page persisted in a workspace. Index, not the file
// name, defines where the page goes in the rebuilt document.
type PageFile struct {
	Index int
	Path  string
	DPI   float64
}

// Workspace is a per-invocation scratch directory for page images.
type Workspace struct {
	Dir string
}

// NewWorkspace creates a fresh directory under root named after the stem of
// destPath, e.g. "report.clean_pages_123456". The random tail keeps concurrent
// runs that share a destination name apart. root is created if missing.
func NewWorkspace(root, destPath string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create temp root %s: %w", ErrWorkspace, root, err)
	}
	dir, err := os.MkdirTemp(root, workspacePattern(destPath))
	if err != nil {
		return nil, fmt.Errorf("%w: create workspace under %s: %w", ErrWorkspace, root, err)
	}
	return &Workspace{Dir: dir}, nil
}

func workspacePattern(destPath string) string {
	base := filepath.Base(destPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return stem + workspaceSuffix + "_*"
}

// PagePath returns the file name used for the page at index.
func (w *Workspace) PagePath(index int) string {
	return filepath.Join(w.Dir, fmt.Sprintf("page_%04d.png", index))
}

// WritePage encodes page as PNG inside the workspace.
func (w *Workspace) WritePage(page EnhancedPage) (PageFile, error) {
	path := w.PagePath(page.Index)
	f, err := os.Create(path)
	if err != nil {
		return PageFile{}, fmt.Errorf("%w: create %s: %w", ErrWorkspace, path, err)
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	if err := png.Encode(buf, page.Image); err != nil {
		return PageFile{}, fmt.Errorf("%w: encode page %d: %w", ErrEnhancement, page.Index, err)
	}
	if err := buf.Flush(); err != nil {
		return PageFile{}, fmt.Errorf("%w: write %s: %w", ErrWorkspace, path, err)
	}
	if err := f.Close(); err != nil {
		return PageFile{}, fmt.Errorf("%w: close %s: %w", ErrWorkspace, path, err)
	}
	return PageFile{Index: page.Index, Path: path, DPI: page.DPI}, nil
}

// Close deletes the workspace and everything in it.
func (w *Workspace) Close() error {
	if w == nil || w.Dir == "" {
		return nil
	}
	return os.RemoveAll(w.Dir)
}
