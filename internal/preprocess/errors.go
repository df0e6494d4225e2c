package preprocess

import "errors"

// Error kinds surfaced by the preprocessing pipeline. Every failure returned
// from this package wraps exactly one of them, so callers can branch with
// errors.Is while still reaching the underlying cause.
var (
	ErrSourceRead  = errors.New("source document unreadable")
	ErrEnhancement = errors.New("page enhancement failed")
	ErrRebuild     = errors.New("pdf rebuild failed")
	ErrWorkspace   = errors.New("workspace unavailable")
)
