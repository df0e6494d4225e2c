package services

import (
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

const pdfMIME = "application/pdf"

// DetectFileType guesses the MIME type of path from its extension, then from
// its first bytes. If neither is conclusive it returns the bare extension.
func DetectFileType(path string) string {
	ext := filepath.Ext(path)
	if t := mime.TypeByExtension(ext); t != "" {
		return baseMediaType(t)
	}
	if t := sniff(path); t != "" {
		return t
	}
	return ext
}

func sniff(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if n == 0 && err != nil {
		return ""
	}
	t := baseMediaType(http.DetectContentType(head[:n]))
	if t == "application/octet-stream" {
		return ""
	}
	return t
}

func baseMediaType(t string) string {
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return t
}
