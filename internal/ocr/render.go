package ocr

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// PageText is the recognized text of one page. Number is 1-based.
type PageText struct {
	Number int    `json:"page"`
	Text   string `json:"text"`
}

const pageSeparator = "\n\n---\n\n"

// RenderPages lays out page texts in the requested format.
func RenderPages(format Format, pages []PageText) ([]byte, error) {
	switch format {
	case FormatMarkdown:
		parts := make([]string, len(pages))
		for i, p := range pages {
			parts[i] = fmt.Sprintf("## Page %d\n\n%s", p.Number, strings.TrimSpace(p.Text))
		}
		return []byte(strings.Join(parts, pageSeparator) + "\n"), nil
	case FormatText:
		parts := make([]string, len(pages))
		for i, p := range pages {
			parts[i] = strings.TrimSpace(p.Text)
		}
		return []byte(strings.Join(parts, "\n\f\n") + "\n"), nil
	case FormatJSON:
		if pages == nil {
			pages = []PageText{}
		}
		return json.MarshalIndent(struct {
			Pages []PageText `json:"pages"`
		}{pages}, "", "  ")
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func writeOutput(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output %s: %w", path, err)
	}
	return nil
}
