package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/Lllllllleong/documentcleanflow/internal/preprocess"
)

// TesseractEngine recognizes text locally with Tesseract. PDFs are rendered
// page by page first; images are handed to Tesseract as they are.
type TesseractEngine struct {
	rasterizer    preprocess.Rasterizer
	clientFactory func() *gosseract.Client
}

// NewTesseractEngine constructs a Tesseract-backed engine rendering PDFs with rasterizer.
func NewTesseractEngine(rasterizer preprocess.Rasterizer) *TesseractEngine {
	return &TesseractEngine{rasterizer: rasterizer, clientFactory: gosseract.NewClient}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Convert recognizes every page of req.InputPath and writes the rendered result.
func (e *TesseractEngine) Convert(ctx context.Context, req Request) error {
	logCtx := slog.With("engine", e.Name(), "inputPath", req.InputPath)

	var pages []PageText
	var err error
	if req.MIMEType == "application/pdf" {
		pages, err = e.recognizePDF(ctx, req)
	} else {
		pages, err = e.recognizeImage(req)
	}
	if err != nil {
		logCtx.Error("Tesseract recognition failed", "error", err)
		return err
	}

	data, err := RenderPages(req.Format, pages)
	if err != nil {
		return err
	}
	logCtx.Info("Recognition complete.", "pageCount", len(pages), "outputPath", req.OutputPath)
	return writeOutput(req.OutputPath, data)
}

func (e *TesseractEngine) recognizePDF(ctx context.Context, req Request) ([]PageText, error) {
	images, err := e.rasterizer.Rasterize(ctx, req.InputPath)
	if err != nil {
		return nil, err
	}

	client := e.clientFactory()
	defer client.Close()
	if err := setLanguages(client, req.Languages); err != nil {
		return nil, err
	}

	pages := make([]PageText, 0, len(images))
	var buf bytes.Buffer
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf.Reset()
		if err := png.Encode(&buf, img.Image); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", img.Index+1, err)
		}
		if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
			return nil, fmt.Errorf("set image for page %d: %w", img.Index+1, err)
		}
		text, err := client.Text()
		if err != nil {
			return nil, fmt.Errorf("recognize page %d: %w", img.Index+1, err)
		}
		pages = append(pages, PageText{Number: img.Index + 1, Text: strings.TrimSpace(text)})
	}
	return pages, nil
}

func (e *TesseractEngine) recognizeImage(req Request) ([]PageText, error) {
	client := e.clientFactory()
	defer client.Close()
	if err := setLanguages(client, req.Languages); err != nil {
		return nil, err
	}
	if err := client.SetImage(req.InputPath); err != nil {
		return nil, fmt.Errorf("set image %s: %w", req.InputPath, err)
	}
	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize %s: %w", req.InputPath, err)
	}
	return []PageText{{Number: 1, Text: strings.TrimSpace(text)}}, nil
}

func setLanguages(c *gosseract.Client, langs []string) error {
	if len(langs) == 0 {
		return nil
	}
	if err := c.SetLanguage(langs...); err != nil {
		return fmt.Errorf("set languages %v: %w", langs, err)
	}
	return nil
}
