package ocr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/documentcleanflow/internal/gcp"
)

// pageBreak is the marker the model is asked to put between pages.
const pageBreak = "<<<PAGE_BREAK>>>"

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// ContentGenerator is the part of *genai.GenerativeModel the engine uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiEngine sends the document inline to a Gemini model on Vertex AI.
type GeminiEngine struct {
	model  ContentGenerator
	closer io.Closer
}

func NewGeminiEngine(model ContentGenerator) *GeminiEngine {
	return &GeminiEngine{model: model}
}

func (e *GeminiEngine) Name() string { return "gemini" }

// Close releases the client the model belongs to, if the engine owns one.
func (e *GeminiEngine) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

func (e *GeminiEngine) Convert(ctx context.Context, req Request) error {
	logCtx := slog.With("engine", e.Name(), "inputPath", req.InputPath)

	data, err := os.ReadFile(req.InputPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", req.InputPath, err)
	}

	prompt := genai.Text(buildPrompt(req))
	filePart := genai.Blob{MIMEType: req.MIMEType, Data: data}

	resp, err := e.model.GenerateContent(ctx, filePart, prompt)
	if err != nil {
		logCtx.Error("Error calling Vertex AI", "error", err)
		return fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	content, parts := extractText(resp)
	if parts > 1 {
		logCtx.Warn("Gemini response contained multiple text parts; they have been concatenated.", "textParts", parts)
	}
	if isRefusal(content) {
		logCtx.Error("Gemini response indicates refusal", "response", content)
		return fmt.Errorf("%w: %s", ErrRefusal, req.InputPath)
	}
	if content == "" {
		logCtx.Warn("No content extracted from response. Treating as empty document.")
	}

	out, err := RenderPages(req.Format, splitPages(content))
	if err != nil {
		return err
	}
	logCtx.Info("Conversion complete.", "outputPath", req.OutputPath)
	return writeOutput(req.OutputPath, out)
}

func buildPrompt(req Request) string {
	langs := "any language"
	if len(req.Languages) > 0 {
		langs = strings.Join(req.Languages, ", ")
	}
	var style string
	switch req.Format {
	case FormatMarkdown:
		style = "Markdown. Use headings, lists and tables where the document uses them."
	default:
		style = "Plain text without any markup."
	}
	style += " Do not add page headings. Put a line containing only " + pageBreak + " between consecutive pages."
	return fmt.Sprintf(gcp.ConverterUserPromptTemplate, langs, style)
}

// extractText concatenates the text parts of the first candidate and strips
// any code fence the model wrapped them in.
func extractText(resp *genai.GenerateContentResponse) (string, int) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", 0
	}
	var b strings.Builder
	found := 0
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
			found++
		}
	}
	return stripFences(b.String()), found
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isRefusal(content string) bool {
	lower := strings.ToLower(content)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func splitPages(content string) []PageText {
	if content == "" {
		return []PageText{}
	}
	raw := strings.Split(content, pageBreak)
	pages := make([]PageText, len(raw))
	for i, text := range raw {
		pages[i] = PageText{Number: i + 1, Text: strings.TrimSpace(text)}
	}
	return pages
}
