package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Converter Model Prompts ---
const ConverterSystemPrompt = "You are a document OCR and conversion engine. You receive a scanned document that has already been cleaned for legibility. Your task is to transcribe all of its content faithfully into the requested output format. Accuracy, completeness and preservation of the original reading order are of utmost importance."

// ConverterUserPromptTemplate takes the output format instructions and the
// expected document languages.
const ConverterUserPromptTemplate = `You will be provided with a scanned document.

Transcribe the document following these instructions:

Text: Transcribe all text exactly as written. The document is expected to be written in: %s. Do not translate.
Reading order: Preserve the page order and the natural reading order within each page.
Tables: Reproduce tables with all rows and columns. If a table contains merged cells, repeat the merged value in every cell it covers.
Images: Replace each non-text image with a short bracketed description.
Headers and Footers: Keep page numbers and running headers out of the body text.

Output format: %s

Return ONLY the converted content. Do not include any preamble and do not surround the output with code fences.`

// VertexClient holds the generative model used for document conversion.
type VertexClient struct {
	ConverterModel *genai.GenerativeModel
	baseClient     *genai.Client
}

// NewVertexClient creates a client whose converter model is modelName.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	converterModel := baseClient.GenerativeModel(modelName)
	converterModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ConverterSystemPrompt)},
	}
	// Transcription must not be creative.
	converterModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}
	converterModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		ConverterModel: converterModel,
		baseClient:     baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
