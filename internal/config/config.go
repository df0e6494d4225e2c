// Package config reads pipeline settings from the environment.
package config

import (
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/documentcleanflow/internal/preprocess"
)

// Config holds the settings shared by the CLI and the cloud functions.
type Config struct {
	TempRoot          string
	RenderDPI         float64
	PageWorkers       int
	PreprocessTimeout time.Duration
	KeepWorkspace     bool

	OutputDir      string
	OutputFormat   string
	OCREngine      string
	OCRLanguages   []string
	FileWorkers    int
	KeepCleanedPDF bool

	LogLevel       string
	ProjectID      string
	VertexAIRegion string
	GeminiModel    string
}

// Load builds a Config from the environment, falling back to defaults for
// anything unset or malformed.
func Load() Config {
	return Config{
		TempRoot:          GetEnv("PREPROCESS_TEMP_ROOT", os.TempDir()),
		RenderDPI:         GetEnvFloat("RENDER_DPI", 0),
		PageWorkers:       GetEnvInt("PAGE_WORKERS", runtime.NumCPU()),
		PreprocessTimeout: GetEnvDuration("PREPROCESS_TIMEOUT", 10*time.Minute),
		KeepWorkspace:     GetEnvBool("KEEP_WORKSPACE", false),

		OutputDir:      GetEnv("OUTPUT_DIR", "converted_docs"),
		OutputFormat:   GetEnv("OUTPUT_FORMAT", "markdown"),
		OCREngine:      GetEnv("OCR_ENGINE", "tesseract"),
		OCRLanguages:   GetEnvList("OCR_LANGUAGES", []string{"por", "eng"}),
		FileWorkers:    GetEnvInt("FILE_WORKERS", 1),
		KeepCleanedPDF: GetEnvBool("KEEP_CLEANED_PDF", false),

		LogLevel:       GetEnv("LOG_LEVEL", "info"),
		ProjectID:      GetEnv("PROJECT_ID", ""),
		VertexAIRegion: GetEnv("VERTEX_AI_REGION", "us-central1"),
		GeminiModel:    GetEnv("GEMINI_MODEL", "gemini-1.5-pro"),
	}
}

// PreprocessOptions maps the preprocessing part of c onto preprocess.Options.
func (c Config) PreprocessOptions() preprocess.Options {
	return preprocess.Options{
		TempRoot:      c.TempRoot,
		Workers:       c.PageWorkers,
		Timeout:       c.PreprocessTimeout,
		KeepWorkspace: c.KeepWorkspace,
	}
}

// SlogLevel converts LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetEnv reads an environment variable or returns a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func GetEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(GetEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func GetEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(GetEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}

func GetEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(GetEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(GetEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

// GetEnvList splits a comma separated variable, dropping blanks.
func GetEnvList(key string, fallback []string) []string {
	raw := GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
