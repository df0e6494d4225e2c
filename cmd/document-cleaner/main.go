package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/documentcleanflow/internal/config"
	"github.com/Lllllllleong/documentcleanflow/internal/models"
	"github.com/Lllllllleong/documentcleanflow/internal/services"
)

var (
	cleanerInstance *services.CleanerFunction
	once            sync.Once
	initErr         error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.Load().SlogLevel()}))
	slog.SetDefault(logger)

	functions.CloudEvent("CleanDocument", cleanDocument)
}

// main is required by the Go Functions Framework.
func main() {}

// cleanDocument runs for every object finalized in the input bucket.
func cleanDocument(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		cleanerInstance, initErr = services.NewCleaner(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Errors are logged with context inside Process.
	return cleanerInstance.Process(ctx, gcsEvent)
}
