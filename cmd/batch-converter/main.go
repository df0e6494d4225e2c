package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/documentcleanflow/internal/config"
	"github.com/Lllllllleong/documentcleanflow/internal/models"
	"github.com/Lllllllleong/documentcleanflow/internal/services"
)

var (
	batchInstance *services.BatchConverterFunction
	once          sync.Once
	initErr       error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.Load().SlogLevel()}))
	slog.SetDefault(logger)

	functions.HTTP("HandleBatchConvert", handleBatchConvert)
}

// main is required by the Go Functions Framework.
func main() {}

func handleBatchConvert(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		batchInstance, initErr = services.NewBatchConverter(context.Background())
	})
	if initErr != nil {
		slog.Error("Batch converter initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.BatchConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := batchInstance.Process(r.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRequest) {
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
