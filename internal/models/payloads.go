package models

// GCSEvent is the data of a storage object finalized CloudEvent.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// WorkflowArgument is passed to the downstream workflow once a job completes.
type WorkflowArgument struct {
	DocumentID   string `json:"documentId"`
	PageCount    int    `json:"pageCount"`
	OutputGCSUri string `json:"outputGcsUri"`
}

// BatchConvertRequest is the input for the batch-converter function. Either
// Prefix or Objects selects the inputs.
type BatchConvertRequest struct {
	Bucket       string   `json:"bucket"`
	Prefix       string   `json:"prefix,omitempty"`
	Objects      []string `json:"objects,omitempty"`
	OutputFormat string   `json:"outputFormat,omitempty"`
	CreateZip    bool     `json:"createZip,omitempty"`
}

// BatchConvertResponse is the output of the batch-converter function.
type BatchConvertResponse struct {
	Status      string          `json:"status"`
	ExecutionID string          `json:"executionId"`
	Outputs     []string        `json:"outputs"`
	ArchiveUri  string          `json:"archiveUri,omitempty"`
	Failures    []ObjectFailure `json:"failures,omitempty"`
}

// ObjectFailure names an input that could not be converted.
type ObjectFailure struct {
	Object string `json:"object"`
	Error  string `json:"error"`
}
