package models

import "time"

// Job statuses, in the order a successful job passes through them.
const (
	StatusValidating    = "VALIDATING"
	StatusPreprocessing = "PREPROCESSING"
	StatusConverting    = "CONVERTING"
	StatusCompleted     = "COMPLETED"
	StatusFailed        = "FAILED"
)

// ConversionJob is the Firestore record for one uploaded document.
type ConversionJob struct {
	FileHash            string    `firestore:"fileHash,omitempty"`
	OriginalFilename    string    `firestore:"originalFilename,omitempty"`
	SourceBucket        string    `firestore:"sourceBucket,omitempty"`
	Status              string    `firestore:"status,omitempty"`
	ErrorDetails        string    `firestore:"errorDetails,omitempty"`
	PageCount           int       `firestore:"pageCount,omitempty"`
	OutputFormat        string    `firestore:"outputFormat,omitempty"`
	Engine              string    `firestore:"engine,omitempty"`
	CleanedGCSUri       string    `firestore:"cleanedGcsUri,omitempty"`
	OutputGCSUri        string    `firestore:"outputGcsUri,omitempty"`
	WorkflowExecutionID string    `firestore:"workflowExecutionId,omitempty"` // For traceability
	CreatedAt           time.Time `firestore:"createdAt,omitempty"`
}
