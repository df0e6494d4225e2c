package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/documentcleanflow/internal/models"
)

// NewFirestoreClient creates a Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// JobStore records conversion jobs in a Firestore collection.
type JobStore struct {
	client     *firestore.Client
	collection string
}

func NewJobStore(client *firestore.Client, collection string) *JobStore {
	return &JobStore{client: client, collection: collection}
}

// FindByHash returns the ID of a job already created for fileHash, or "".
func (s *JobStore) FindByHash(ctx context.Context, fileHash string) (string, error) {
	docs, err := s.client.Collection(s.collection).Where("fileHash", "==", fileHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return docs[0].Ref.ID, nil
	}
	return "", nil
}

// CreateJob adds job to the collection and returns its ID.
func (s *JobStore) CreateJob(ctx context.Context, job models.ConversionJob) (string, error) {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	ref, _, err := s.client.Collection(s.collection).Add(ctx, job)
	if err != nil {
		return "", fmt.Errorf("failed to create job document: %w", err)
	}
	return ref.ID, nil
}

// UpdateStatus sets the job's status. Extra fields are applied in the same write.
func (s *JobStore) UpdateStatus(ctx context.Context, jobID, status string, extra map[string]interface{}) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	}
	for path, value := range extra {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	if _, err := s.client.Collection(s.collection).Doc(jobID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update job %s to %s: %w", jobID, status, err)
	}
	return nil
}

// MarkFailed records errDetails on the job and sets it to FAILED.
func (s *JobStore) MarkFailed(ctx context.Context, jobID, errDetails string) error {
	return s.UpdateStatus(ctx, jobID, models.StatusFailed, map[string]interface{}{"errorDetails": errDetails})
}
