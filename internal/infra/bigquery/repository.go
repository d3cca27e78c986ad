// Package bigquery stores accounts and records in BigQuery. Every operation
// has a ...WithClient form taking an explicit client; Repository wraps them
// around one shared client.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

const (
	// DefaultDatasetID is the dataset used when none is configured.
	DefaultDatasetID = "finance"

	accountsTable = "accounts"
	recordsTable  = "records"
)

// Repository is the BigQuery-backed account and record store. It holds a
// shared client to avoid creating a new connection for each operation.
type Repository struct {
	client    *bigquery.Client
	datasetID string
}

// NewRepository creates a Repository with its own BigQuery client. An empty
// projectID is detected from the environment.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	if projectID == "" {
		projectID = bigquery.DetectProjectID
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, datasetID), nil
}

// NewRepositoryWithClient wraps an existing client.
func NewRepositoryWithClient(client *bigquery.Client, datasetID string) *Repository {
	if datasetID == "" {
		datasetID = DefaultDatasetID
	}
	return &Repository{
		client:    client,
		datasetID: datasetID,
	}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// tableRef returns the fully qualified, quoted name of a table.
func tableRef(client *bigquery.Client, datasetID, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", client.Project(), datasetID, table)
}

// runDML runs a data-manipulation query and waits for it to finish.
func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
