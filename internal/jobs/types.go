package jobs

import (
	"context"
	"errors"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeExtractMessage turns one inbound chat message into a record.
	JobTypeExtractMessage JobType = "extract_message"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// Outcome says what a finished message job did, in terms a client can render.
type Outcome string

const (
	OutcomeStored         Outcome = "stored"
	OutcomeLimitReached   Outcome = "limit_reached"
	OutcomeNoAmount       Outcome = "no_amount"
	OutcomeUnknownAccount Outcome = "unknown_account"
)

// ErrJobNotFound is returned by stores for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// ErrNoRetry marks a failure that retrying cannot fix.
var ErrNoRetry = errors.New("not retryable")

type noRetryError struct{ err error }

func (e *noRetryError) Error() string { return e.err.Error() }

func (e *noRetryError) Unwrap() []error { return []error{e.err, ErrNoRetry} }

// NoRetry wraps err so that queues fail the job immediately. errors.Is
// still matches both err and ErrNoRetry.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &noRetryError{err: err}
}

// ExtractMessageJob is one inbound message waiting to be turned into a record.
type ExtractMessageJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// AccountID owns the message.
	AccountID string `json:"account_id"`

	// Text is the raw message.
	Text string `json:"text"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// Outcome is set once the job has finished.
	Outcome Outcome `json:"outcome,omitempty"`

	// RecordID is the stored record, when Outcome is stored.
	RecordID string `json:"record_id,omitempty"`

	// Remaining is the free-tier allowance left at admission time.
	Remaining int `json:"remaining"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// GetType returns the job type.
func (j *ExtractMessageJob) GetType() JobType {
	return JobTypeExtractMessage
}

// Publisher defines the interface for publishing jobs to a queue.
// This abstraction allows for different queue implementations (in-memory, Cloud Tasks, Pub/Sub).
type Publisher interface {
	// PublishExtractMessage publishes a message extraction job.
	PublishExtractMessage(ctx context.Context, job *ExtractMessageJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. It may set the job's Outcome, RecordID and
// Remaining. A returned error is retried unless it wraps ErrNoRetry.
type JobHandler func(ctx context.Context, job *ExtractMessageJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ExtractMessageJob) error

	// GetJob retrieves a job by ID. Unknown ids return ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*ExtractMessageJob, error)

	// ListJobs retrieves jobs with optional filtering, oldest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ExtractMessageJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// AccountID filters jobs by account.
	AccountID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
