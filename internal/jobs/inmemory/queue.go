package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clypser/finance-bot/internal/jobs"
	"github.com/clypser/finance-bot/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultWorkers    = 5
	defaultMaxRetries = 3
	defaultBackoff    = time.Second
)

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// This implementation is suitable for single-instance deployments and testing.
type Queue struct {
	jobChan   chan *jobs.ExtractMessageJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	workers int
	backoff time.Duration
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithBackoff sets the base delay before a retry. The delay doubles with
// each retry.
func WithBackoff(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.backoff = d
		}
	}
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishExtractMessage blocks.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...Option) *Queue {
	q := &Queue{
		jobChan:   make(chan *jobs.ExtractMessageJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   defaultWorkers,
		backoff:   defaultBackoff,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// PublishExtractMessage implements the Publisher interface.
// It enqueues a message extraction job for asynchronous processing.
func (q *Queue) PublishExtractMessage(ctx context.Context, job *jobs.ExtractMessageJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()

	if closed {
		return fmt.Errorf("queue is closed")
	}

	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = defaultMaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface.
// Jobs are handled concurrently by the configured number of workers.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.ExtractMessageJob, handler jobs.JobHandler) {
	log := logger.FromContext(ctx).With().
		Str("job_id", job.JobID).
		Str("job_type", string(job.GetType())).
		Str("account_id", job.AccountID).
		Logger()

	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now

	q.saveJob(ctx, log, job)

	err := handler(logger.WithContext(ctx, log), job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	retry := false
	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	case errors.Is(err, jobs.ErrNoRetry) || job.RetryCount >= job.MaxRetries:
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
		log.Warn().Err(err).Int("retry_count", job.RetryCount).Msg("job failed")
	default:
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		retry = true
	}

	q.saveJob(ctx, log, job)

	if !retry {
		return
	}

	backoff := q.backoff << (job.RetryCount - 1)
	log.Warn().Err(err).Int("retry_count", job.RetryCount).Dur("backoff", backoff).Msg("job failed, retrying")

	next := *job
	next.Status = jobs.JobStatusPending
	next.StartedAt = nil
	next.CompletedAt = nil
	time.AfterFunc(backoff, func() {
		if err := q.PublishExtractMessage(ctx, &next); err != nil {
			log.Error().Err(err).Msg("failed to re-enqueue job")
		}
	})
}

// saveJob records the job's state. A failed save is logged and processing
// continues: the handler result does not depend on the status record.
func (q *Queue) saveJob(ctx context.Context, log zerolog.Logger, job *jobs.ExtractMessageJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		log.Error().Err(err).Str("status", string(job.Status)).Msg("failed to save job")
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
// It closes the queue and releases resources.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
