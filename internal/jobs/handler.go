package jobs

import (
	"context"
	"errors"

	"github.com/clypser/finance-bot/internal/domain"
	"github.com/clypser/finance-bot/internal/records"
)

// Submitter stores a message as a record. *records.Service implements it.
type Submitter interface {
	Submit(ctx context.Context, accountID, text string) (records.Submission, error)
}

// ExtractMessageHandler returns the handler that submits a job's message.
// A missing amount and an unknown account are permanent failures; a refused
// quota completes the job with OutcomeLimitReached.
func ExtractMessageHandler(s Submitter) JobHandler {
	return func(ctx context.Context, job *ExtractMessageJob) error {
		sub, err := s.Submit(ctx, job.AccountID, job.Text)
		switch {
		case errors.Is(err, domain.ErrNoAmountFound):
			job.Outcome = OutcomeNoAmount
			return NoRetry(err)
		case errors.Is(err, records.ErrAccountNotFound):
			job.Outcome = OutcomeUnknownAccount
			return NoRetry(err)
		case err != nil:
			return err
		}

		job.Remaining = sub.Decision.Remaining
		if sub.Record == nil {
			job.Outcome = OutcomeLimitReached
			return nil
		}

		job.Outcome = OutcomeStored
		job.RecordID = sub.Record.ID
		return nil
	}
}
