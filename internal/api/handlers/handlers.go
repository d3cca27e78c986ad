// Package handlers exposes record extraction, listing and quota over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clypser/finance-bot/internal/api/middleware"
	"github.com/clypser/finance-bot/internal/domain"
	infra "github.com/clypser/finance-bot/internal/infra/bigquery"
	"github.com/clypser/finance-bot/internal/jobs"
	"github.com/clypser/finance-bot/internal/quota"
	"github.com/clypser/finance-bot/internal/records"
	"github.com/rs/zerolog"
)

// maxTextLength bounds a single message body.
const maxTextLength = 4096

// RecordsService is the part of *records.Service the HTTP layer uses.
type RecordsService interface {
	Submit(ctx context.Context, accountID, text string) (records.Submission, error)
	List(ctx context.Context, accountID string, period records.Period) (*records.Report, error)
	Delete(ctx context.Context, accountID, recordID string) error
	Quota(ctx context.Context, accountID string) (quota.Decision, error)
	RegisterAccount(ctx context.Context, accountID, currency string) (*infra.AccountRow, error)
}

type textRequest struct {
	Text string `json:"text"`
}

// decodeText reads a {"text": ...} body and validates it.
func decodeText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return "", false
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Text is required")
		return "", false
	}
	if len(text) > maxTextLength {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Text is too long")
		return "", false
	}
	return text, true
}

// RecordsHandler handles record-related endpoints.
type RecordsHandler struct {
	svc RecordsService
	log zerolog.Logger
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(svc RecordsService, log zerolog.Logger) *RecordsHandler {
	return &RecordsHandler{
		svc: svc,
		log: log,
	}
}

// CreateRecord handles POST /api/records
func (h *RecordsHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := middleware.AccountIDFromContext(ctx)

	text, ok := decodeText(w, r)
	if !ok {
		return
	}

	sub, err := h.svc.Submit(ctx, accountID, text)
	switch {
	case errors.Is(err, domain.ErrNoAmountFound):
		middleware.WriteError(w, http.StatusUnprocessableEntity, "Couldn't find an amount in the message")
		return
	case errors.Is(err, records.ErrAccountNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Account not found")
		return
	case err != nil:
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to submit record")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save record")
		return
	}

	if sub.Record == nil {
		middleware.WriteJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error": "Weekly limit reached",
			"quota": sub.Decision,
		})
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, sub)
}

// ListRecords handles GET /api/records?period=day|week|month
func (h *RecordsHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := middleware.AccountIDFromContext(ctx)

	period, err := records.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Period must be day, week or month")
		return
	}

	report, err := h.svc.List(ctx, accountID, period)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to list records")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list records")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report)
}

// DeleteRecord handles DELETE /api/records/{id}
func (h *RecordsHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := middleware.AccountIDFromContext(ctx)

	recordID := r.PathValue("id")
	if recordID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Record ID is required")
		return
	}

	if err := h.svc.Delete(ctx, accountID, recordID); err != nil {
		h.log.Error().Err(err).Str("record_id", recordID).Msg("Failed to delete record")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete record")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AccountHandler handles account and quota endpoints.
type AccountHandler struct {
	svc RecordsService
	log zerolog.Logger
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(svc RecordsService, log zerolog.Logger) *AccountHandler {
	return &AccountHandler{
		svc: svc,
		log: log,
	}
}

// PutAccount handles PUT /api/account
func (h *AccountHandler) PutAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := middleware.AccountIDFromContext(ctx)

	var req struct {
		Currency string `json:"currency"`
	}
	// An empty body keeps the default currency.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	acct, err := h.svc.RegisterAccount(ctx, accountID, req.Currency)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to register account")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save account")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"account_id": acct.AccountID,
		"currency":   acct.Currency,
	})
}

// GetQuota handles GET /api/quota
func (h *AccountHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := middleware.AccountIDFromContext(ctx)

	decision, err := h.svc.Quota(ctx, accountID)
	switch {
	case errors.Is(err, records.ErrAccountNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Account not found")
		return
	case err != nil:
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to check quota")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to check quota")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, decision)
}

// MessagesHandler accepts messages for asynchronous extraction and reports
// on the resulting jobs.
type MessagesHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

// NewMessagesHandler creates a new messages handler.
func NewMessagesHandler(publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *MessagesHandler {
	return &MessagesHandler{
		publisher: publisher,
		store:     store,
		log:       log,
	}
}

// EnqueueMessage handles POST /api/messages
func (h *MessagesHandler) EnqueueMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := middleware.AccountIDFromContext(ctx)

	text, ok := decodeText(w, r)
	if !ok {
		return
	}

	job := &jobs.ExtractMessageJob{
		AccountID: accountID,
		Text:      text,
	}

	if err := h.publisher.PublishExtractMessage(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue message job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue message")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("account_id", accountID).Msg("Message job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetJob handles GET /api/jobs/{id}. Jobs of other accounts are reported
// as not found.
func (h *MessagesHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := middleware.AccountIDFromContext(ctx)
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		if !errors.Is(err, jobs.ErrJobNotFound) {
			h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		}
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if job.AccountID != accountID {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *MessagesHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		AccountID: middleware.AccountIDFromContext(ctx),
		Status:    jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
