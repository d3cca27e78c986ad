package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clypser/finance-bot/internal/domain"
	infra "github.com/clypser/finance-bot/internal/infra/bigquery"
	"github.com/clypser/finance-bot/internal/jobs"
	"github.com/clypser/finance-bot/internal/jobs/inmemory"
	"github.com/clypser/finance-bot/internal/quota"
	"github.com/clypser/finance-bot/internal/records"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockService implements RecordsService with overridable functions.
type mockService struct {
	SubmitFunc          func(ctx context.Context, accountID, text string) (records.Submission, error)
	ListFunc            func(ctx context.Context, accountID string, period records.Period) (*records.Report, error)
	DeleteFunc          func(ctx context.Context, accountID, recordID string) error
	QuotaFunc           func(ctx context.Context, accountID string) (quota.Decision, error)
	RegisterAccountFunc func(ctx context.Context, accountID, currency string) (*infra.AccountRow, error)
}

func (m *mockService) Submit(ctx context.Context, accountID, text string) (records.Submission, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, accountID, text)
	}
	return records.Submission{}, errors.New("not implemented")
}

func (m *mockService) List(ctx context.Context, accountID string, period records.Period) (*records.Report, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, accountID, period)
	}
	return nil, errors.New("not implemented")
}

func (m *mockService) Delete(ctx context.Context, accountID, recordID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, accountID, recordID)
	}
	return errors.New("not implemented")
}

func (m *mockService) Quota(ctx context.Context, accountID string) (quota.Decision, error) {
	if m.QuotaFunc != nil {
		return m.QuotaFunc(ctx, accountID)
	}
	return quota.Decision{}, errors.New("not implemented")
}

func (m *mockService) RegisterAccount(ctx context.Context, accountID, currency string) (*infra.AccountRow, error) {
	if m.RegisterAccountFunc != nil {
		return m.RegisterAccountFunc(ctx, accountID, currency)
	}
	return nil, errors.New("not implemented")
}

// mockPublisher records published jobs and saves them to an optional store.
type mockPublisher struct {
	err       error
	store     jobs.JobStore
	published []*jobs.ExtractMessageJob
}

func (p *mockPublisher) PublishExtractMessage(ctx context.Context, job *jobs.ExtractMessageJob) error {
	if p.err != nil {
		return p.err
	}
	job.JobID = fmt.Sprintf("job-%d", len(p.published)+1)
	job.Status = jobs.JobStatusPending
	p.published = append(p.published, job)
	if p.store != nil {
		return p.store.SaveJob(ctx, job)
	}
	return nil
}

func (p *mockPublisher) Close() error { return nil }

func newTestRouter(svc RecordsService, pub *mockPublisher, store jobs.JobStore) http.Handler {
	if pub == nil {
		pub = &mockPublisher{store: store}
	}
	return NewRouter(svc, pub, store, zerolog.Nop())
}

func do(t *testing.T, h http.Handler, method, target, accountID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if accountID != "" {
		req.Header.Set("X-Account-ID", accountID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCreateRecord(t *testing.T) {
	stored := records.Submission{
		Decision: quota.Decision{Admitted: true, Remaining: 49},
		Record: &records.Record{
			ID:       "rec-1",
			Amount:   decimal.RequireFromString("25000"),
			Currency: "UZS",
			Category: "Taxi",
			Type:     domain.MovementExpense,
		},
	}

	tests := []struct {
		name       string
		body       string
		sub        records.Submission
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "stored", body: `{"text":"taxi 25k"}`, sub: stored, wantStatus: http.StatusCreated},
		{name: "no amount", body: `{"text":"coffee"}`, err: fmt.Errorf("Submit: %w", domain.ErrNoAmountFound), wantStatus: http.StatusUnprocessableEntity, wantError: "Couldn't find an amount in the message"},
		{name: "unknown account", body: `{"text":"taxi 5"}`, err: fmt.Errorf("Submit: %w", records.ErrAccountNotFound), wantStatus: http.StatusNotFound, wantError: "Account not found"},
		{name: "limit reached", body: `{"text":"taxi 5"}`, sub: records.Submission{Decision: quota.Decision{Admitted: false}}, wantStatus: http.StatusTooManyRequests, wantError: "Weekly limit reached"},
		{name: "storage failure", body: `{"text":"taxi 5"}`, err: errors.New("bigquery down"), wantStatus: http.StatusInternalServerError, wantError: "Failed to save record"},
		{name: "invalid json", body: `{`, wantStatus: http.StatusBadRequest, wantError: "Invalid request body"},
		{name: "empty text", body: `{"text":"   "}`, wantStatus: http.StatusBadRequest, wantError: "Text is required"},
		{name: "too long", body: `{"text":"` + strings.Repeat("a", maxTextLength+1) + `"}`, wantStatus: http.StatusRequestEntityTooLarge, wantError: "Text is too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAccount, gotText string
			svc := &mockService{
				SubmitFunc: func(ctx context.Context, accountID, text string) (records.Submission, error) {
					gotAccount, gotText = accountID, text
					return tt.sub, tt.err
				},
			}

			rec := do(t, newTestRouter(svc, nil, inmemory.NewStore()), http.MethodPost, "/api/records", "42", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			body := decodeBody(t, rec)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
				return
			}

			assert.Equal(t, "42", gotAccount)
			assert.Equal(t, "taxi 25k", gotText)
			record := body["record"].(map[string]interface{})
			assert.Equal(t, "rec-1", record["id"])
			assert.Equal(t, "25000", record["amount"])
			assert.Equal(t, "expense", record["type"])
			assert.Equal(t, float64(49), body["quota"].(map[string]interface{})["remaining"])
		})
	}
}

func TestRoutes_RequireAccount(t *testing.T) {
	h := newTestRouter(&mockService{}, nil, inmemory.NewStore())

	for _, target := range []string{"/api/records", "/api/quota", "/api/jobs"} {
		rec := do(t, h, http.MethodGet, target, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}

	rec := do(t, h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	h := newTestRouter(&mockService{}, nil, inmemory.NewStore())
	rec := do(t, h, http.MethodPatch, "/api/records", "42", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListRecords(t *testing.T) {
	var gotPeriod records.Period
	svc := &mockService{
		ListFunc: func(ctx context.Context, accountID string, period records.Period) (*records.Report, error) {
			gotPeriod = period
			return &records.Report{
				Period:  period,
				Records: []records.Record{{ID: "r1"}},
				Totals:  []records.CategoryTotal{{Name: "Taxi", Currency: "UZS", Value: decimal.RequireFromString("25000")}},
				Count:   1,
			}, nil
		},
	}
	h := newTestRouter(svc, nil, inmemory.NewStore())

	rec := do(t, h, http.MethodGet, "/api/records?period=week", "42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, records.PeriodWeek, gotPeriod)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["total"])
	totals := body["totals"].([]interface{})
	require.Len(t, totals, 1)
	assert.Equal(t, "Taxi", totals[0].(map[string]interface{})["name"])

	rec = do(t, h, http.MethodGet, "/api/records", "42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, records.PeriodMonth, gotPeriod)

	rec = do(t, h, http.MethodGet, "/api/records?period=year", "42", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteRecord(t *testing.T) {
	var gotAccount, gotID string
	svc := &mockService{
		DeleteFunc: func(ctx context.Context, accountID, recordID string) error {
			gotAccount, gotID = accountID, recordID
			if recordID == "broken" {
				return errors.New("dml failed")
			}
			return nil
		},
	}
	h := newTestRouter(svc, nil, inmemory.NewStore())

	rec := do(t, h, http.MethodDelete, "/api/records/rec-9", "42", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "42", gotAccount)
	assert.Equal(t, "rec-9", gotID)

	rec = do(t, h, http.MethodDelete, "/api/records/broken", "42", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetQuota(t *testing.T) {
	svc := &mockService{
		QuotaFunc: func(ctx context.Context, accountID string) (quota.Decision, error) {
			if accountID == "missing" {
				return quota.Decision{}, fmt.Errorf("Quota: %w", records.ErrAccountNotFound)
			}
			return quota.Decision{Admitted: true, Remaining: 12}, nil
		},
	}
	h := newTestRouter(svc, nil, inmemory.NewStore())

	rec := do(t, h, http.MethodGet, "/api/quota", "42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["admitted"])
	assert.Equal(t, float64(12), body["remaining"])

	rec = do(t, h, http.MethodGet, "/api/quota", "missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutAccount(t *testing.T) {
	var gotCurrency string
	svc := &mockService{
		RegisterAccountFunc: func(ctx context.Context, accountID, currency string) (*infra.AccountRow, error) {
			gotCurrency = currency
			if currency == "" {
				currency = "UZS"
			}
			return &infra.AccountRow{AccountID: accountID, Currency: strings.ToUpper(currency)}, nil
		},
	}
	h := newTestRouter(svc, nil, inmemory.NewStore())

	rec := do(t, h, http.MethodPut, "/api/account", "42", `{"currency":"kzt"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "kzt", gotCurrency)
	assert.Equal(t, "KZT", decodeBody(t, rec)["currency"])

	rec = do(t, h, http.MethodPut, "/api/account", "42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", gotCurrency)
	assert.Equal(t, "UZS", decodeBody(t, rec)["currency"])

	rec = do(t, h, http.MethodPut, "/api/account", "42", `nope`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessagesAndJobs(t *testing.T) {
	store := inmemory.NewStore()
	pub := &mockPublisher{store: store}
	h := newTestRouter(&mockService{}, pub, store)

	rec := do(t, h, http.MethodPost, "/api/messages", "42", `{"text":"Lent Anton 100k"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, "pending", body["status"])
	require.Len(t, pub.published, 1)
	assert.Equal(t, "42", pub.published[0].AccountID)
	assert.Equal(t, "Lent Anton 100k", pub.published[0].Text)

	rec = do(t, h, http.MethodGet, "/api/jobs/job-1", "42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Lent Anton 100k", decodeBody(t, rec)["text"])

	rec = do(t, h, http.MethodGet, "/api/jobs/job-1", "7", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "other accounts cannot see the job")

	rec = do(t, h, http.MethodGet, "/api/jobs/nope", "42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/jobs", "42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])

	rec = do(t, h, http.MethodGet, "/api/jobs", "7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])
}

func TestEnqueueMessage_PublishFails(t *testing.T) {
	store := inmemory.NewStore()
	h := newTestRouter(&mockService{}, &mockPublisher{err: errors.New("queue is closed")}, store)

	rec := do(t, h, http.MethodPost, "/api/messages", "42", `{"text":"taxi 5"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
