// Package records admits, stores and lists an account's records. It is the
// caller of the extraction core: it looks up the account, consults the quota
// gate, runs extraction and persists the result.
package records

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/clypser/finance-bot/internal/domain"
	infra "github.com/clypser/finance-bot/internal/infra/bigquery"
	"github.com/clypser/finance-bot/internal/inference"
	"github.com/clypser/finance-bot/internal/logger"
	"github.com/clypser/finance-bot/internal/quota"
	"github.com/shopspring/decimal"
)

// ErrAccountNotFound is returned when the account has not been registered.
var ErrAccountNotFound = errors.New("account not found")

// Repository is the storage used by Service. *infra.Repository implements it.
type Repository interface {
	GetAccount(ctx context.Context, accountID string) (*infra.AccountRow, error)
	UpsertAccount(ctx context.Context, row *infra.AccountRow) error
	DowngradeAccount(ctx context.Context, accountID string) error
	InsertRecord(ctx context.Context, row *infra.RecordRow) error
	CountRecordsSince(ctx context.Context, accountID string, since time.Time) (int, error)
	ListRecords(ctx context.Context, accountID string, from, to time.Time) ([]*infra.RecordRow, error)
	DeleteRecord(ctx context.Context, accountID, recordID string) error
}

// Extractor turns message text into a record. *pipeline.Extractor implements it.
type Extractor interface {
	Extract(ctx context.Context, rawText, defaultCurrency string, candidates []inference.Candidate) (domain.CanonicalRecord, error)
}

// Record is the client-facing view of a stored record.
type Record struct {
	ID         string              `json:"id"`
	Amount     decimal.Decimal     `json:"amount"`
	Currency   string              `json:"currency"`
	Category   string              `json:"category"`
	Type       domain.MovementKind `json:"type"`
	SourceText string              `json:"source_text"`
	Date       string              `json:"date"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Submission is the outcome of Submit. Record is nil when the quota gate
// refused the message.
type Submission struct {
	Decision quota.Decision `json:"quota"`
	Record   *Record        `json:"record,omitempty"`
}

// CategoryTotal is the sum of expenses for one category and currency.
type CategoryTotal struct {
	Name     string          `json:"name"`
	Currency string          `json:"currency"`
	Value    decimal.Decimal `json:"value"`
}

// Report lists an account's records for a period.
type Report struct {
	Period  Period          `json:"period"`
	From    time.Time       `json:"from"`
	To      time.Time       `json:"to"`
	Records []Record        `json:"records"`
	Totals  []CategoryTotal `json:"totals"`
	Count   int             `json:"total"`
}

// Service coordinates account lookup, quota, extraction and storage.
type Service struct {
	repo            Repository
	extractor       Extractor
	candidates      []inference.Candidate
	defaultCurrency string
	now             func() time.Time
}

// NewService creates a Service. candidates is the ordered provider list
// passed to every extraction; defaultCurrency applies to accounts without one.
func NewService(repo Repository, extractor Extractor, candidates []inference.Candidate, defaultCurrency string) *Service {
	return &Service{
		repo:            repo,
		extractor:       extractor,
		candidates:      candidates,
		defaultCurrency: defaultCurrency,
		now:             time.Now,
	}
}

// RegisterAccount creates a free account or updates an existing account's
// currency. An empty currency selects the service default. The returned row
// is the stored account, so an existing pro account reports its own tier.
func (s *Service) RegisterAccount(ctx context.Context, accountID, currency string) (*infra.AccountRow, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = s.defaultCurrency
	}

	row := &infra.AccountRow{
		AccountID: accountID,
		Currency:  currency,
		Tier:      string(quota.TierFree),
		CreatedTS: s.now().UTC(),
	}
	if err := s.repo.UpsertAccount(ctx, row); err != nil {
		return nil, fmt.Errorf("RegisterAccount: %w", err)
	}

	stored, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("RegisterAccount: reading account: %w", err)
	}
	if stored == nil {
		return row, nil
	}
	return stored, nil
}

// Quota returns the account's current quota decision without side effects.
func (s *Service) Quota(ctx context.Context, accountID string) (quota.Decision, error) {
	_, decision, err := s.check(ctx, accountID)
	if err != nil {
		return quota.Decision{}, fmt.Errorf("Quota: %w", err)
	}
	return decision, nil
}

// Submit extracts a record from text and stores it if the quota admits it.
// A refused message is not an error: the Submission carries the decision.
// Errors wrap ErrAccountNotFound or domain.ErrNoAmountFound where relevant.
func (s *Service) Submit(ctx context.Context, accountID, text string) (Submission, error) {
	log := logger.FromContext(ctx).With().Str("account_id", accountID).Logger()

	acct, decision, err := s.check(ctx, accountID)
	if err != nil {
		return Submission{}, fmt.Errorf("Submit: %w", err)
	}

	if decision.Expired {
		if err := s.repo.DowngradeAccount(ctx, accountID); err != nil {
			log.Error().Err(err).Msg("failed to persist tier downgrade")
		} else {
			log.Info().Msg("pro subscription expired, account downgraded")
		}
	}

	if !decision.Admitted {
		log.Info().Int("remaining", decision.Remaining).Msg("weekly limit reached")
		return Submission{Decision: decision}, nil
	}

	currency := acct.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	rec, err := s.extractor.Extract(ctx, text, currency, s.candidates)
	if err != nil {
		return Submission{Decision: decision}, fmt.Errorf("Submit: %w", err)
	}

	row := infra.NewRecordRow(accountID, rec, s.now())
	if err := s.repo.InsertRecord(ctx, row); err != nil {
		return Submission{Decision: decision}, fmt.Errorf("Submit: storing record: %w", err)
	}

	log.Info().
		Str("record_id", row.RecordID).
		Str("kind", row.Kind).
		Str("category", row.Category).
		Msg("record stored")

	// Remaining reflects the quota after this record.
	if !decision.Unlimited && decision.Remaining > 0 {
		decision.Remaining--
	}

	view := recordFromRow(row)
	return Submission{Decision: decision, Record: &view}, nil
}

// List returns the account's records for the calendar period containing
// now, with expense totals per category and currency.
func (s *Service) List(ctx context.Context, accountID string, period Period) (*Report, error) {
	from, to := period.Range(s.now().UTC())

	rows, err := s.repo.ListRecords(ctx, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	report := &Report{
		Period:  period,
		From:    from,
		To:      to,
		Records: make([]Record, 0, len(rows)),
		Totals:  []CategoryTotal{},
		Count:   len(rows),
	}

	type key struct{ name, currency string }
	sums := make(map[key]decimal.Decimal)
	for _, row := range rows {
		rec := recordFromRow(row)
		report.Records = append(report.Records, rec)
		if rec.Type != domain.MovementExpense {
			continue
		}
		k := key{rec.Category, rec.Currency}
		sums[k] = sums[k].Add(rec.Amount)
	}

	for k, v := range sums {
		report.Totals = append(report.Totals, CategoryTotal{Name: k.name, Currency: k.currency, Value: v})
	}
	sort.Slice(report.Totals, func(i, j int) bool {
		a, b := report.Totals[i], report.Totals[j]
		if c := a.Value.Cmp(b.Value); c != 0 {
			return c > 0
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Currency < b.Currency
	})

	return report, nil
}

// Delete removes one of the account's records.
func (s *Service) Delete(ctx context.Context, accountID, recordID string) error {
	if err := s.repo.DeleteRecord(ctx, accountID, recordID); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// check loads the account and its trailing-window count, then asks the gate.
// The count and the later insert are not atomic; the limit is best-effort.
func (s *Service) check(ctx context.Context, accountID string) (*infra.AccountRow, quota.Decision, error) {
	acct, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, quota.Decision{}, fmt.Errorf("loading account: %w", err)
	}
	if acct == nil {
		return nil, quota.Decision{}, ErrAccountNotFound
	}

	now := s.now()
	count, err := s.repo.CountRecordsSince(ctx, accountID, quota.WindowStart(now))
	if err != nil {
		return nil, quota.Decision{}, fmt.Errorf("counting records: %w", err)
	}

	tier, err := quota.ParseTier(acct.Tier)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("account_id", accountID).Msg("treating account as free")
		tier = quota.TierFree
	}

	return acct, quota.CheckAt(now, tier, acct.ProExpiry(), count), nil
}

func recordFromRow(row *infra.RecordRow) Record {
	return Record{
		ID:         row.RecordID,
		Amount:     row.AmountDecimal(),
		Currency:   row.Currency,
		Category:   row.Category,
		Type:       domain.MovementKind(row.Kind),
		SourceText: row.SourceText,
		Date:       row.RecordDate.String(),
		CreatedAt:  row.CreatedTS,
	}
}
