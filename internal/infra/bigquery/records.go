package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/clypser/finance-bot/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
)

type RecordRow struct {
	RecordID  string `bigquery:"record_id"`  // REQUIRED
	AccountID string `bigquery:"account_id"` // REQUIRED

	RecordDate civil.Date `bigquery:"record_date"` // REQUIRED

	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC, always positive
	Currency string   `bigquery:"currency"` // REQUIRED
	Category string   `bigquery:"category"` // REQUIRED; counterparty name for debts
	Kind     string   `bigquery:"kind"`     // REQUIRED expense|income|debt_given|debt_received

	SourceText string `bigquery:"source_text"` // REQUIRED original message

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// NewRecordRow maps an extracted record to a row with a fresh id.
func NewRecordRow(accountID string, rec domain.CanonicalRecord, now time.Time) *RecordRow {
	now = now.UTC()
	return &RecordRow{
		RecordID:   uuid.NewString(),
		AccountID:  accountID,
		RecordDate: civil.DateOf(now),
		Amount:     rec.Amount.Rat(),
		Currency:   rec.Currency,
		Category:   rec.Category,
		Kind:       string(rec.MovementKind),
		SourceText: rec.SourceText,
		CreatedTS:  now,
	}
}

// AmountDecimal returns Amount as a decimal. NUMERIC has nine fractional
// digits, so nothing is lost.
func (r *RecordRow) AmountDecimal() decimal.Decimal {
	if r.Amount == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(r.Amount.FloatString(9))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// InsertRecordWithClient streams one row into the records table.
func InsertRecordWithClient(ctx context.Context, client *bigquery.Client, datasetID string, row *RecordRow) error {
	inserter := client.Dataset(datasetID).Table(recordsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertRecordWithClient: inserting row: %w", err)
	}
	return nil
}

// CountRecordsSinceWithClient counts an account's records created at or
// after since.
func CountRecordsSinceWithClient(ctx context.Context, client *bigquery.Client, datasetID, accountID string, since time.Time) (int, error) {
	q := client.Query(`
		SELECT COUNT(*) AS n
		FROM ` + tableRef(client, datasetID, recordsTable) + `
		WHERE account_id = @account_id
		  AND created_ts >= @since
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
		{Name: "since", Value: since.UTC()},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("CountRecordsSinceWithClient: reading query: %w", err)
	}

	var row struct {
		N int64 `bigquery:"n"`
	}
	err = it.Next(&row)
	if err == iterator.Done {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("CountRecordsSinceWithClient: iterating: %w", err)
	}

	return int(row.N), nil
}

// ListRecordsWithClient returns an account's records created in [from, to),
// newest first.
func ListRecordsWithClient(ctx context.Context, client *bigquery.Client, datasetID, accountID string, from, to time.Time) ([]*RecordRow, error) {
	q := client.Query(`
		SELECT
			record_id,
			account_id,
			record_date,
			amount,
			currency,
			category,
			kind,
			source_text,
			created_ts
		FROM ` + tableRef(client, datasetID, recordsTable) + `
		WHERE account_id = @account_id
		  AND created_ts >= @from
		  AND created_ts < @to
		ORDER BY created_ts DESC
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
		{Name: "from", Value: from.UTC()},
		{Name: "to", Value: to.UTC()},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecordsWithClient: query read: %w", err)
	}

	var rows []*RecordRow
	for {
		var r RecordRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecordsWithClient: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// DeleteRecordWithClient deletes one of an account's records. Deleting a
// record that does not exist is not an error.
func DeleteRecordWithClient(ctx context.Context, client *bigquery.Client, datasetID, accountID, recordID string) error {
	q := client.Query(`
		DELETE FROM ` + tableRef(client, datasetID, recordsTable) + `
		WHERE account_id = @account_id
		  AND record_id = @record_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
		{Name: "record_id", Value: recordID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("DeleteRecordWithClient: %w", err)
	}
	return nil
}

// InsertRecord delegates to InsertRecordWithClient with the shared client.
func (r *Repository) InsertRecord(ctx context.Context, row *RecordRow) error {
	return InsertRecordWithClient(ctx, r.client, r.datasetID, row)
}

// CountRecordsSince delegates to CountRecordsSinceWithClient with the shared client.
func (r *Repository) CountRecordsSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	return CountRecordsSinceWithClient(ctx, r.client, r.datasetID, accountID, since)
}

// ListRecords delegates to ListRecordsWithClient with the shared client.
func (r *Repository) ListRecords(ctx context.Context, accountID string, from, to time.Time) ([]*RecordRow, error) {
	return ListRecordsWithClient(ctx, r.client, r.datasetID, accountID, from, to)
}

// DeleteRecord delegates to DeleteRecordWithClient with the shared client.
func (r *Repository) DeleteRecord(ctx context.Context, accountID, recordID string) error {
	return DeleteRecordWithClient(ctx, r.client, r.datasetID, accountID, recordID)
}
