package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

type AccountRow struct {
	AccountID string `bigquery:"account_id"` // REQUIRED, e.g. the Telegram user id

	Currency string `bigquery:"currency"` // REQUIRED default currency for new records
	Tier     string `bigquery:"tier"`     // REQUIRED "free" or "pro"

	ProExpiresTS bigquery.NullTimestamp `bigquery:"pro_expires_ts"` // NULLABLE
	CreatedTS    time.Time              `bigquery:"created_ts"`     // REQUIRED
	UpdatedTS    bigquery.NullTimestamp `bigquery:"updated_ts"`     // NULLABLE
}

// ProExpiry returns the subscription expiry, or nil when there is none.
func (a *AccountRow) ProExpiry() *time.Time {
	if !a.ProExpiresTS.Valid {
		return nil
	}
	t := a.ProExpiresTS.Timestamp
	return &t
}

// GetAccountWithClient loads one account. Returns nil if no account matches.
func GetAccountWithClient(ctx context.Context, client *bigquery.Client, datasetID, accountID string) (*AccountRow, error) {
	q := client.Query(`
		SELECT
			account_id,
			currency,
			tier,
			pro_expires_ts,
			created_ts,
			updated_ts
		FROM ` + tableRef(client, datasetID, accountsTable) + `
		WHERE account_id = @account_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetAccountWithClient: reading query: %w", err)
	}

	var row AccountRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccountWithClient: iterating: %w", err)
	}

	return &row, nil
}

// UpsertAccountWithClient creates the account or, if it exists, updates its
// currency. Tier and expiry of existing accounts are left alone.
func UpsertAccountWithClient(ctx context.Context, client *bigquery.Client, datasetID string, row *AccountRow) error {
	if strings.TrimSpace(row.AccountID) == "" {
		return fmt.Errorf("UpsertAccountWithClient: account_id cannot be empty")
	}
	if row.CreatedTS.IsZero() {
		row.CreatedTS = time.Now().UTC()
	}

	q := client.Query(`
		MERGE ` + tableRef(client, datasetID, accountsTable) + ` a
		USING (SELECT @account_id AS account_id) s
		ON a.account_id = s.account_id
		WHEN MATCHED THEN
			UPDATE SET currency = @currency, updated_ts = @now
		WHEN NOT MATCHED THEN
			INSERT (account_id, currency, tier, pro_expires_ts, created_ts)
			VALUES (@account_id, @currency, @tier, @pro_expires_ts, @created_ts)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: row.AccountID},
		{Name: "currency", Value: row.Currency},
		{Name: "tier", Value: row.Tier},
		{Name: "pro_expires_ts", Value: row.ProExpiresTS},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "now", Value: time.Now().UTC()},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("UpsertAccountWithClient: %w", err)
	}
	return nil
}

// DowngradeAccountWithClient sets the tier to free and clears the expiry.
func DowngradeAccountWithClient(ctx context.Context, client *bigquery.Client, datasetID, accountID string) error {
	q := client.Query(`
		UPDATE ` + tableRef(client, datasetID, accountsTable) + `
		SET tier = 'free',
		    pro_expires_ts = NULL,
		    updated_ts = @now
		WHERE account_id = @account_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
		{Name: "now", Value: time.Now().UTC()},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("DowngradeAccountWithClient: %w", err)
	}
	return nil
}

// GetAccount delegates to GetAccountWithClient with the shared client.
func (r *Repository) GetAccount(ctx context.Context, accountID string) (*AccountRow, error) {
	return GetAccountWithClient(ctx, r.client, r.datasetID, accountID)
}

// UpsertAccount delegates to UpsertAccountWithClient with the shared client.
func (r *Repository) UpsertAccount(ctx context.Context, row *AccountRow) error {
	return UpsertAccountWithClient(ctx, r.client, r.datasetID, row)
}

// DowngradeAccount delegates to DowngradeAccountWithClient with the shared client.
func (r *Repository) DowngradeAccount(ctx context.Context, accountID string) error {
	return DowngradeAccountWithClient(ctx, r.client, r.datasetID, accountID)
}
