package bigquery

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/clypser/finance-bot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordRow(t *testing.T) {
	now := time.Date(2025, 3, 10, 23, 30, 0, 0, time.FixedZone("UZT", 5*3600))
	rec := domain.CanonicalRecord{
		Amount:       decimal.RequireFromString("100000.5"),
		Currency:     "UZS",
		Category:     "Anton",
		MovementKind: domain.MovementDebtGiven,
		SourceText:   "Lent Anton 100k",
	}

	row := NewRecordRow("42", rec, now)

	assert.NotEmpty(t, row.RecordID)
	assert.Equal(t, "42", row.AccountID)
	assert.Equal(t, civil.Date{Year: 2025, Month: time.March, Day: 10}, row.RecordDate)
	assert.Equal(t, 0, row.Amount.Cmp(big.NewRat(200001, 2)))
	assert.Equal(t, "debt_given", row.Kind)
	assert.Equal(t, "Lent Anton 100k", row.SourceText)
	assert.Equal(t, time.UTC, row.CreatedTS.Location())

	other := NewRecordRow("42", rec, now)
	assert.NotEqual(t, row.RecordID, other.RecordID)
}

func TestRecordRow_AmountDecimal(t *testing.T) {
	row := &RecordRow{Amount: big.NewRat(1, 3)}
	assert.Equal(t, "0.333333333", row.AmountDecimal().String())

	row = &RecordRow{Amount: big.NewRat(25000, 1)}
	assert.Equal(t, "25000", row.AmountDecimal().String())

	assert.True(t, (&RecordRow{}).AmountDecimal().IsZero())
}

func TestAccountRow_ProExpiry(t *testing.T) {
	row := &AccountRow{}
	assert.Nil(t, row.ProExpiry())

	ts := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	row.ProExpiresTS = bigquery.NullTimestamp{Timestamp: ts, Valid: true}
	got := row.ProExpiry()
	require.NotNil(t, got)
	assert.True(t, ts.Equal(*got))
}
