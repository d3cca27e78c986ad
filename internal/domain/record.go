package domain

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// MovementKind says which way money moved in a record.
type MovementKind string

const (
	// MovementExpense is ordinary spending.
	MovementExpense MovementKind = "expense"
	// MovementIncome is ordinary income.
	MovementIncome MovementKind = "income"
	// MovementDebtGiven is money lent by the account holder.
	MovementDebtGiven MovementKind = "debt_given"
	// MovementDebtReceived is money borrowed by the account holder.
	MovementDebtReceived MovementKind = "debt_received"
)

// Placeholders used when a field cannot be determined.
const (
	DefaultCategory     = "Other"
	DefaultCounterparty = "Someone"
)

// ErrNoAmountFound is returned when neither a provider nor the local parser
// found a positive amount in the message. Callers ask the user to restate it.
var ErrNoAmountFound = errors.New("no amount found")

// ParseMovementKind maps a token (as produced by a provider or a client) to a
// MovementKind. Matching ignores case and surrounding spaces.
func ParseMovementKind(s string) (MovementKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "expense":
		return MovementExpense, true
	case "income":
		return MovementIncome, true
	case "debt_given", "debtgiven", "debt-given", "lent":
		return MovementDebtGiven, true
	case "debt_received", "debtreceived", "debt-received", "borrowed":
		return MovementDebtReceived, true
	}
	return "", false
}

// IsDebt reports whether the category of a record with this kind holds a
// counterparty name.
func (k MovementKind) IsDebt() bool {
	return k == MovementDebtGiven || k == MovementDebtReceived
}

// ExtractedFields is a partial record. A zero field means "not found":
// an invalid Amount, an empty string, or an empty MovementKind.
type ExtractedFields struct {
	Amount       decimal.NullDecimal
	Currency     string
	Category     string
	MovementKind MovementKind
}

// HasAmount reports whether a positive amount is present.
func (f ExtractedFields) HasAmount() bool {
	return f.Amount.Valid && f.Amount.Decimal.IsPositive()
}

// CanonicalRecord is the fully populated result of extracting one message.
// Amount is always positive; Currency and Category are never empty. For debt
// kinds Category holds the counterparty's display name.
type CanonicalRecord struct {
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Category     string          `json:"category"`
	MovementKind MovementKind    `json:"type"`
	SourceText   string          `json:"source_text"`
}
