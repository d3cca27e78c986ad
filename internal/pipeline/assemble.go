package pipeline

import (
	"fmt"
	"strings"

	"github.com/clypser/finance-bot/internal/domain"
	"github.com/clypser/finance-bot/internal/localparse"
	"github.com/clypser/finance-bot/internal/textnorm"
)

// Assemble builds the final record from an inference result (nil when no
// candidate succeeded) and the original message text. Missing fields are
// filled by the local parser and then by defaults. The only error is
// domain.ErrNoAmountFound.
func Assemble(inferred *domain.ExtractedFields, text, defaultCurrency string) (domain.CanonicalRecord, error) {
	return assemble(inferred, text, textnorm.Normalize(text), defaultCurrency)
}

func assemble(inferred *domain.ExtractedFields, text, normalized, defaultCurrency string) (domain.CanonicalRecord, error) {
	var fields domain.ExtractedFields
	if inferred == nil {
		fields = localparse.Extract(normalized, defaultCurrency)
	} else {
		fields = *inferred
		if !fields.HasAmount() {
			fields.Amount = localparse.Extract(normalized, defaultCurrency).Amount
		}
	}

	if !fields.HasAmount() {
		return domain.CanonicalRecord{}, fmt.Errorf("Assemble: %w", domain.ErrNoAmountFound)
	}

	fields.Category = strings.TrimSpace(fields.Category)
	if fields.Category == "" || fields.MovementKind == "" {
		rest := localparse.RemoveAmount(normalized, fields.Amount.Decimal)
		second := localparse.Extract(rest, defaultCurrency)

		if fields.MovementKind == "" {
			fields.MovementKind = second.MovementKind
		}
		if fields.Category == "" {
			if fields.MovementKind.IsDebt() {
				fields.Category = localparse.Counterparty(rest)
			} else {
				fields.Category = second.Category
			}
		}
	}

	if fields.MovementKind == "" {
		fields.MovementKind = domain.MovementExpense
	}
	if fields.Category == "" {
		fields.Category = domain.DefaultCategory
	}

	currency := strings.TrimSpace(fields.Currency)
	if currency == "" {
		currency = defaultCurrency
	}

	return domain.CanonicalRecord{
		Amount:       fields.Amount.Decimal,
		Currency:     currency,
		Category:     fields.Category,
		MovementKind: fields.MovementKind,
		SourceText:   text,
	}, nil
}
