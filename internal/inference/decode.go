package inference

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/clypser/finance-bot/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrMalformedResponse marks a response that does not fit the record shape.
var ErrMalformedResponse = errors.New("malformed response")

// wireFields is the response object. Pointer fields distinguish a missing
// key from an empty value.
type wireFields struct {
	Amount   json.RawMessage `json:"amount"`
	Currency *string         `json:"currency"`
	Category *string         `json:"category"`
	Type     *string         `json:"type"`
}

// requiredKeys are the keys every response object must carry. A key may be
// null to say the value is unknown, but it may not be missing.
var requiredKeys = []string{"amount", "currency", "category", "type"}

// DecodeFields parses a provider response into ExtractedFields. Unknown keys
// are ignored. A non-positive amount counts as absent; a missing key, a field
// of the wrong type or an unknown movement kind is an error.
func DecodeFields(raw string) (domain.ExtractedFields, error) {
	var out domain.ExtractedFields

	clean := cleanModelJSON(raw)
	if !strings.HasPrefix(clean, "{") {
		return out, fmt.Errorf("DecodeFields: %w: not a JSON object", ErrMalformedResponse)
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(clean), &keys); err != nil {
		return out, fmt.Errorf("DecodeFields: %w: %v", ErrMalformedResponse, err)
	}
	for _, k := range requiredKeys {
		if _, ok := keys[k]; !ok {
			return out, fmt.Errorf("DecodeFields: %w: missing %q", ErrMalformedResponse, k)
		}
	}

	var w wireFields
	if err := json.Unmarshal([]byte(clean), &w); err != nil {
		return out, fmt.Errorf("DecodeFields: %w: %v", ErrMalformedResponse, err)
	}

	amount, err := decodeAmount(w.Amount)
	if err != nil {
		return out, fmt.Errorf("DecodeFields: %w", err)
	}
	if amount.Valid && amount.Decimal.IsPositive() {
		out.Amount = amount
	}

	if w.Currency != nil {
		out.Currency = strings.ToUpper(strings.TrimSpace(*w.Currency))
	}
	if w.Category != nil {
		out.Category = strings.TrimSpace(*w.Category)
	}
	if w.Type != nil && strings.TrimSpace(*w.Type) != "" {
		kind, ok := domain.ParseMovementKind(*w.Type)
		if !ok {
			return domain.ExtractedFields{}, fmt.Errorf("DecodeFields: %w: unknown type %q", ErrMalformedResponse, *w.Type)
		}
		out.MovementKind = kind
	}

	return out, nil
}

// decodeAmount accepts a JSON number or a numeric string. null and an empty
// string are "absent".
func decodeAmount(raw json.RawMessage) (decimal.NullDecimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.NullDecimal{}, nil
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("%w: amount: %v", ErrMalformedResponse, err)
		}
		text = strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
		if text == "" {
			return decimal.NullDecimal{}, nil
		}
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: amount %s", ErrMalformedResponse, raw)
	}
	return decimal.NewNullDecimal(d), nil
}

// cleanModelJSON strips Markdown fences and any prose around the object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "[") {
		return s
	}

	// Keep only from the first '{' to the last '}'.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
