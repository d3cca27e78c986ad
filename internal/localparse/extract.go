// Package localparse pulls an amount, a currency, a movement kind and a
// category out of a short message using keyword tables only. It never fails:
// the worst case is an empty result.
package localparse

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/clypser/finance-bot/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	// numberRe finds candidate tokens; groupedRe and plainRe decide how each
	// one reads.
	numberRe  = regexp.MustCompile(`\d+(?:[.,]\d+)*`)
	groupedRe = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
	plainRe   = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

// Extract runs the built-in rules over text.
func Extract(text, defaultCurrency string) domain.ExtractedFields {
	return defaultRules.Extract(text, defaultCurrency)
}

// Extract reads the first positive number as the amount and classifies the
// message by keyword. Kind defaults to expense when an amount was found.
// For debts the category is the counterparty: whatever is left once numbers,
// currencies, debt keywords and filler words are removed.
func (r *Rules) Extract(text, defaultCurrency string) domain.ExtractedFields {
	var out domain.ExtractedFields
	lower := foldApostrophes(strings.ToLower(text))

	amount, span, found := firstAmount(text)
	if found {
		out.Amount = decimal.NewNullDecimal(amount)
	}

	out.MovementKind = r.matchKind(lower)
	if out.MovementKind == "" && found {
		out.MovementKind = domain.MovementExpense
	}

	out.Currency = r.matchCurrency(lower)
	if out.Currency == "" {
		out.Currency = defaultCurrency
	}

	if out.MovementKind.IsDebt() {
		rest := text
		if found {
			rest = text[:span[0]] + " " + text[span[1]:]
		}
		out.Category = r.counterparty(rest)
		return out
	}

	kind := out.MovementKind
	if kind == "" {
		kind = domain.MovementExpense
	}
	out.Category = r.matchCategory(kind, lower)

	return out
}

// Counterparty returns the person named in a debt message using the built-in
// rules, or domain.DefaultCounterparty when no name is left.
func Counterparty(text string) string {
	return defaultRules.counterparty(text)
}

// RemoveAmount drops the numeric token equal to amount from text, or the
// first numeric token when none is equal. Whitespace is collapsed.
func RemoveAmount(text string, amount decimal.Decimal) string {
	spans := numberSpans(text)
	if len(spans) == 0 {
		return strings.Join(strings.Fields(text), " ")
	}

	hit := spans[0]
	for _, span := range spans {
		if v, ok := parseNumber(text[span[0]:span[1]]); ok && v.Equal(amount) {
			hit = span
			break
		}
	}

	return strings.Join(strings.Fields(text[:hit[0]]+" "+text[hit[1]:]), " ")
}

func firstAmount(text string) (decimal.Decimal, []int, bool) {
	for _, span := range numberSpans(text) {
		v, ok := parseNumber(text[span[0]:span[1]])
		if ok && v.IsPositive() {
			return v, span, true
		}
	}
	return decimal.Decimal{}, nil, false
}

// numberSpans returns the numeric tokens of text. A comma followed by groups
// of exactly three digits separates thousands ("1,000,000"); any other comma
// is a decimal point ("2,5"). Runs that fit neither, like "12.05.2024", split
// into plain numbers.
func numberSpans(text string) [][]int {
	var spans [][]int
	for _, span := range numberRe.FindAllStringIndex(text, -1) {
		token := text[span[0]:span[1]]
		if groupedRe.MatchString(token) || plainRe.FindString(token) == token {
			spans = append(spans, span)
			continue
		}
		for _, sub := range plainRe.FindAllStringIndex(token, -1) {
			spans = append(spans, []int{span[0] + sub[0], span[0] + sub[1]})
		}
	}
	return spans
}

func parseNumber(token string) (decimal.Decimal, bool) {
	if groupedRe.MatchString(token) {
		token = strings.ReplaceAll(token, ",", "")
	}
	v, err := decimal.NewFromString(strings.ReplaceAll(token, ",", "."))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v, true
}

func (r *Rules) matchKind(lower string) domain.MovementKind {
	for _, rule := range r.Kinds {
		for _, t := range rule.Triggers {
			if startsWord(lower, t) {
				return rule.Kind
			}
		}
	}
	return ""
}

func (r *Rules) matchCategory(kind domain.MovementKind, lower string) string {
	for _, rule := range r.Categories[kind] {
		for _, t := range rule.Triggers {
			if startsWord(lower, t) {
				return rule.Label
			}
		}
	}
	return ""
}

func (r *Rules) matchCurrency(lower string) string {
	tokens := words(lower)
	for _, c := range r.Currencies {
		for _, alias := range c.Aliases {
			if isSymbol(alias) {
				if strings.Contains(lower, alias) {
					return c.Code
				}
				continue
			}
			for _, tok := range tokens {
				if aliasMatches(alias, tok) {
					return c.Code
				}
			}
		}
	}
	return ""
}

func (r *Rules) isCurrencyWord(tok string) bool {
	for _, c := range r.Currencies {
		for _, alias := range c.Aliases {
			if !isSymbol(alias) && aliasMatches(alias, tok) {
				return true
			}
		}
	}
	return false
}

func (r *Rules) counterparty(rest string) string {
	var kept []string
	for _, field := range strings.Fields(rest) {
		tok := strings.TrimFunc(field, func(c rune) bool {
			return !unicode.IsLetter(c) && !unicode.IsDigit(c)
		})
		if tok == "" || strings.ContainsFunc(tok, unicode.IsDigit) {
			continue
		}
		low := foldApostrophes(strings.ToLower(tok))
		if r.kindWords[low] || r.fillerSet[low] || r.isCurrencyWord(low) {
			continue
		}
		kept = append(kept, tok)
	}

	if len(kept) == 0 {
		return domain.DefaultCounterparty
	}
	return strings.Join(kept, " ")
}

// startsWord reports whether trigger occurs in lower at the start of a word,
// so "lent" hits "lent anton" but not "talent". The end is left open for
// inflected forms like "зарплату".
func startsWord(lower, trigger string) bool {
	if trigger == "" {
		return false
	}
	for off := 0; off < len(lower); {
		i := strings.Index(lower[off:], trigger)
		if i < 0 {
			return false
		}
		i += off
		prev, _ := utf8.DecodeLastRuneInString(lower[:i])
		if i == 0 || !isWordRune(prev) {
			return true
		}
		_, size := utf8.DecodeRuneInString(lower[i:])
		off = i + size
	}
	return false
}

func isWordRune(c rune) bool {
	return unicode.IsLetter(c) || c == '\''
}

func aliasMatches(alias, tok string) bool {
	if prefix, ok := strings.CutSuffix(alias, "*"); ok {
		return prefix != "" && strings.HasPrefix(tok, prefix)
	}
	return tok == alias
}

// isSymbol reports whether alias has no letters, like "$".
func isSymbol(alias string) bool {
	return alias != "" && !strings.ContainsFunc(alias, unicode.IsLetter)
}

// words splits lowercased text into letter runs, keeping apostrophes so that
// "so'm" stays one word. Digits split words: "100сум" yields "сум".
func words(lower string) []string {
	return strings.FieldsFunc(lower, func(c rune) bool {
		return !isWordRune(c)
	})
}

func foldApostrophes(s string) string {
	return strings.NewReplacer("’", "'", "ʻ", "'", "ʼ", "'", "`", "'").Replace(s)
}
