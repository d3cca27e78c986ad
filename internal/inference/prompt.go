package inference

import "fmt"

// BuildPrompt returns the instruction sent with every candidate request.
func BuildPrompt(normalizedText, defaultCurrency string) string {
	return fmt.Sprintf(
		"You extract one financial record from a short chat message.\n\n"+
			"Return a JSON object with exactly these fields:\n"+
			"- \"amount\": number, always positive\n"+
			"- \"currency\": string, one of UZS, USD, RUB, KZT, EUR; use %q when the message names none\n"+
			"- \"category\": string, a short category label such as Taxi, Food or Salary\n"+
			"- \"type\": one of \"expense\", \"income\", \"debt_given\", \"debt_received\"\n\n"+
			"Rules:\n"+
			"- Shorthand multiplies: \"25k\" or \"25к\" means 25000, \"2 млн\" means 2000000.\n"+
			"- Money the user lent is \"debt_given\"; money the user borrowed is \"debt_received\".\n"+
			"- For debts, \"category\" holds the other person's name. Use \"Someone\" if there is none.\n"+
			"- If the category is unclear, use \"Other\".\n"+
			"- Never omit a field. Use null for a value you cannot determine.\n\n"+
			"Return ONLY the raw JSON object. Do NOT use Markdown code fences.\n\n"+
			"Message: %s",
		defaultCurrency, normalizedText,
	)
}
