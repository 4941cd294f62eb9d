package pipeline

import (
	"regexp"
	"strconv"
	"strings"
)

// budgetRe captures a currency token and an amount in either order:
// "USD 1,200,000", "1 200 000 XOF", "$250,000.50".
var budgetRe = regexp.MustCompile(`(?i)\b(USD|EUR|GBP|CHF|XOF|XAF|NGN|GHS|KES|ETB|ZAR|EGP|MAD|TND|AED|SAR|\$|€|£)\s*([\d][\d\s,.]*\d|\d)|([\d][\d\s,.]*\d|\d)\s*(USD|EUR|GBP|CHF|XOF|XAF|NGN|GHS|KES|ETB|ZAR|EGP|MAD|TND|AED|SAR)\b`)

var symbolCurrency = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
}

// ParseBudget extracts an estimated amount and an ISO currency code from a
// free-text budget field. Returns ok=false when no currency-qualified amount
// is present; a bare number is too ambiguous to keep.
func ParseBudget(s string) (float64, string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, "", false
	}

	m := budgetRe.FindStringSubmatch(s)
	if m == nil {
		return 0, "", false
	}

	currency, amountText := m[1], m[2]
	if currency == "" {
		amountText, currency = m[3], m[4]
	}

	if code, ok := symbolCurrency[currency]; ok {
		currency = code
	}
	currency = strings.ToUpper(currency)

	amount, ok := parseAmount(amountText)
	if !ok || amount <= 0 {
		return 0, "", false
	}
	return amount, currency, true
}

// parseAmount handles thousands separators (comma, space) and a decimal
// point. European "1.200.000" style is treated as thousands-separated when
// more than one dot appears.
func parseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", "")
	if strings.Count(s, ".") > 1 {
		s = strings.ReplaceAll(s, ".", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
