// Package extractor pulls the amount and the direction of money movement out of a
// transaction message body.
package extractor

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/classifier"
)

var (
	creditKeywords = []string{"credited", "received", "deposit"}
	debitKeywords  = []string{"debited", "spent", "sent", "withdrawal"}

	currencyTokens = regexp.MustCompile(`(?i)₹|rs\.|inr`)
	nonNumeric     = regexp.MustCompile(`[^0-9.]`)
)

// ExtractAmount returns the first amount in body verbatim, currency token included.
// The second return value is false when body carries no amount.
func ExtractAmount(body string) (string, bool) {
	loc := classifier.AmountPattern.FindStringIndex(body)
	if loc == nil {
		return "", false
	}
	return body[loc[0]:loc[1]], true
}

// NormalizeAmount turns amount text such as "INR 2,500.00" into a decimal literal
// ("2500.00") and its currency. Amounts are always rupees, marked or not. Text
// that does not reduce to a valid decimal yields "0". Applying it to its own
// numeric output is a no-op.
func NormalizeAmount(raw string) (string, api.Currency) {
	compact := strings.Join(strings.Fields(raw), "")
	currency := api.CurrencyINR

	numeric := currencyTokens.ReplaceAllString(compact, "")
	numeric = strings.ReplaceAll(numeric, ",", "")
	numeric = nonNumeric.ReplaceAllString(numeric, "")
	// "INR.500" leaves the token's period behind.
	numeric = strings.TrimLeft(numeric, ".")

	if numeric == "" {
		return "0", currency
	}
	if _, err := decimal.NewFromString(numeric); err != nil {
		return "0", currency
	}
	return numeric, currency
}

// ClassifyDirection reports whether body describes money coming in or going out.
// Credit vocabulary is checked first, so a body mentioning both resolves to credit.
func ClassifyDirection(body string) api.Direction {
	lower := strings.ToLower(body)

	switch {
	case containsAny(lower, creditKeywords):
		return api.DirectionCredit
	case containsAny(lower, debitKeywords):
		return api.DirectionDebit
	default:
		return api.DirectionUnknown
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
