// Package insights aggregates stored transactions for dashboards.
package insights

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/smsexpensor/pkg/api"
)

// CategoryTotal is the debit spend filed under one category.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

// DailyTotal is the debit spend on one calendar day (UTC).
type DailyTotal struct {
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
}

// ByCategory sums debits per category, largest total first.
func ByCategory(txns []*api.Transaction) []CategoryTotal {
	totals := make(map[string]*CategoryTotal)
	for _, txn := range txns {
		amount, ok := debitAmount(txn)
		if !ok {
			continue
		}
		ct, exists := totals[txn.Category]
		if !exists {
			ct = &CategoryTotal{Category: txn.Category}
			totals[txn.Category] = ct
		}
		ct.Total = ct.Total.Add(amount)
		ct.Count++
	}

	out := make([]CategoryTotal, 0, len(totals))
	for _, ct := range totals {
		out = append(out, *ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Daily sums debits for each of the last days calendar days ending with the day
// of now, oldest first. Days without spend are reported with a zero total.
func Daily(txns []*api.Transaction, now time.Time, days int) []DailyTotal {
	if days <= 0 {
		return nil
	}

	today := now.UTC().Truncate(24 * time.Hour)
	first := today.AddDate(0, 0, -(days - 1))

	out := make([]DailyTotal, days)
	for i := range out {
		out[i] = DailyTotal{Date: first.AddDate(0, 0, i).Format(time.DateOnly), Total: decimal.Zero}
	}

	for _, txn := range txns {
		amount, ok := debitAmount(txn)
		if !ok {
			continue
		}
		ts := txn.Time()
		if ts.IsZero() {
			continue
		}
		day := ts.UTC().Truncate(24 * time.Hour)
		idx := int(day.Sub(first) / (24 * time.Hour))
		if day.Before(first) || idx >= days {
			continue
		}
		out[idx].Total = out[idx].Total.Add(amount)
	}
	return out
}

func debitAmount(txn *api.Transaction) (decimal.Decimal, bool) {
	if txn == nil || txn.Direction != api.DirectionDebit {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(txn.Amount)
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}
