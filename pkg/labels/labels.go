// Package labels assigns spending categories to transactions.
package labels

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/ArionMiles/smsexpensor/pkg/api"
)

// Categories a transaction can be filed under.
const (
	FoodAndDining  = "Food & Dining"
	Shopping       = "Shopping"
	Transportation = "Transportation"
	Entertainment  = "Entertainment"
	BillsUtilities = "Bills & Utilities"
	HealthMedical  = "Health & Medical"
	Travel         = "Travel"
	Education      = "Education"
	Groceries      = "Groceries"
	Investment     = "Investment"
	Salary         = "Salary"
	OtherIncome    = "Other Income"
	OtherExpenses  = "Other Expenses"
)

// Categories lists every known category in display order.
var Categories = []string{
	FoodAndDining, Shopping, Transportation, Entertainment, BillsUtilities,
	HealthMedical, Travel, Education, Groceries, Investment, Salary,
	OtherIncome, OtherExpenses,
}

// Valid reports whether category is one of Categories.
func Valid(category string) bool {
	return slices.Contains(Categories, category)
}

// Rule files a message under Category when its body contains any of Keywords.
type Rule struct {
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
}

// Labels holds an ordered rule list. The first matching rule wins.
type Labels struct {
	rules []Rule
}

// New validates rules and returns Labels using them in order.
func New(rules []Rule) (*Labels, error) {
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if !Valid(r.Category) {
			return nil, fmt.Errorf("rule %d: unknown category %q", i, r.Category)
		}
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		if len(kws) == 0 {
			return nil, fmt.Errorf("rule %d (%s): no keywords", i, r.Category)
		}
		out = append(out, Rule{Category: r.Category, Keywords: kws})
	}
	return &Labels{rules: out}, nil
}

// Parse decodes a JSON document of the form {"rules": [{"category": ..., "keywords": [...]}]}.
func Parse(data []byte) (*Labels, error) {
	var doc struct {
		Rules []Rule `json:"rules"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing labels: %w", err)
	}
	return New(doc.Rules)
}

// Lookup returns the category for a message body. Unmatched credits are
// Other Income and everything else unmatched is Other Expenses.
func (l *Labels) Lookup(body string, direction api.Direction) string {
	if l != nil {
		lower := strings.ToLower(body)
		for _, r := range l.rules {
			for _, kw := range r.Keywords {
				if strings.Contains(lower, kw) {
					return r.Category
				}
			}
		}
	}

	if direction == api.DirectionCredit {
		return OtherIncome
	}
	return OtherExpenses
}

// Len returns the number of rules.
func (l *Labels) Len() int {
	if l == nil {
		return 0
	}
	return len(l.rules)
}
