package sheets

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/smsexpensor/pkg/api"
)

func TestRow(t *testing.T) {
	row := Row(&api.Transaction{
		TransactionRecord: api.TransactionRecord{
			Amount:     "1000",
			Currency:   api.CurrencyINR,
			Direction:  api.DirectionCredit,
			RawMessage: "₹1,000 credited to your account",
			Sender:     "SBI-BANK",
			Timestamp:  "2024-03-14T04:00:00Z",
		},
		MessageID:   "m-1",
		Source:      "webhook",
		Category:    "Other Income",
		Description: "refund",
	})

	want := []any{"2024-03-14T04:00:00Z", "SBI-BANK", "1000", "INR", "CREDIT", "Other Income", "refund", "webhook", "m-1", "₹1,000 credited to your account"}
	if len(row) != len(Header) || len(row) != len(want) {
		t.Fatalf("columns: got %d, want %d", len(row), len(Header))
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("column %d (%v): got %v, want %v", i, Header[i], row[i], want[i])
		}
	}
}

func TestRange(t *testing.T) {
	tests := []struct {
		tab  string
		row  int
		want string
	}{
		{"Transactions", 1, "'Transactions'!A1:J1"},
		{"My Bank", 2, "'My Bank'!A2:J2"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Range(tt.tab, tt.row); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasTab(t *testing.T) {
	ss := &sheets.Spreadsheet{Sheets: []*sheets.Sheet{
		{Properties: &sheets.SheetProperties{Title: "Sheet1"}},
		{},
		{Properties: &sheets.SheetProperties{Title: "Transactions"}},
	}}

	if !hasTab(ss, "Transactions") {
		t.Error("expected Transactions tab to be found")
	}
	if hasTab(ss, "Archive") {
		t.Error("unexpected Archive tab")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"429", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"wrapped 429", fmt.Errorf("append: %w", &googleapi.Error{Code: http.StatusTooManyRequests}), true},
		{"503", &googleapi.Error{Code: http.StatusServiceUnavailable}, true},
		{"403", &googleapi.Error{Code: http.StatusForbidden}, false},
		{"other error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
