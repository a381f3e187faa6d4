package record

import (
	"reflect"
	"testing"
	"time"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/classifier"
)

var receivedAt = time.Date(2024, time.March, 14, 9, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))

func TestBuild(t *testing.T) {
	b := NewBuilder(classifier.Default())

	tests := []struct {
		name string
		msg  api.RawMessage
		want *api.TransactionRecord
	}{
		{
			name: "promotional message is discarded",
			msg:  api.RawMessage{Body: "Free recharge offer inside!", Sender: "VM-PROMO", ReceivedAt: receivedAt},
			want: nil,
		},
		{
			name: "personal message is discarded",
			msg:  api.RawMessage{Body: "Hey, are we still meeting at 5?", Sender: "John", ReceivedAt: receivedAt},
			want: nil,
		},
		{
			name: "credit with rupee glyph",
			msg:  api.RawMessage{Body: "₹1,000 credited to your account", Sender: "SBI-BANK", ReceivedAt: receivedAt},
			want: &api.TransactionRecord{
				Amount:     "1000",
				Currency:   api.CurrencyINR,
				Direction:  api.DirectionCredit,
				RawMessage: "₹1,000 credited to your account",
				Sender:     "SBI-BANK",
				Timestamp:  "2024-03-14T04:00:00Z",
			},
		},
		{
			name: "debit with INR",
			msg: api.RawMessage{
				Body:       "A/c XX1234 debited INR 2,500.00 on 01-JAN",
				Sender:     "VM-HDFCBK",
				ReceivedAt: receivedAt,
			},
			want: &api.TransactionRecord{
				Amount:     "2500.00",
				Currency:   api.CurrencyINR,
				Direction:  api.DirectionDebit,
				RawMessage: "A/c XX1234 debited INR 2,500.00 on 01-JAN",
				Sender:     "VM-HDFCBK",
				Timestamp:  "2024-03-14T04:00:00Z",
			},
		},
		{
			name: "transaction without amount",
			msg:  api.RawMessage{Body: "Your account has been credited", Sender: "HDFC-123", ReceivedAt: receivedAt},
			want: &api.TransactionRecord{
				Amount:     "0",
				Currency:   api.CurrencyINR,
				Direction:  api.DirectionCredit,
				RawMessage: "Your account has been credited",
				Sender:     "HDFC-123",
				Timestamp:  "2024-03-14T04:00:00Z",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Build(tt.msg)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Build: got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBuildDeterministic(t *testing.T) {
	b := NewBuilder(nil)
	msg := api.RawMessage{
		ID:         "m-1",
		Body:       "Rs.200 spent at merchant XYZ using UPI",
		Sender:     "AX-ICICIB",
		ReceivedAt: receivedAt,
	}

	first := b.Build(msg)
	second := b.Build(msg)
	if first == nil || second == nil {
		t.Fatalf("expected records, got %v and %v", first, second)
	}
	if first == second {
		t.Error("expected distinct record values")
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("records differ: %+v vs %+v", first, second)
	}
}

func TestBuildWithCustomClassifier(t *testing.T) {
	c, err := classifier.New(classifier.Config{
		BankNames: []string{"acme"},
		Keywords:  []string{"paid"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b := NewBuilder(c)

	rec := b.Build(api.RawMessage{Body: "You paid Rs 40", Sender: "ACME", ReceivedAt: receivedAt})
	if rec == nil {
		t.Fatal("expected a record")
	}
	if rec.Amount != "40" {
		t.Errorf("amount: got %q, want %q", rec.Amount, "40")
	}
	if rec.Direction != api.DirectionUnknown {
		t.Errorf("direction: got %s, want %s", rec.Direction, api.DirectionUnknown)
	}

	if b.Build(api.RawMessage{Body: "debited Rs 40", Sender: "HDFC-123"}) != nil {
		t.Error("default lists should not apply to a custom classifier")
	}
}
