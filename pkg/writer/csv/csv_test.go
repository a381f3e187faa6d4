package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ArionMiles/smsexpensor/pkg/api"
)

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.csv")

	for run, id := range []string{"a", "b"} {
		w, err := New(Config{FilePath: path}, nil)
		if err != nil {
			t.Fatalf("run %d: New: %v", run, err)
		}

		in := make(chan *api.Transaction, 1)
		ackChan := make(chan string, 1)
		in <- &api.Transaction{
			TransactionRecord: api.TransactionRecord{
				Amount:     "2500.00",
				Currency:   api.CurrencyINR,
				Direction:  api.DirectionDebit,
				RawMessage: "A/c XX1234 debited INR 2,500.00, ref \"x\"",
				Sender:     "VM-HDFCBK",
				Timestamp:  "2024-03-14T04:00:00Z",
			},
			MessageID: id,
			Source:    "webhook",
			Category:  "Shopping",
		}
		close(in)

		if err := w.Write(context.Background(), in, ackChan); err != nil {
			t.Fatalf("run %d: Write: %v", run, err)
		}
		if got := <-ackChan; got != id {
			t.Errorf("run %d: ack: got %q, want %q", run, got, id)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("rows: got %d, want 3 (header written once)", len(rows))
	}
	if rows[0][0] != "Timestamp" {
		t.Errorf("header: got %v", rows[0])
	}
	if rows[1][8] != "a" || rows[2][8] != "b" {
		t.Errorf("message ids: got %q and %q", rows[1][8], rows[2][8])
	}
	if rows[1][9] != "A/c XX1234 debited INR 2,500.00, ref \"x\"" {
		t.Errorf("message: got %q", rows[1][9])
	}
}

func TestNewRejectsForeignHeader(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "older layout", content: "Timestamp,Sender,Amount\n", wantErr: ErrHeaderMismatch},
		{name: "current layout", content: strings.Join(Header, ",") + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.csv")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}

			w, err := New(Config{FilePath: path}, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New: got %v, want %v", err, tt.wantErr)
			}
			if w != nil {
				if err := w.Close(); err != nil {
					t.Errorf("Close: %v", err)
				}
			}
		})
	}
}
