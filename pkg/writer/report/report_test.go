package report

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/smsexpensor/pkg/api"
)

func testTxn(id string) *api.Transaction {
	return &api.Transaction{
		TransactionRecord: api.TransactionRecord{
			Amount:     "2500.00",
			Currency:   api.CurrencyINR,
			Direction:  api.DirectionDebit,
			RawMessage: "A/c XX1234 debited INR 2,500.00 on 01-JAN",
			Sender:     "VM-HDFCBK",
			Timestamp:  "2024-03-14T04:00:00Z",
		},
		MessageID:   id,
		Category:    "Shopping",
		Description: "new shoes",
	}
}

func TestNewPayload(t *testing.T) {
	p := NewPayload(testTxn("a"))

	assert.Equal(t, json.Number("2500.00"), p.Amount)
	assert.Equal(t, TypeDebited, p.Type)
	assert.Equal(t, "Shopping", p.Category)
	assert.Equal(t, "new shoes", p.Description)
	assert.Equal(t, "A/c XX1234 debited INR 2,500.00 on 01-JAN", p.OriginalMessage)
	assert.Equal(t, time.Date(2024, 3, 14, 4, 0, 0, 0, time.UTC).UnixMilli(), p.Timestamp)

	credit := testTxn("b")
	credit.Direction = api.DirectionCredit
	assert.Equal(t, TypeCredited, NewPayload(credit).Type)

	unknown := testTxn("c")
	unknown.Direction = api.DirectionUnknown
	unknown.Amount = ""
	p = NewPayload(unknown)
	assert.Equal(t, TypeUnknown, p.Type)
	assert.Equal(t, json.Number("0"), p.Amount)
}

func TestWriteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		body, _ := io.ReadAll(r.Body)
		var raw map[string]any
		assert.NoError(t, json.Unmarshal(body, &raw))
		assert.Equal(t, 2500.0, raw["amount"])
		assert.Equal(t, "debited", raw["type"])

		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	w, err := New(nil, Config{URL: srv.URL, Headers: map[string]string{"X-Api-Key": "secret"}, Delay: time.Millisecond}, nil)
	require.NoError(t, err)

	in := make(chan *api.Transaction, 1)
	ackChan := make(chan string, 1)
	in <- testTxn("a")
	close(in)

	require.NoError(t, w.Write(context.Background(), in, ackChan))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "a", <-ackChan)
}

func TestWriteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	w, err := New(nil, Config{URL: srv.URL, Delay: time.Millisecond}, nil)
	require.NoError(t, err)

	in := make(chan *api.Transaction, 1)
	ackChan := make(chan string, 1)
	in <- testTxn("a")
	close(in)

	require.NoError(t, w.Write(context.Background(), in, ackChan))
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, ackChan)
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(nil, Config{}, nil)
	assert.Error(t, err)
}
