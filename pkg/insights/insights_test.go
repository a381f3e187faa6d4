package insights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/smsexpensor/pkg/api"
)

func txn(amount string, dir api.Direction, category, ts string) *api.Transaction {
	return &api.Transaction{
		TransactionRecord: api.TransactionRecord{
			Amount:    amount,
			Currency:  api.CurrencyINR,
			Direction: dir,
			Timestamp: ts,
		},
		Category: category,
	}
}

func TestByCategory(t *testing.T) {
	txns := []*api.Transaction{
		txn("120.50", api.DirectionDebit, "Food & Dining", "2024-03-14T04:00:00Z"),
		txn("79.50", api.DirectionDebit, "Food & Dining", "2024-03-13T04:00:00Z"),
		txn("500", api.DirectionDebit, "Shopping", "2024-03-12T04:00:00Z"),
		txn("10000", api.DirectionCredit, "Salary", "2024-03-01T04:00:00Z"),
		txn("not-a-number", api.DirectionDebit, "Travel", "2024-03-01T04:00:00Z"),
		nil,
	}

	got := ByCategory(txns)
	require.Len(t, got, 2)

	assert.Equal(t, "Shopping", got[0].Category)
	assert.Equal(t, "500", got[0].Total.String())
	assert.Equal(t, 1, got[0].Count)

	assert.Equal(t, "Food & Dining", got[1].Category)
	assert.Equal(t, "200", got[1].Total.String())
	assert.Equal(t, 2, got[1].Count)
}

func TestDaily(t *testing.T) {
	now := time.Date(2024, time.March, 14, 18, 30, 0, 0, time.UTC)
	txns := []*api.Transaction{
		txn("100", api.DirectionDebit, "Shopping", "2024-03-14T04:00:00Z"),
		txn("50.25", api.DirectionDebit, "Shopping", "2024-03-14T23:59:59Z"),
		txn("40", api.DirectionDebit, "Shopping", "2024-03-12T10:00:00Z"),
		txn("999", api.DirectionDebit, "Shopping", "2024-03-01T10:00:00Z"),
		txn("700", api.DirectionCredit, "Salary", "2024-03-13T10:00:00Z"),
		txn("5", api.DirectionDebit, "Shopping", "garbage"),
	}

	got := Daily(txns, now, 3)
	require.Len(t, got, 3)

	assert.Equal(t, "2024-03-12", got[0].Date)
	assert.Equal(t, "40", got[0].Total.String())
	assert.Equal(t, "2024-03-13", got[1].Date)
	assert.True(t, got[1].Total.IsZero())
	assert.Equal(t, "2024-03-14", got[2].Date)
	assert.Equal(t, "150.25", got[2].Total.String())

	assert.Nil(t, Daily(txns, now, 0))
}
