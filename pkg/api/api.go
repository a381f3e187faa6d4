// Package api defines the core interfaces and data structures for smsexpensor.
package api

import (
	"context"
	"time"
)

// Direction is the direction of money movement described by a message.
type Direction string

// Transaction directions.
const (
	DirectionCredit  Direction = "CREDIT"
	DirectionDebit   Direction = "DEBIT"
	DirectionUnknown Direction = "UNKNOWN"
)

// Currency of an extracted amount.
type Currency string

// CurrencyINR is the only currency produced.
const CurrencyINR Currency = "INR"

// RawMessage is an inbound text message as delivered by a capture reader.
type RawMessage struct {
	// ID identifies the message at its source (used for acknowledgment).
	ID         string
	Body       string
	Sender     string
	ReceivedAt time.Time
	// Source names the reader that captured the message (e.g. "webhook", "gmail").
	Source string
}

// ClassificationResult is the outcome of classifying one message, with the
// evidence that led to it.
type ClassificationResult struct {
	IsTransactionMessage     bool `json:"isTransactionMessage"`
	SenderMatchedPattern     bool `json:"senderMatchedPattern"`
	SenderMatchedKnownName   bool `json:"senderMatchedKnownName"`
	BodyMatchedKeyword       bool `json:"bodyMatchedKeyword"`
	BodyMatchedAmountPattern bool `json:"bodyMatchedAmountPattern"`
}

// TransactionRecord is the structured form of a bank transaction message.
type TransactionRecord struct {
	// Amount is a non-negative decimal literal, or "0" when none was found.
	Amount    string    `json:"amount"`
	Currency  Currency  `json:"currency"`
	Direction Direction `json:"direction"`
	// RawMessage is the original body, kept verbatim for audit.
	RawMessage string `json:"rawMessage"`
	Sender     string `json:"sender"`
	// Timestamp is the capture time in RFC 3339.
	Timestamp string `json:"timestamp"`
}

// Transaction is a TransactionRecord as handed to writers, together with the
// information collected around it.
type Transaction struct {
	TransactionRecord

	// MessageID is the source message ID (used for acknowledging after a successful write).
	MessageID string `json:"messageId"`
	Source    string `json:"source"`
	Category  string `json:"category"`
	// Description is free text added by the user.
	Description string `json:"description,omitempty"`
}

// Time parses the record timestamp. The zero time is returned for malformed values.
func (r TransactionRecord) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Reader captures messages from a source and sends them to the provided channel.
// Implementations close the channel when they return.
// The ackChan carries IDs of messages that were fully processed.
type Reader interface {
	Read(ctx context.Context, out chan<- *RawMessage, ackChan <-chan string) error
}

// Writer consumes transactions from a channel and writes them to a destination.
// Successfully written transaction message IDs are sent to the ackChan.
type Writer interface {
	Write(ctx context.Context, in <-chan *Transaction, ackChan chan<- string) error
}

// Lister is implemented by writers whose destination can be read back.
// Transactions are returned newest first; limit <= 0 means no limit.
type Lister interface {
	List(ctx context.Context, limit int) ([]*Transaction, error)
}
