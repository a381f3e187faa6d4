// Package record composes classification and extraction into transaction records.
package record

import (
	"time"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/classifier"
	"github.com/ArionMiles/smsexpensor/pkg/extractor"
)

// Builder turns raw messages into transaction records.
// It is stateless apart from its classifier and safe for concurrent use.
type Builder struct {
	classifier *classifier.Classifier
}

// NewBuilder creates a Builder. A nil classifier selects classifier.Default().
func NewBuilder(c *classifier.Classifier) *Builder {
	if c == nil {
		c = classifier.Default()
	}
	return &Builder{classifier: c}
}

// Build returns the record for msg, or nil when msg is not a transaction message.
func (b *Builder) Build(msg api.RawMessage) *api.TransactionRecord {
	if !b.classifier.IsTransactionMessage(msg.Body, msg.Sender) {
		return nil
	}

	raw, ok := extractor.ExtractAmount(msg.Body)
	if !ok {
		raw = "0"
	}
	amount, currency := extractor.NormalizeAmount(raw)

	return &api.TransactionRecord{
		Amount:     amount,
		Currency:   currency,
		Direction:  extractor.ClassifyDirection(msg.Body),
		RawMessage: msg.Body,
		Sender:     msg.Sender,
		Timestamp:  msg.ReceivedAt.UTC().Format(time.RFC3339),
	}
}
