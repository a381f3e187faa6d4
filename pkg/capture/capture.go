// Package capture decodes inbound message events into api.RawMessage values.
//
// Events arrive as JSON from devices, the webhook endpoint and NATS:
//
//	{"id": "...", "messageBody": "...", "senderPhoneNumber": "...", "timestamp": 1710400000000}
//
// The decode step either produces a complete RawMessage or rejects the event.
package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ArionMiles/smsexpensor/pkg/api"
)

// DefaultMaxBodyLength bounds the body handed to the classifier.
const DefaultMaxBodyLength = 4096

var (
	// ErrInvalidPayload is returned for events that are not valid JSON or miss required fields.
	ErrInvalidPayload = errors.New("invalid message payload")
	// ErrBodyTooLong is returned for events whose body exceeds the configured limit.
	ErrBodyTooLong = errors.New("message body too long")
)

// Event is the wire shape of an inbound message event.
type Event struct {
	ID        string `json:"id,omitempty" validate:"omitempty,max=128"`
	Body      string `json:"messageBody" validate:"required"`
	Sender    string `json:"senderPhoneNumber" validate:"max=64"`
	Timestamp int64  `json:"timestamp" validate:"gte=0"`
	// Launch marks the message that opened the app. It is offered to the pending slot.
	Launch bool `json:"launch,omitempty"`
}

// Decoder validates events and converts them into RawMessages.
type Decoder struct {
	// Source is recorded on every decoded message.
	Source string
	// MaxBodyLength is the largest accepted body in bytes. Zero selects DefaultMaxBodyLength.
	MaxBodyLength int
	// Now supplies the receive time for events without a timestamp.
	Now func() time.Time
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewDecoder creates a Decoder for the named source.
func NewDecoder(source string, maxBodyLength int) *Decoder {
	return &Decoder{
		Source:        source,
		MaxBodyLength: maxBodyLength,
		Now:           time.Now,
	}
}

// Decode parses data as an Event and converts it.
func (d *Decoder) Decode(data []byte) (api.RawMessage, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return api.RawMessage{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return d.Convert(ev)
}

// DecodeEvent parses data and returns the event alongside the converted message.
func (d *Decoder) DecodeEvent(data []byte) (Event, api.RawMessage, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, api.RawMessage{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	msg, err := d.Convert(ev)
	return ev, msg, err
}

// Convert validates ev and builds the RawMessage. A missing ID is replaced by a
// random UUID and a missing timestamp by the current time.
func (d *Decoder) Convert(ev Event) (api.RawMessage, error) {
	if strings.TrimSpace(ev.Body) == "" {
		return api.RawMessage{}, fmt.Errorf("%w: empty message body", ErrInvalidPayload)
	}
	if !utf8.ValidString(ev.Body) || !utf8.ValidString(ev.Sender) {
		return api.RawMessage{}, fmt.Errorf("%w: not valid UTF-8", ErrInvalidPayload)
	}
	if err := validate.Struct(ev); err != nil {
		return api.RawMessage{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := CheckBodyLength(ev.Body, d.MaxBodyLength); err != nil {
		return api.RawMessage{}, err
	}

	id := ev.ID
	if id == "" {
		id = uuid.NewString()
	}

	receivedAt := time.UnixMilli(ev.Timestamp).UTC()
	if ev.Timestamp == 0 {
		receivedAt = d.now().UTC()
	}

	return api.RawMessage{
		ID:         id,
		Body:       ev.Body,
		Sender:     strings.TrimSpace(ev.Sender),
		ReceivedAt: receivedAt,
		Source:     d.Source,
	}, nil
}

// CheckBodyLength returns ErrBodyTooLong when body is longer than limit bytes.
// A limit of zero or less selects DefaultMaxBodyLength.
func CheckBodyLength(body string, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxBodyLength
	}
	if len(body) > limit {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrBodyTooLong, len(body), limit)
	}
	return nil
}

// DrainAcks discards acknowledgments until ctx is done or ackChan is closed.
// One-shot importers run it since their sources have nothing to mark.
func DrainAcks(ctx context.Context, ackChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ackChan:
			if !ok {
				return
			}
		}
	}
}

func (d *Decoder) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// PendingSlot holds at most one message waiting to be picked up, such as the
// message that launched the app. A message can be taken exactly once.
type PendingSlot struct {
	mu  sync.Mutex
	msg *api.RawMessage
}

// Offer stores msg, replacing any message that was not yet taken.
func (s *PendingSlot) Offer(msg api.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msg = &msg
}

// Take returns the pending message and empties the slot.
func (s *PendingSlot) Take() (api.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.msg == nil {
		return api.RawMessage{}, false
	}
	msg := *s.msg
	s.msg = nil
	return msg, true
}
