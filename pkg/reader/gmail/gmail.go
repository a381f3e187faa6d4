// Package gmail implements a Reader that picks up bank SMS forwarded to a Gmail inbox.
//
// SMS forwarding apps deliver each text as an email whose subject names the original
// sender (for example "SMS from VM-HDFCBK") and whose plain-text body is the message.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/capture"
)

// Source is recorded on messages produced by this reader.
const Source = "gmail"

// DefaultQuery selects unread forwarded SMS.
const DefaultQuery = `is:unread subject:"SMS from"`

// DefaultSenderPattern extracts the SMS sender from the email subject.
var DefaultSenderPattern = regexp.MustCompile(`(?i)sms from:?\s*([^\s:]+)`)

// Reader reads forwarded SMS from Gmail messages.
type Reader struct {
	client        *gmail.Service
	query         string
	senderPattern *regexp.Regexp
	interval      time.Duration
	maxBodyLength int
	logger        *slog.Logger
}

// Config holds configuration for the Gmail reader.
type Config struct {
	// Query is the Gmail search query selecting forwarded SMS. Defaults to DefaultQuery.
	Query string
	// SenderPattern extracts the SMS sender from the subject in its first group.
	// Defaults to DefaultSenderPattern.
	SenderPattern *regexp.Regexp
	// Interval between inbox polls. Defaults to 10 seconds.
	Interval time.Duration
	// MaxBodyLength drops emails with longer bodies. Zero selects
	// capture.DefaultMaxBodyLength.
	MaxBodyLength int
}

// New creates a new Gmail reader.
func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := gmail.NewService(context.Background(), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	query := cfg.Query
	if query == "" {
		query = DefaultQuery
	}

	pattern := cfg.SenderPattern
	if pattern == nil {
		pattern = DefaultSenderPattern
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = 10 * time.Second
	}

	return &Reader{
		client:        client,
		query:         query,
		senderPattern: pattern,
		interval:      interval,
		maxBodyLength: cfg.MaxBodyLength,
		logger:        logger.With("component", "gmail_reader"),
	}, nil
}

// Read polls the inbox and sends forwarded SMS to the output channel.
// It runs until the context is canceled.
// Emails are only marked as read after receiving acknowledgment via ackChan.
func (r *Reader) Read(ctx context.Context, out chan<- *api.RawMessage, ackChan <-chan string) error {
	defer close(out)

	go r.handleAcknowledgments(ctx, ackChan)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Run immediately on start
	r.poll(ctx, out)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("gmail reader stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			r.poll(ctx, out)
		}
	}
}

// handleAcknowledgments marks emails as read once they are fully processed.
func (r *Reader) handleAcknowledgments(ctx context.Context, ackChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msgID, ok := <-ackChan:
			if !ok {
				r.logger.Info("acknowledgment channel closed")
				return
			}
			r.markAsRead(ctx, msgID)
		}
	}
}

func (r *Reader) markAsRead(ctx context.Context, msgID string) {
	_, err := r.client.Users.Messages.Modify("me", msgID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		r.logger.Warn("failed to mark message as read", "message_id", msgID, "error", err)
	} else {
		r.logger.Debug("marked message as read", "message_id", msgID)
	}
}

func (r *Reader) poll(ctx context.Context, out chan<- *api.RawMessage) {
	resp, err := r.client.Users.Messages.List("me").Q(r.query).Context(ctx).Do()
	if err != nil {
		r.logger.Error("failed to list messages", "query", r.query, "error", err)
		return
	}

	r.logger.Info("found messages", "count", len(resp.Messages))

	for _, msg := range resp.Messages {
		if err := r.processMessage(ctx, msg.Id, out); err != nil {
			r.logger.Error("failed to process message", "message_id", msg.Id, "error", err)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (r *Reader) processMessage(ctx context.Context, msgID string, out chan<- *api.RawMessage) error {
	msg, err := r.client.Users.Messages.Get("me", msgID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("getting message: %w", err)
	}

	raw, ok := ToRawMessage(msg, r.senderPattern)
	if !ok {
		r.logger.Warn("empty message body", "message_id", msgID)
		return nil
	}
	if err := capture.CheckBodyLength(raw.Body, r.maxBodyLength); err != nil {
		// Marked read so the next poll does not fetch it again.
		r.logger.Warn("dropping message", "message_id", msgID, "error", err)
		r.markAsRead(ctx, msgID)
		return nil
	}

	r.logger.Debug("captured sms", "message_id", msgID, "sender", raw.Sender)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- raw:
	}
	return nil
}

// ToRawMessage converts a Gmail message into a RawMessage. The Gmail message ID is
// kept as the message ID so that acknowledgments can mark the email as read.
// It reports false when the email has no text body.
func ToRawMessage(msg *gmail.Message, senderPattern *regexp.Regexp) (*api.RawMessage, bool) {
	if msg == nil || msg.Payload == nil {
		return nil, false
	}

	body := strings.TrimSpace(extractBody(msg.Payload))
	if body == "" {
		return nil, false
	}

	return &api.RawMessage{
		ID:         msg.Id,
		Body:       body,
		Sender:     extractSender(msg.Payload.Headers, senderPattern),
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
		Source:     Source,
	}, true
}

func extractSender(headers []*gmail.MessagePartHeader, pattern *regexp.Regexp) string {
	var subject, from string
	for _, header := range headers {
		switch header.Name {
		case "Subject":
			subject = header.Value
		case "From":
			from = header.Value
		}
	}

	if m := pattern.FindStringSubmatch(subject); len(m) > 1 {
		return m[1]
	}

	// Some forwarders put the SMS sender in the display name instead.
	if addr, err := mail.ParseAddress(from); err == nil && addr.Name != "" {
		return addr.Name
	}
	return ""
}

// extractBody returns the first text/plain part, falling back to the payload body.
func extractBody(part *gmail.MessagePart) string {
	if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
		if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
			return string(data)
		}
	}

	for _, child := range part.Parts {
		if body := extractBody(child); body != "" {
			return body
		}
	}

	if len(part.Parts) == 0 && part.MimeType != "text/html" && part.Body != nil && part.Body.Data != "" {
		if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
			return string(data)
		}
	}
	return ""
}
