// Package report implements a Writer that reports each transaction to a remote
// endpoint as a JSON POST.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"

	"github.com/ArionMiles/smsexpensor/pkg/api"
)

// Payload is the body POSTed for every transaction.
type Payload struct {
	Amount          json.Number `json:"amount"`
	Type            string      `json:"type"`
	Category        string      `json:"category"`
	Description     string      `json:"description"`
	OriginalMessage string      `json:"originalMessage"`
	// Timestamp is the capture time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Transaction types reported to the endpoint.
const (
	TypeCredited = "credited"
	TypeDebited  = "debited"
	TypeUnknown  = "unknown"
)

// NewPayload converts a transaction into the report payload.
func NewPayload(txn *api.Transaction) Payload {
	typ := TypeUnknown
	switch txn.Direction {
	case api.DirectionCredit:
		typ = TypeCredited
	case api.DirectionDebit:
		typ = TypeDebited
	}

	amount := txn.Amount
	if amount == "" {
		amount = "0"
	}

	var ts int64
	if t := txn.Time(); !t.IsZero() {
		ts = t.UnixMilli()
	}

	return Payload{
		Amount:          json.Number(amount),
		Type:            typ,
		Category:        txn.Category,
		Description:     txn.Description,
		OriginalMessage: txn.RawMessage,
		Timestamp:       ts,
	}
}

// Config holds configuration for the report writer.
type Config struct {
	// URL of the endpoint receiving the POST.
	URL string
	// Headers are added to every request, e.g. an API key.
	Headers map[string]string
	// Attempts per transaction. Defaults to 3.
	Attempts uint
	// Delay between attempts. Defaults to one second.
	Delay time.Duration
	// Timeout per request. Defaults to ten seconds.
	Timeout time.Duration
}

// Writer posts transactions one at a time.
type Writer struct {
	client   *http.Client
	url      string
	headers  map[string]string
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
}

// New creates a report writer. A nil client selects a client with Config.Timeout.
func New(client *http.Client, cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		return nil, errors.New("report url is required")
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.Delay == 0 {
		cfg.Delay = time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Writer{
		client:   client,
		url:      cfg.URL,
		headers:  cfg.Headers,
		attempts: cfg.Attempts,
		delay:    cfg.Delay,
		logger:   logger.With("component", "report_writer"),
	}, nil
}

// Write reports transactions until in is closed or ctx is canceled.
// Transactions the endpoint rejected are logged and not acknowledged.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case txn, ok := <-in:
			if !ok {
				return nil
			}
			if err := w.Report(ctx, txn); err != nil {
				w.logger.Error("failed to report transaction", "message_id", txn.MessageID, "error", err)
				continue
			}
			if txn.MessageID == "" {
				continue
			}
			select {
			case ackChan <- txn.MessageID:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// statusError is returned for non-2xx responses.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("endpoint returned %d: %s", e.code, e.body)
}

// Report posts one transaction, retrying transport errors and 5xx responses.
func (w *Writer) Report(ctx context.Context, txn *api.Transaction) error {
	body, err := json.Marshal(NewPayload(txn))
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	return retry.Do(
		func() error {
			return w.post(ctx, body)
		},
		retry.RetryIf(func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.code >= http.StatusInternalServerError || se.code == http.StatusTooManyRequests
			}
			return ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			w.logger.Warn("report attempt failed, will retry", "attempt", n+1, "error", err)
		}),
		retry.Attempts(w.attempts),
		retry.Delay(w.delay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
}

func (w *Writer) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: string(snippet)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
