// Package mbox implements a Reader that imports SMS from an mbox export.
//
// Each email in the mailbox carries one text message. The SMS sender is taken from
// the X-SMS-Sender header when present and otherwise from the subject, the same way
// forwarded SMS are handled by the gmail reader.
package mbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/mail"
	"os"
	"regexp"
	"strings"

	"github.com/emersion/go-mbox"
	"github.com/google/uuid"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/capture"
)

// Source is recorded on messages produced by this reader.
const Source = "mbox"

// SenderHeader names the header some exporters use for the SMS sender.
const SenderHeader = "X-Sms-Sender"

var subjectSender = regexp.MustCompile(`(?i)sms from:?\s*([^\s:]+)`)

// Config holds configuration for the mbox reader.
type Config struct {
	// Path of the mbox file.
	Path string
	// MaxBodyLength drops messages with longer bodies. Zero selects
	// capture.DefaultMaxBodyLength.
	MaxBodyLength int
}

// Reader imports messages from an mbox file once and then stops.
type Reader struct {
	path          string
	maxBodyLength int
	logger        *slog.Logger
}

// New creates a new mbox reader.
func New(cfg Config, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		return nil, errors.New("mbox path is required")
	}
	return &Reader{
		path:          cfg.Path,
		maxBodyLength: cfg.MaxBodyLength,
		logger:        logger.With("component", "mbox_reader"),
	}, nil
}

// Read sends every message in the file to out and returns once the file is exhausted.
// Acknowledgments are drained until ctx is canceled; an mbox has nothing to mark.
func (r *Reader) Read(ctx context.Context, out chan<- *api.RawMessage, ackChan <-chan string) error {
	defer close(out)

	go capture.DrainAcks(ctx, ackChan)

	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("opening mbox: %w", err)
	}
	defer f.Close()

	count := 0
	err = Scan(f, func(msg *api.RawMessage) error {
		if err := capture.CheckBodyLength(msg.Body, r.maxBodyLength); err != nil {
			r.logger.Warn("skipping message", "message_id", msg.ID, "error", err)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- msg:
			count++
			return nil
		}
	}, r.logger)
	if err != nil {
		return err
	}

	r.logger.Info("mbox import complete", "path", r.path, "messages", count)
	return nil
}

// Scan parses every message in an mbox stream and passes it to fn. Emails without a
// text body are skipped. Scanning stops at the first error returned by fn.
func Scan(src io.Reader, fn func(*api.RawMessage) error, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mr := mbox.NewReader(src)
	for i := 0; ; i++ {
		raw, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading mbox message %d: %w", i, err)
		}

		msg, err := Parse(raw)
		if err != nil {
			logger.Warn("skipping message", "index", i, "error", err)
			continue
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

// Parse converts one RFC 5322 email into a RawMessage.
func Parse(r io.Reader) (*api.RawMessage, error) {
	m, err := mail.ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("parsing email: %w", err)
	}

	body, err := textBody(m.Header.Get("Content-Type"), m.Body)
	if err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.New("empty text body")
	}

	id := strings.Trim(m.Header.Get("Message-Id"), "<>")
	if id == "" {
		id = uuid.NewString()
	}

	date, err := m.Header.Date()
	if err != nil {
		return nil, fmt.Errorf("parsing date: %w", err)
	}

	return &api.RawMessage{
		ID:         id,
		Body:       body,
		Sender:     sender(m.Header),
		ReceivedAt: date.UTC(),
		Source:     Source,
	}, nil
}

func sender(h mail.Header) string {
	if s := strings.TrimSpace(h.Get(SenderHeader)); s != "" {
		return s
	}
	if m := subjectSender.FindStringSubmatch(h.Get("Subject")); len(m) > 1 {
		return m[1]
	}
	if addr, err := mail.ParseAddress(h.Get("From")); err == nil {
		return addr.Name
	}
	return ""
}

func textBody(contentType string, body io.Reader) (string, error) {
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("parsing content type: %w", err)
	}

	switch {
	case mediaType == "text/plain":
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("reading body: %w", err)
		}
		return string(data), nil
	case strings.HasPrefix(mediaType, "multipart/"):
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return "", nil
			}
			if err != nil {
				return "", fmt.Errorf("reading multipart body: %w", err)
			}
			text, err := textBody(part.Header.Get("Content-Type"), part)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(text) != "" {
				return text, nil
			}
		}
	default:
		return "", nil
	}
}
