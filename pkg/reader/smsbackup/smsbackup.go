// Package smsbackup implements a Reader that imports an "SMS Backup & Restore" XML
// export (<smses><sms address=... body=... date=... type=.../></smses>) once.
package smsbackup

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/capture"
	"github.com/ArionMiles/smsexpensor/pkg/dedup"
)

// Source is recorded on messages produced by this reader.
const Source = "smsbackup"

// Message types in the export. Only received messages are imported.
const (
	typeInbox = "1"
	typeSent  = "2"
)

// Config holds configuration for the SMS backup reader.
type Config struct {
	// Path of the XML export.
	Path string
	// MaxBodyLength drops messages with longer bodies. Zero selects
	// capture.DefaultMaxBodyLength.
	MaxBodyLength int
}

// Reader imports messages from an XML export once and then stops.
type Reader struct {
	path          string
	maxBodyLength int
	logger        *slog.Logger
}

// New creates a new SMS backup reader.
func New(cfg Config, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		return nil, errors.New("sms backup path is required")
	}
	return &Reader{
		path:          cfg.Path,
		maxBodyLength: cfg.MaxBodyLength,
		logger:        logger.With("component", "smsbackup_reader"),
	}, nil
}

// Read sends every received SMS in the export to out and returns at the end of the file.
func (r *Reader) Read(ctx context.Context, out chan<- *api.RawMessage, ackChan <-chan string) error {
	defer close(out)

	go capture.DrainAcks(ctx, ackChan)

	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("opening sms backup: %w", err)
	}
	defer f.Close()

	count := 0
	err = Scan(f, func(msg *api.RawMessage) error {
		if err := capture.CheckBodyLength(msg.Body, r.maxBodyLength); err != nil {
			r.logger.Warn("skipping sms", "message_id", msg.ID, "sender", msg.Sender, "error", err)
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

	r.logger.Info("sms backup import complete", "path", r.path, "messages", count)
	return nil
}

type smsElement struct {
	Address string `xml:"address,attr"`
	Body    string `xml:"body,attr"`
	Date    string `xml:"date,attr"`
	Type    string `xml:"type,attr"`
}

// Scan streams <sms> elements from src and passes each received message to fn.
// Sent messages and entries with an empty body or unparsable date are skipped.
func Scan(src io.Reader, fn func(*api.RawMessage) error, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	dec := xml.NewDecoder(src)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading sms backup: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "sms" {
			continue
		}

		var el smsElement
		if err := dec.DecodeElement(&el, &start); err != nil {
			return fmt.Errorf("decoding sms element: %w", err)
		}

		msg, err := Convert(el.Address, el.Body, el.Date, el.Type)
		if err != nil {
			logger.Debug("skipping sms", "address", el.Address, "reason", err)
			continue
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

// Convert builds a RawMessage from the attributes of one <sms> element. The ID is
// derived from the content so that importing the same export twice yields the same IDs.
func Convert(address, body, date, typ string) (*api.RawMessage, error) {
	if typ == typeSent {
		return nil, errors.New("sent message")
	}
	if typ != "" && typ != typeInbox {
		return nil, fmt.Errorf("unsupported message type %q", typ)
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.New("empty body")
	}

	ms, err := strconv.ParseInt(date, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing date %q: %w", date, err)
	}

	msg := &api.RawMessage{
		Body:       body,
		Sender:     strings.TrimSpace(address),
		ReceivedAt: time.UnixMilli(ms).UTC(),
		Source:     Source,
	}
	msg.ID = Source + "-" + dedup.Fingerprint(*msg)[:16]
	return msg, nil
}
