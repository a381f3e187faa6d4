// Package nats implements a Reader that consumes raw SMS events published on NATS.
//
// Gateways publish one JSON event per message on "sms.incoming.raw.<provider>".
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/capture"
)

// Source is recorded on messages produced by this reader.
const Source = "nats"

// Defaults for the subscription.
const (
	DefaultSubject    = "sms.incoming.raw.*"
	DefaultQueueGroup = "smsexpensor"
)

// Config holds configuration for the NATS reader.
type Config struct {
	// URL of the NATS server, e.g. "nats://localhost:4222".
	URL string
	// Subject to subscribe to. Defaults to DefaultSubject.
	Subject string
	// QueueGroup shares messages between replicas. Defaults to DefaultQueueGroup.
	QueueGroup string
	// MaxBodyLength caps accepted message bodies. Zero selects capture.DefaultMaxBodyLength.
	MaxBodyLength int
}

// Reader receives SMS events through a NATS queue subscription.
type Reader struct {
	cfg     Config
	decoder *capture.Decoder
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a new NATS reader.
func New(cfg Config, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = DefaultQueueGroup
	}

	return &Reader{
		cfg:     cfg,
		decoder: capture.NewDecoder(Source, cfg.MaxBodyLength),
		logger:  logger.With("component", "nats_reader"),
	}, nil
}

// Read subscribes and forwards decoded messages to out until ctx is canceled.
// Core NATS has no redelivery, so acknowledgments are only drained.
func (r *Reader) Read(ctx context.Context, out chan<- *api.RawMessage, ackChan <-chan string) error {
	nc, err := nats.Connect(r.cfg.URL,
		nats.Name("smsexpensor"),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			r.logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			r.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		close(out)
		return fmt.Errorf("connecting to nats: %w", err)
	}
	defer nc.Close()

	sub, err := nc.QueueSubscribe(r.cfg.Subject, r.cfg.QueueGroup, func(msg *nats.Msg) {
		r.Handle(ctx, msg, out)
	})
	if err != nil {
		close(out)
		return fmt.Errorf("subscribing to %s: %w", r.cfg.Subject, err)
	}

	r.logger.Info("nats subscription started", "subject", r.cfg.Subject, "queue_group", r.cfg.QueueGroup)

	for {
		select {
		case <-ctx.Done():
			if err := sub.Unsubscribe(); err != nil {
				r.logger.Warn("failed to unsubscribe", "error", err)
			}
			r.shutdown(out)
			r.logger.Info("nats reader stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ackChan:
		}
	}
}

// Handle decodes one NATS message and forwards it to out. Invalid events are logged
// and dropped.
func (r *Reader) Handle(ctx context.Context, msg *nats.Msg, out chan<- *api.RawMessage) {
	provider, ok := providerFromSubject(msg.Subject)
	if !ok {
		r.logger.Error("invalid subject for incoming sms", "subject", msg.Subject)
		return
	}

	raw, err := r.decoder.Decode(msg.Data)
	if err != nil {
		r.logger.Error("dropping sms event", "subject", msg.Subject, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	select {
	case out <- &raw:
		r.logger.Debug("received sms", "provider", provider, "message_id", raw.ID)
	case <-ctx.Done():
	}
}

func (r *Reader) shutdown(out chan<- *api.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(out)
	}
}

// providerFromSubject extracts the provider from "sms.incoming.raw.<provider>".
func providerFromSubject(subject string) (string, bool) {
	parts := strings.Split(subject, ".")
	if len(parts) != 4 || parts[0] != "sms" || parts[1] != "incoming" || parts[2] != "raw" {
		return "", false
	}
	provider := parts[3]
	if provider == "" || provider == "*" || provider == ">" {
		return "", false
	}
	return provider, true
}
