// Package nats registers the NATS capture reader.
package nats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/smsexpensor/internal/plugins"
	"github.com/ArionMiles/smsexpensor/pkg/api"
	natsreader "github.com/ArionMiles/smsexpensor/pkg/reader/nats"
)

// Plugin builds NATS readers.
type Plugin struct {
	// MaxBodyLength is applied when the config does not set one.
	MaxBodyLength int
}

func (p *Plugin) Name() string { return "nats" }
func (p *Plugin) Description() string {
	return "Receive SMS events published to NATS by capture devices"
}
func (p *Plugin) RequiredScopes() []string { return nil }

func (p *Plugin) ConfigSchema() map[string]any {
	return plugins.Schema(
		plugins.Property{Name: "url", Type: "string", Description: "NATS server URL", Required: true},
		plugins.Property{Name: "subject", Type: "string", Description: "Subject to subscribe to", Default: natsreader.DefaultSubject},
		plugins.Property{Name: "queueGroup", Type: "string", Description: "Queue group shared by replicas", Default: natsreader.DefaultQueueGroup},
		plugins.Property{Name: "maxBodyLength", Type: "integer", Description: "Longest accepted message body in bytes"},
	)
}

// Config is the NATS reader config document.
type Config struct {
	URL           string `json:"url" validate:"required,url"`
	Subject       string `json:"subject,omitempty"`
	QueueGroup    string `json:"queueGroup,omitempty"`
	MaxBodyLength int    `json:"maxBodyLength,omitempty" validate:"gte=0"`
}

func (p *Plugin) NewReader(_ *http.Client, data json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	var cfg Config
	if err := plugins.DecodeConfig(data, &cfg); err != nil {
		return nil, fmt.Errorf("nats config: %w", err)
	}
	if cfg.MaxBodyLength == 0 {
		cfg.MaxBodyLength = p.MaxBodyLength
	}

	return natsreader.New(natsreader.Config{
		URL:           cfg.URL,
		Subject:       cfg.Subject,
		QueueGroup:    cfg.QueueGroup,
		MaxBodyLength: cfg.MaxBodyLength,
	}, logger)
}
