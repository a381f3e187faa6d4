// Package webhook registers the HTTP capture reader.
package webhook

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/smsexpensor/internal/plugins"
	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/capture"
	webhookreader "github.com/ArionMiles/smsexpensor/pkg/reader/webhook"
)

// Plugin builds webhook readers.
type Plugin struct {
	// Pending receives launch messages. Optional.
	Pending *capture.PendingSlot
	// MaxBodyLength is applied when the config does not set one.
	MaxBodyLength int
}

func (p *Plugin) Name() string             { return "webhook" }
func (p *Plugin) Description() string      { return "Receive SMS events POSTed by capture devices" }
func (p *Plugin) RequiredScopes() []string { return nil }

func (p *Plugin) ConfigSchema() map[string]any {
	return plugins.Schema(
		plugins.Property{Name: "addr", Type: "string", Description: "Listen address for POST /api/messages", Default: webhookreader.DefaultAddr},
		plugins.Property{Name: "maxBodyLength", Type: "integer", Description: "Longest accepted message body in bytes"},
	)
}

// Config is the webhook reader config document.
type Config struct {
	Addr          string `json:"addr,omitempty" validate:"omitempty,hostname_port|startswith=:"`
	MaxBodyLength int    `json:"maxBodyLength,omitempty" validate:"gte=0"`
}

func (p *Plugin) NewReader(_ *http.Client, data json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	var cfg Config
	if err := plugins.DecodeConfig(data, &cfg); err != nil {
		return nil, fmt.Errorf("webhook config: %w", err)
	}
	if cfg.MaxBodyLength == 0 {
		cfg.MaxBodyLength = p.MaxBodyLength
	}

	return webhookreader.New(webhookreader.Config{
		Addr:          cfg.Addr,
		MaxBodyLength: cfg.MaxBodyLength,
		Pending:       p.Pending,
	}, logger), nil
}
