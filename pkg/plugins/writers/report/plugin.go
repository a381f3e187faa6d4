// Package report registers the remote reporting writer.
package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ArionMiles/smsexpensor/internal/plugins"
	"github.com/ArionMiles/smsexpensor/pkg/api"
	reportwriter "github.com/ArionMiles/smsexpensor/pkg/writer/report"
)

// Plugin builds report writers.
type Plugin struct{}

func (p *Plugin) Name() string             { return "report" }
func (p *Plugin) Description() string      { return "POST each transaction to a remote reporting endpoint" }
func (p *Plugin) RequiredScopes() []string { return nil }

func (p *Plugin) ConfigSchema() map[string]any {
	return plugins.Schema(
		plugins.Property{Name: "url", Type: "string", Description: "Endpoint receiving the JSON POST", Required: true},
		plugins.Property{Name: "headers", Type: "object", Items: "string", Description: "Extra request headers, e.g. an API key"},
		plugins.Property{Name: "attempts", Type: "integer", Description: "Attempts per transaction", Default: 3},
		plugins.Property{Name: "timeout", Type: "integer", Description: "Request timeout in seconds", Default: 10},
	)
}

// Config is the report writer config document.
type Config struct {
	URL      string            `json:"url" validate:"required,http_url"`
	Headers  map[string]string `json:"headers,omitempty"`
	Attempts uint              `json:"attempts,omitempty"`
	Timeout  int               `json:"timeout,omitempty" validate:"gte=0"`
}

// NewWriter ignores the OAuth client; the endpoint has its own credentials.
func (p *Plugin) NewWriter(_ *http.Client, data json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := plugins.DecodeConfig(data, &cfg); err != nil {
		return nil, fmt.Errorf("report config: %w", err)
	}

	return reportwriter.New(nil, reportwriter.Config{
		URL:      cfg.URL,
		Headers:  cfg.Headers,
		Attempts: cfg.Attempts,
		Timeout:  time.Duration(cfg.Timeout) * time.Second,
	}, logger)
}
