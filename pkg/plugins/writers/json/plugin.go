// Package json registers the JSON file writer.
package json

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/smsexpensor/internal/plugins"
	"github.com/ArionMiles/smsexpensor/pkg/api"
	jsonwriter "github.com/ArionMiles/smsexpensor/pkg/writer/json"
)

// Plugin builds JSON writers.
type Plugin struct{}

func (p *Plugin) Name() string             { return "json" }
func (p *Plugin) Description() string      { return "Store transactions in a JSON file, newest first" }
func (p *Plugin) RequiredScopes() []string { return nil }

func (p *Plugin) ConfigSchema() map[string]any {
	return plugins.Schema(append(
		[]plugins.Property{plugins.FileProperty("Path to the JSON store")},
		plugins.BatchProperties()...,
	)...)
}

// Config is the JSON writer config document.
type Config struct {
	FilePath string `json:"filePath" validate:"required"`
	plugins.Batch
}

func (p *Plugin) NewWriter(_ *http.Client, data json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := plugins.DecodeConfig(data, &cfg); err != nil {
		return nil, fmt.Errorf("json config: %w", err)
	}

	return jsonwriter.New(jsonwriter.Config{
		FilePath:      cfg.FilePath,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.Interval(),
	}, logger)
}
