// Package csv registers the CSV export writer.
package csv

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/smsexpensor/internal/plugins"
	"github.com/ArionMiles/smsexpensor/pkg/api"
	csvwriter "github.com/ArionMiles/smsexpensor/pkg/writer/csv"
)

// Plugin builds CSV writers.
type Plugin struct{}

func (p *Plugin) Name() string             { return "csv" }
func (p *Plugin) Description() string      { return "Append transactions to a CSV file" }
func (p *Plugin) RequiredScopes() []string { return nil }

func (p *Plugin) ConfigSchema() map[string]any {
	return plugins.Schema(append(
		[]plugins.Property{plugins.FileProperty("Path to the CSV file")},
		plugins.BatchProperties()...,
	)...)
}

// Config is the CSV writer config document.
type Config struct {
	FilePath string `json:"filePath" validate:"required"`
	plugins.Batch
}

func (p *Plugin) NewWriter(_ *http.Client, data json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := plugins.DecodeConfig(data, &cfg); err != nil {
		return nil, fmt.Errorf("csv config: %w", err)
	}

	return csvwriter.New(csvwriter.Config{
		FilePath:      cfg.FilePath,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.Interval(),
	}, logger)
}
