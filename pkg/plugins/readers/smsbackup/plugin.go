// Package smsbackup registers the one-shot SMS Backup & Restore import reader.
package smsbackup

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/smsexpensor/internal/plugins"
	"github.com/ArionMiles/smsexpensor/pkg/api"
	backupreader "github.com/ArionMiles/smsexpensor/pkg/reader/smsbackup"
)

// Plugin builds SMS backup readers.
type Plugin struct {
	// MaxBodyLength is applied when the config does not set one.
	MaxBodyLength int
}

func (p *Plugin) Name() string { return "smsbackup" }
func (p *Plugin) Description() string {
	return "Import received SMS from an SMS Backup & Restore XML export once"
}
func (p *Plugin) RequiredScopes() []string { return nil }

func (p *Plugin) ConfigSchema() map[string]any {
	return plugins.Schema(
		plugins.FileProperty("Path to the XML export"),
		plugins.Property{Name: "maxBodyLength", Type: "integer", Description: "Longest accepted message body in bytes"},
	)
}

// Config is the SMS backup reader config document.
type Config struct {
	FilePath      string `json:"filePath" validate:"required"`
	MaxBodyLength int    `json:"maxBodyLength,omitempty" validate:"gte=0"`
}

func (p *Plugin) NewReader(_ *http.Client, data json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	var cfg Config
	if err := plugins.DecodeConfig(data, &cfg); err != nil {
		return nil, fmt.Errorf("smsbackup config: %w", err)
	}
	if cfg.MaxBodyLength == 0 {
		cfg.MaxBodyLength = p.MaxBodyLength
	}
	return backupreader.New(backupreader.Config{Path: cfg.FilePath, MaxBodyLength: cfg.MaxBodyLength}, logger)
}
