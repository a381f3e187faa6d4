// Package sheets registers the Google Sheets writer.
package sheets

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/smsexpensor/internal/plugins"
	"github.com/ArionMiles/smsexpensor/pkg/api"
	sheetswriter "github.com/ArionMiles/smsexpensor/pkg/writer/sheets"
)

// Plugin builds Sheets writers.
type Plugin struct{}

func (p *Plugin) Name() string             { return "sheets" }
func (p *Plugin) Description() string      { return "Append transactions to a Google Sheets spreadsheet" }
func (p *Plugin) RequiredScopes() []string { return []string{sheetsapi.SpreadsheetsScope} }

func (p *Plugin) ConfigSchema() map[string]any {
	return plugins.Schema(append([]plugins.Property{
		{Name: "sheetId", Type: "string", Description: "Existing spreadsheet ID; a new spreadsheet is created when empty"},
		{Name: "sheetTitle", Type: "string", Description: "Title of a new spreadsheet", Default: sheetswriter.DefaultSheetTitle},
		{Name: "sheetName", Type: "string", Description: "Tab receiving the rows", Default: sheetswriter.DefaultSheetName},
	}, plugins.BatchProperties()...)...)
}

// Config is the Sheets writer config document.
type Config struct {
	SheetID    string `json:"sheetId,omitempty"`
	SheetTitle string `json:"sheetTitle,omitempty"`
	SheetName  string `json:"sheetName,omitempty" validate:"omitempty,excludesall='!"`
	plugins.Batch
}

func (p *Plugin) NewWriter(httpClient *http.Client, data json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := plugins.DecodeConfig(data, &cfg); err != nil {
		return nil, fmt.Errorf("sheets config: %w", err)
	}
	if httpClient == nil {
		return nil, errors.New("sheets writer needs an authorized http client; run setup first")
	}

	return sheetswriter.New(httpClient, sheetswriter.Config{
		SheetID:       cfg.SheetID,
		SheetTitle:    cfg.SheetTitle,
		SheetName:     cfg.SheetName,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.Interval(),
	}, logger)
}
