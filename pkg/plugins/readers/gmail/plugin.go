// Package gmail registers the Gmail reader for SMS forwarded to an inbox.
package gmail

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/ArionMiles/smsexpensor/internal/plugins"
	"github.com/ArionMiles/smsexpensor/pkg/api"
	gmailreader "github.com/ArionMiles/smsexpensor/pkg/reader/gmail"
)

// Plugin builds gmail readers.
type Plugin struct {
	// MaxBodyLength is applied when the config does not set one.
	MaxBodyLength int
}

func (p *Plugin) Name() string        { return "gmail" }
func (p *Plugin) Description() string { return "Read bank SMS forwarded to a Gmail inbox" }

// RequiredScopes covers listing messages and clearing their UNREAD label.
func (p *Plugin) RequiredScopes() []string {
	return []string{gmailapi.GmailReadonlyScope, gmailapi.GmailModifyScope}
}

func (p *Plugin) ConfigSchema() map[string]any {
	return plugins.Schema(
		plugins.Property{Name: "query", Type: "string", Description: "Gmail search query selecting forwarded SMS", Default: gmailreader.DefaultQuery},
		plugins.Property{Name: "senderRegex", Type: "string", Description: "Regex whose first group is the SMS sender in the subject"},
		plugins.Property{Name: "interval", Type: "integer", Description: "Seconds between inbox polls", Default: 10},
		plugins.Property{Name: "maxBodyLength", Type: "integer", Description: "Longest accepted message body in bytes"},
	)
}

// Config is the gmail reader config document.
type Config struct {
	Query         string `json:"query,omitempty"`
	SenderRegex   string `json:"senderRegex,omitempty"`
	Interval      int    `json:"interval,omitempty" validate:"gte=0"`
	MaxBodyLength int    `json:"maxBodyLength,omitempty" validate:"gte=0"`
}

func (p *Plugin) NewReader(httpClient *http.Client, data json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	var cfg Config
	if err := plugins.DecodeConfig(data, &cfg); err != nil {
		return nil, fmt.Errorf("gmail config: %w", err)
	}
	if httpClient == nil {
		return nil, errors.New("gmail reader needs an authorized http client; run setup first")
	}

	if cfg.MaxBodyLength == 0 {
		cfg.MaxBodyLength = p.MaxBodyLength
	}

	readerCfg := gmailreader.Config{
		Query:         cfg.Query,
		Interval:      time.Duration(cfg.Interval) * time.Second,
		MaxBodyLength: cfg.MaxBodyLength,
	}
	if cfg.SenderRegex != "" {
		re, err := regexp.Compile(cfg.SenderRegex)
		if err != nil {
			return nil, fmt.Errorf("compiling senderRegex: %w", err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("senderRegex %q has no capture group", cfg.SenderRegex)
		}
		readerCfg.SenderPattern = re
	}
	return gmailreader.New(httpClient, readerCfg, logger)
}
