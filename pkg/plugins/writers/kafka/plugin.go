// Package kafka registers the Kafka publishing writer.
package kafka

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/smsexpensor/internal/plugins"
	"github.com/ArionMiles/smsexpensor/pkg/api"
	kafkawriter "github.com/ArionMiles/smsexpensor/pkg/writer/kafka"
)

// Plugin builds Kafka writers.
type Plugin struct{}

func (p *Plugin) Name() string             { return "kafka" }
func (p *Plugin) Description() string      { return "Publish transactions to a Kafka topic for dashboards" }
func (p *Plugin) RequiredScopes() []string { return nil }

func (p *Plugin) ConfigSchema() map[string]any {
	return plugins.Schema(
		plugins.Property{Name: "brokers", Type: "array", Items: "string", Description: "Bootstrap brokers (host:port)", Required: true},
		plugins.Property{Name: "topic", Type: "string", Description: "Topic to publish to", Default: kafkawriter.DefaultTopic},
	)
}

// Config is the Kafka writer config document.
type Config struct {
	Brokers []string `json:"brokers" validate:"required,min=1,dive,hostname_port"`
	Topic   string   `json:"topic,omitempty"`
}

func (p *Plugin) NewWriter(_ *http.Client, data json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := plugins.DecodeConfig(data, &cfg); err != nil {
		return nil, fmt.Errorf("kafka config: %w", err)
	}
	return kafkawriter.New(kafkawriter.Config{Brokers: cfg.Brokers, Topic: cfg.Topic}, logger)
}
