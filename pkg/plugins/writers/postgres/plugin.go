// Package postgres registers the PostgreSQL writer.
package postgres

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/smsexpensor/internal/plugins"
	"github.com/ArionMiles/smsexpensor/pkg/api"
	pgwriter "github.com/ArionMiles/smsexpensor/pkg/writer/postgres"
)

var sslModes = []string{"disable", "require", "verify-ca", "verify-full"}

// Plugin builds PostgreSQL writers.
type Plugin struct{}

func (p *Plugin) Name() string             { return "postgres" }
func (p *Plugin) Description() string      { return "Upsert transactions into a PostgreSQL table" }
func (p *Plugin) RequiredScopes() []string { return nil }

func (p *Plugin) ConfigSchema() map[string]any {
	return plugins.Schema(append([]plugins.Property{
		{Name: "dsn", Type: "string", Description: "Connection string; replaces the discrete fields"},
		{Name: "host", Type: "string", Description: "Server host", Default: "localhost"},
		{Name: "port", Type: "integer", Description: "Server port", Default: 5432},
		{Name: "database", Type: "string", Description: "Database name", Default: "smsexpensor"},
		{Name: "user", Type: "string", Description: "Database user"},
		{Name: "password", Type: "string", Description: "Database password"},
		{Name: "sslmode", Type: "string", Description: "TLS mode", Default: "disable", Enum: sslModes},
		{Name: "maxPoolSize", Type: "integer", Description: "Connections in the pool", Default: 10},
	}, plugins.BatchProperties()...)...)
}

// Config is the PostgreSQL writer config document. Either DSN or host,
// database and user must be given.
type Config struct {
	DSN         string `json:"dsn,omitempty"`
	Host        string `json:"host,omitempty" validate:"required_without=DSN"`
	Port        int    `json:"port,omitempty" validate:"gte=0,lte=65535"`
	Database    string `json:"database,omitempty" validate:"required_without=DSN"`
	User        string `json:"user,omitempty" validate:"required_without=DSN"`
	Password    string `json:"password,omitempty"`
	SSLMode     string `json:"sslmode,omitempty" validate:"omitempty,oneof=disable require verify-ca verify-full"`
	MaxPoolSize int    `json:"maxPoolSize,omitempty" validate:"gte=0"`
	plugins.Batch
}

func (p *Plugin) NewWriter(_ *http.Client, data json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := plugins.DecodeConfig(data, &cfg); err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}

	return pgwriter.New(pgwriter.Config{
		DSN:           cfg.DSN,
		Host:          cfg.Host,
		Port:          cfg.Port,
		Database:      cfg.Database,
		User:          cfg.User,
		Password:      cfg.Password,
		SSLMode:       cfg.SSLMode,
		MaxPoolSize:   cfg.MaxPoolSize,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.Interval(),
	}, logger)
}
