// Package config loads smsexpensor settings from an optional YAML file, an optional
// .env file and the environment, in increasing order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ClientSecretFile is the default path to the Google OAuth credentials JSON file.
const ClientSecretFile = "data/client_secret.json"

// Keys whose values are plugin config documents.
const (
	readerConfigKey = "EXPENSOR_READER_CONFIG"
	writerConfigKey = "EXPENSOR_WRITER_CONFIG"
)

// Config holds the application configuration.
type Config struct {
	// ReaderPlugin is the name of the reader plugin to use.
	// Environment variable: EXPENSOR_READER
	ReaderPlugin string `koanf:"EXPENSOR_READER"`

	// WriterPlugin is the name of the writer plugin to use.
	// Environment variable: EXPENSOR_WRITER
	WriterPlugin string `koanf:"EXPENSOR_WRITER"`

	// ReaderConfig is the JSON configuration for the reader plugin. In the YAML
	// file it may also be written as a mapping.
	// Environment variable: EXPENSOR_READER_CONFIG
	ReaderConfig json.RawMessage `koanf:"-"`

	// WriterConfig is the JSON configuration for the writer plugin.
	// Environment variable: EXPENSOR_WRITER_CONFIG
	WriterConfig json.RawMessage `koanf:"-"`

	// HTTPAddr enables the read-side API when set, e.g. ":8080".
	// Environment variable: HTTP_ADDR
	HTTPAddr string `koanf:"HTTP_ADDR"`

	// RedisAddr selects Redis-backed de-duplication when set. Otherwise an
	// in-memory window is used.
	// Environment variable: REDIS_ADDR
	RedisAddr string `koanf:"REDIS_ADDR"`

	// DedupTTL is how long a fingerprint is remembered in Redis.
	// Environment variable: DEDUP_TTL
	DedupTTL time.Duration `koanf:"DEDUP_TTL"`

	// MaxBodyLength caps accepted message bodies in bytes.
	// Environment variable: MAX_BODY_LENGTH
	MaxBodyLength int `koanf:"MAX_BODY_LENGTH"`

	// ClassifierFile optionally replaces the built-in sender/keyword lists.
	// Environment variable: CLASSIFIER_FILE
	ClassifierFile string `koanf:"CLASSIFIER_FILE"`

	// LabelsFile optionally replaces the built-in category rules.
	// Environment variable: LABELS_FILE
	LabelsFile string `koanf:"LABELS_FILE"`

	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	// Environment variable: LOG_LEVEL
	LogLevel string `koanf:"LOG_LEVEL"`

	// LogFormat is "text" or "json".
	// Environment variable: LOG_FORMAT
	LogFormat string `koanf:"LOG_FORMAT"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		ReaderPlugin:  "webhook",
		WriterPlugin:  "json",
		DedupTTL:      7 * 24 * time.Hour,
		MaxBodyLength: 4096,
		LogLevel:      "INFO",
		LogFormat:     "text",
	}
}

// Options selects the files consulted by Load. Empty fields are skipped.
type Options struct {
	// File is a YAML file using the same keys as the environment.
	File string
	// EnvFile is a dotenv file. A missing file is not an error.
	EnvFile string
}

// Load reads the YAML file, then the dotenv file, then the environment.
// Variables already present in the environment win over the dotenv file.
func Load(opts Options) (Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", opts.EnvFile, err)
		}
	}

	k := koanf.New(".")
	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading %s: %w", opts.File, err)
		}
	}
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	return fromKoanf(k)
}

func fromKoanf(k *koanf.Koanf) (Config, error) {
	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	var err error
	if cfg.ReaderConfig, err = pluginConfig(k, readerConfigKey); err != nil {
		return Config{}, err
	}
	if cfg.WriterConfig, err = pluginConfig(k, writerConfigKey); err != nil {
		return Config{}, err
	}

	if cfg.MaxBodyLength < 0 {
		return Config{}, fmt.Errorf("MAX_BODY_LENGTH must not be negative, got %d", cfg.MaxBodyLength)
	}
	return cfg, nil
}

// pluginConfig returns the JSON document stored under key, accepting either a JSON
// string or a YAML mapping.
func pluginConfig(k *koanf.Koanf, key string) (json.RawMessage, error) {
	switch v := k.Get(key).(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		if !json.Valid([]byte(v)) {
			return nil, fmt.Errorf("%s is not valid JSON", key)
		}
		return json.RawMessage(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", key, err)
		}
		return data, nil
	}
}

// ReadFile returns the contents of path, or fallback when path is empty.
func ReadFile(path string, fallback []byte) ([]byte, error) {
	if path == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
