package plugins

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema(t *testing.T) {
	schema := Schema(
		Property{Name: "url", Type: "string", Description: "endpoint", Required: true},
		Property{Name: "brokers", Type: "array", Items: "string", Description: "brokers", Required: true},
		Property{Name: "headers", Type: "object", Items: "string", Description: "headers"},
		Property{Name: "mode", Type: "string", Description: "mode", Default: "a", Enum: []string{"a", "b"}},
	)

	data, err := json.Marshal(schema)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "endpoint"},
			"brokers": {"type": "array", "description": "brokers", "items": {"type": "string"}},
			"headers": {"type": "object", "description": "headers", "additionalProperties": {"type": "string"}},
			"mode": {"type": "string", "description": "mode", "default": "a", "enum": ["a", "b"]}
		},
		"required": ["url", "brokers"]
	}`, string(data))

	_, ok := Schema(Property{Name: "x", Type: "string"})["required"]
	assert.False(t, ok, "required is omitted when nothing is required")
}

func TestBatch(t *testing.T) {
	type writerConfig struct {
		FilePath string `json:"filePath" validate:"required"`
		Batch
	}

	tests := []struct {
		name     string
		data     string
		wantSize int
		wantWait time.Duration
		wantErr  bool
	}{
		{name: "defaults", data: `{"filePath":"x"}`},
		{name: "inline fields", data: `{"filePath":"x","batchSize":5,"flushInterval":2}`, wantSize: 5, wantWait: 2 * time.Second},
		{name: "negative interval", data: `{"filePath":"x","flushInterval":-1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg writerConfig
			err := DecodeConfig(json.RawMessage(tt.data), &cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, cfg.BatchSize)
			assert.Equal(t, tt.wantWait, cfg.Interval())
		})
	}
}
