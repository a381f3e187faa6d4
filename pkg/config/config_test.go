package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)

	def := Defaults()
	if os.Getenv("EXPENSOR_READER") == "" {
		assert.Equal(t, def.ReaderPlugin, cfg.ReaderPlugin)
	}
	assert.Equal(t, def.DedupTTL, cfg.DedupTTL)
	assert.Equal(t, 4096, cfg.MaxBodyLength)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("EXPENSOR_READER", "nats")
	t.Setenv("EXPENSOR_WRITER", "postgres")
	t.Setenv("EXPENSOR_READER_CONFIG", `{"url":"nats://localhost:4222"}`)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DEDUP_TTL", "36h")
	t.Setenv("MAX_BODY_LENGTH", "1024")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, "nats", cfg.ReaderPlugin)
	assert.Equal(t, "postgres", cfg.WriterPlugin)
	assert.JSONEq(t, `{"url":"nats://localhost:4222"}`, string(cfg.ReaderConfig))
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 36*time.Hour, cfg.DedupTTL)
	assert.Equal(t, 1024, cfg.MaxBodyLength)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := writeFile(t, "smsexpensor.yaml", `
EXPENSOR_READER: mbox
EXPENSOR_WRITER: csv
EXPENSOR_READER_CONFIG:
  filePath: /data/export.mbox
EXPENSOR_WRITER_CONFIG: '{"filePath":"/data/out.csv"}'
REDIS_ADDR: localhost:6379
`)
	t.Setenv("EXPENSOR_WRITER", "json")

	cfg, err := Load(Options{File: path})
	require.NoError(t, err)

	assert.Equal(t, "mbox", cfg.ReaderPlugin)
	assert.Equal(t, "json", cfg.WriterPlugin, "environment wins over the file")
	assert.JSONEq(t, `{"filePath":"/data/export.mbox"}`, string(cfg.ReaderConfig))
	assert.JSONEq(t, `{"filePath":"/data/out.csv"}`, string(cfg.WriterConfig))
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "LABELS_FILE=/etc/smsexpensor/labels.json\n")
	t.Setenv("LABELS_FILE", "")
	require.NoError(t, os.Unsetenv("LABELS_FILE"))

	cfg, err := Load(Options{EnvFile: path})
	require.NoError(t, err)
	assert.Equal(t, "/etc/smsexpensor/labels.json", cfg.LabelsFile)

	_, err = Load(Options{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	assert.NoError(t, err, "a missing dotenv file is skipped")
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "invalid plugin json", env: map[string]string{"EXPENSOR_WRITER_CONFIG": `{"filePath":`}},
		{name: "negative body length", env: map[string]string{"MAX_BODY_LENGTH": "-1"}},
		{name: "bad duration", env: map[string]string{"DEDUP_TTL": "soon"}},
		{name: "missing yaml file", file: "/nonexistent/smsexpensor.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(Options{File: tt.file})
			assert.Error(t, err)
		})
	}
}

func TestReadFile(t *testing.T) {
	data, err := ReadFile("", []byte("fallback"))
	require.NoError(t, err)
	assert.Equal(t, "fallback", string(data))

	path := writeFile(t, "labels.json", `{"rules":[]}`)
	data, err = ReadFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"rules":[]}`, string(data))

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}
