package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", "app:\n  environment: test\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Environment)
	assert.Equal(t, ":6000", cfg.Server.Addr)
	assert.Equal(t, "binary", cfg.Server.Protocol)
	assert.Equal(t, "persistent", cfg.Server.Mode)
	assert.Equal(t, 30*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 1024, cfg.Server.ReadBufferSize)
	assert.Equal(t, "USD", cfg.Rates.Reference)
	assert.Equal(t, time.Hour, cfg.Rates.TTL)
	assert.Equal(t, []string{"BRL"}, cfg.Rates.Override.Currencies)
	assert.True(t, cfg.Rates.Override.Enabled)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.Equal(t, "localhost:6000", cfg.Client.Addr)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, "fxconv.yaml", `
server:
  addr: "127.0.0.1:3214"
  protocol: TEXT
  mode: single
  idle_timeout: 10s
rates:
  override:
    currencies: [brl, ars]
`)
	t.Setenv("FXCONV_RATES_TTL", "15m")
	t.Setenv("FXCONV_METRICS_ADDR", ":9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:3214", cfg.Server.Addr)
	assert.Equal(t, "text", cfg.Server.Protocol)
	assert.Equal(t, "single", cfg.Server.Mode)
	assert.Equal(t, 10*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, []string{"BRL", "ARS"}, cfg.Rates.Override.Currencies)
	assert.Equal(t, 15*time.Minute, cfg.Rates.TTL)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"protocol":     "server:\n  protocol: json\n",
		"mode":         "server:\n  mode: pipelined\n",
		"reference":    "rates:\n  reference: DOLLAR\n",
		"ttl":          "rates:\n  ttl: 0s\n",
		"telegram":     "alerting:\n  telegram:\n    enabled: true\n",
		"client addr":  "client:\n  addr: nowhere\n",
		"log format":   "logging:\n  format: xml\n",
		"idle timeout": "server:\n  idle_timeout: -1s\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "FXCONV_SERVER_PROTOCOL=text\n")
	t.Setenv("FXCONV_SERVER_PROTOCOL", "")
	require.NoError(t, os.Unsetenv("FXCONV_SERVER_PROTOCOL"))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, "text", os.Getenv("FXCONV_SERVER_PROTOCOL"))

	cfg, err := Load(writeFile(t, "config.yaml", "app:\n  name: fxconv\n"))
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.Server.Protocol)
}
