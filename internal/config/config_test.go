package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_KeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, `
engine:
  accept_threshold: 0.9
vanguard:
  base_url: http://localhost:11434/v1
  models: [mistral]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.Engine.AcceptThreshold)
	assert.Equal(t, 4, cfg.Engine.MaxInflightEscalations)
	assert.Equal(t, []string{"mistral"}, cfg.Vanguard.Models)
	assert.Equal(t, "45s", cfg.Vanguard.Timeout)
	assert.Equal(t, "sentinel.flows", cfg.NATS.FlowSubject)
	assert.Equal(t, 45*time.Second, MustDuration(cfg.Vanguard.Timeout))
}

func TestLoadConfig_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("SENTINEL_ADMIN_PASS", "s3cret")
	t.Setenv("SENTINEL_LLM_API_KEY", "key-123")
	path := writeConfig(t, "api:\n  admin_user: ops\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ops", cfg.API.AdminUser)
	assert.Equal(t, "s3cret", cfg.API.AdminPass)
	assert.Equal(t, "key-123", cfg.Vanguard.APIKey)
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"threshold":  "engine:\n  accept_threshold: 1.5\n",
		"duration":   "vanguard:\n  timeout: soon\n",
		"interval":   "simulator:\n  min_interval: 10s\n  max_interval: 2s\n",
		"queue size": "enforcement:\n  queue_size: 0\n",
		"smtp":       "smtp:\n  host: mail.local\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_SampleFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Engine, cfg.Engine)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Vanguard.BaseURL)
	assert.Equal(t, 30*time.Second, MustDuration(cfg.Audit.Interval))
	assert.Equal(t, 1024, cfg.NATS.BufferSize)
}
