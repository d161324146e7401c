package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ModeEliza, cfg.Mode)
	assert.Equal(t, "http://localhost:3001/api/chatgpt", cfg.Endpoint)
	assert.Equal(t, "chatHistory", cfg.StorageKey)
	assert.Equal(t, 250, cfg.ReplyDelayMs)
	assert.Equal(t, "3001", cfg.Proxy.Port)
	assert.Equal(t, "gpt-4o-mini", cfg.Proxy.Model)
}

func TestLoad_TOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
mode = "chatgpt"
endpoint = "http://example.test/api/chatgpt"
reply_delay_ms = 100

[proxy]
port = "9999"
allowed_origins = ["http://example.test"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "chatgpt", cfg.Mode)
	assert.Equal(t, "http://example.test/api/chatgpt", cfg.Endpoint)
	assert.Equal(t, 100, cfg.ReplyDelayMs)
	assert.Equal(t, "9999", cfg.Proxy.Port)
	assert.Equal(t, []string{"http://example.test"}, cfg.Proxy.AllowedOrigins)

	// Values the file does not mention keep their defaults.
	assert.Equal(t, "gpt-4o-mini", cfg.Proxy.Model)
}

func TestLoad_MissingFileIsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CHAT_GPT_ENDPOINT", "http://env.test/api")
	t.Setenv("CHAT_MODE", "chatgpt")
	t.Setenv("PORT", "4242")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://env.test/api", cfg.Endpoint)
	assert.Equal(t, "chatgpt", cfg.Mode)
	assert.Equal(t, "4242", cfg.Proxy.Port)
	assert.Equal(t, "sk-env", cfg.Proxy.APIKey)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Proxy.AllowedOrigins)
}
