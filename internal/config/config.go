// Package config holds application configuration, loaded from an optional
// TOML file with environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	ModeEliza   = "eliza"
	ModeChatGPT = "chatgpt"
)

// Config holds application configuration
type Config struct {
	Mode            string `toml:"mode"`              // reply mode: eliza | chatgpt
	Endpoint        string `toml:"endpoint"`          // completion provider endpoint
	DBPath          string `toml:"db_path"`           // sqlite file for chat history; empty keeps history in memory
	StorageKey      string `toml:"storage_key"`       // durable-store key for the history blob
	ReplyDelayMs    int    `toml:"reply_delay_ms"`    // keyword-engine reply delay
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"` // provider reply cache TTL; 0 disables expiry
	Debug           bool   `toml:"debug"`

	Proxy ProxyConfig `toml:"proxy"`
}

// ProxyConfig configures the completion-provider proxy server.
type ProxyConfig struct {
	Port           string   `toml:"port"`
	UpstreamURL    string   `toml:"upstream_url"`
	Model          string   `toml:"model"`
	MaxTokens      int      `toml:"max_tokens"`
	AllowedOrigins []string `toml:"allowed_origins"`

	// APIKey comes from the environment only, never from the config file.
	APIKey string `toml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Mode:            ModeEliza,
		Endpoint:        "http://localhost:3001/api/chatgpt",
		DBPath:          "simplechat.db",
		StorageKey:      "chatHistory",
		ReplyDelayMs:    250,
		CacheTTLMinutes: 0,
		Proxy: ProxyConfig{
			Port:           "3001",
			UpstreamURL:    "https://api.openai.com/v1/chat/completions",
			Model:          "gpt-4o-mini",
			MaxTokens:      500,
			AllowedOrigins: []string{"http://localhost:5173"},
		},
	}
}

// Load builds the configuration from defaults, an optional TOML file and
// environment overrides, in that precedence order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays environment variables onto the configuration.
func (c *Config) applyEnv() {
	if v := os.Getenv("CHAT_GPT_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("CHAT_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("CHAT_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Proxy.Port = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Proxy.APIKey = v
	}
	if v := os.Getenv("OPENAI_UPSTREAM_URL"); v != "" {
		c.Proxy.UpstreamURL = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		c.Proxy.AllowedOrigins = origins
	}
}
