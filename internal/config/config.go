package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server  ServerConfig
	Gateway GatewayConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string // empty disables bearer auth
}

type GatewayConfig struct {
	OpenRouterAPIKey string
	Model            string
	BaseURL          string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Gateway: GatewayConfig{
			Model:   "openai/gpt-4o-mini",
			BaseURL: "https://openrouter.ai/api/v1",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.crisp.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/crisp/config.json
// and secrets come from $XDG_DATA_HOME/crisp/secrets.json.
//
// Environment variables (CRISP_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret-store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try the platform secret store for secrets still unset.
	if cfg.Gateway.OpenRouterAPIKey == "" {
		if key, err := kc.Get("crisp", "openrouter_api_key"); err == nil && key != "" {
			cfg.Gateway.OpenRouterAPIKey = key
		}
	}
	if cfg.Server.APIToken == "" {
		if token, err := kc.Get("crisp", "api_token"); err == nil && token != "" {
			cfg.Server.APIToken = token
		}
	}

	if cfg.Gateway.OpenRouterAPIKey == "" {
		msg := "missing required config: OpenRouter API key. " +
			"Set it via environment variable CRISP_OPENROUTER_API_KEY" +
			apiKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
