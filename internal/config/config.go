package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server   ServerConfig
	Models   ModelsConfig
	Router   RouterConfig
	Executor ExecutorConfig
	Search   SearchConfig
	Storage  StorageConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
}

type ModelsConfig struct {
	// CatalogPath points at a catalog JSON file; empty uses the embedded
	// catalog.
	CatalogPath string
	// Default is the fallback execution model in "vendor:model" form. Empty
	// lets the catalog pick its first standard-tier variant at startup.
	Default string
	// Available is the comma-separated allow-list of models this process
	// may execute on. Empty allows every catalog model.
	Available string
}

type RouterConfig struct {
	// FastModel runs classification calls; empty picks the first fast-tier
	// model from the allow-list.
	FastModel string
	// AutoRoute enables two-phase routing by default.
	AutoRoute bool
}

type ExecutorConfig struct {
	APIKey  string
	BaseURL string
}

type SearchConfig struct {
	// APIKey enables the web_search tool; empty leaves it unregistered.
	APIKey string
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
		Router: RouterConfig{
			AutoRoute: true,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// AvailableModels splits the comma-separated allow-list into identifiers.
func (m ModelsConfig) AvailableModels() []string {
	if strings.TrimSpace(m.Available) == "" {
		return nil
	}
	parts := strings.Split(m.Available, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if id := strings.TrimSpace(p); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.parley.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/parley/config.json
// and secrets must be provided via environment variables.
//
// Environment variables (PARLEY_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try the platform secret store for keys still unset.
	if cfg.Executor.APIKey == "" {
		if key, err := kc.Get("parley", "openrouter_api_key"); err == nil && key != "" {
			cfg.Executor.APIKey = key
		}
	}
	if cfg.Search.APIKey == "" {
		if key, err := kc.Get("parley", "tavily_api_key"); err == nil && key != "" {
			cfg.Search.APIKey = key
		}
	}

	if cfg.Executor.APIKey == "" {
		msg := "missing required config: OpenRouter API key. " +
			"Set it via environment variable PARLEY_OPENROUTER_API_KEY" +
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
