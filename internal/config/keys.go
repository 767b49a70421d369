package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "PARLEY_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "models.catalog_path", typ: kString, env: "PARLEY_MODELS_CATALOG_PATH",
		apply:   func(cfg *Config, v any) { cfg.Models.CatalogPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Models.CatalogPath },
	},
	{
		key: "models.default", typ: kString, env: "PARLEY_MODELS_DEFAULT",
		apply:   func(cfg *Config, v any) { cfg.Models.Default = v.(string) },
		extract: func(cfg Config) any { return cfg.Models.Default },
	},
	{
		key: "models.available", typ: kString, env: "PARLEY_MODELS_AVAILABLE",
		apply:   func(cfg *Config, v any) { cfg.Models.Available = v.(string) },
		extract: func(cfg Config) any { return cfg.Models.Available },
	},
	{
		key: "router.fast_model", typ: kString, env: "PARLEY_ROUTER_FAST_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Router.FastModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Router.FastModel },
	},
	{
		key: "router.auto_route", typ: kBool, env: "PARLEY_ROUTER_AUTO_ROUTE",
		apply:   func(cfg *Config, v any) { cfg.Router.AutoRoute = v.(bool) },
		extract: func(cfg Config) any { return cfg.Router.AutoRoute },
	},
	{
		key: "executor.base_url", typ: kString, env: "PARLEY_EXECUTOR_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Executor.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Executor.BaseURL },
	},
	{
		key: "executor.api_key", typ: kString, env: "PARLEY_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Executor.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Executor.APIKey },
	},
	{
		key: "search.api_key", typ: kString, env: "PARLEY_TAVILY_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Search.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.APIKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PARLEY_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "PARLEY_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
