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
		key: "server.port", typ: kInt, env: "QUILL_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "backend.base_url", typ: kString, env: "QUILL_BACKEND_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Backend.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.BaseURL },
	},
	{
		key: "backend.connectivity_url", typ: kString, env: "QUILL_BACKEND_CONNECTIVITY_URL",
		apply:   func(cfg *Config, v any) { cfg.Backend.ConnectivityURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.ConnectivityURL },
	},
	{
		key: "backend.api_key", typ: kString, env: "QUILL_BACKEND_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Backend.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.APIKey },
	},
	{
		key: "client.request_timeout", typ: kString, env: "QUILL_CLIENT_REQUEST_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Client.RequestTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Client.RequestTimeout },
	},
	{
		key: "client.max_retries", typ: kInt, env: "QUILL_CLIENT_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Client.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Client.MaxRetries },
	},
	{
		key: "client.failure_threshold", typ: kInt, env: "QUILL_CLIENT_FAILURE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Client.FailureThreshold = v.(int) },
		extract: func(cfg Config) any { return cfg.Client.FailureThreshold },
	},
	{
		key: "client.cooldown", typ: kString, env: "QUILL_CLIENT_COOLDOWN",
		apply:   func(cfg *Config, v any) { cfg.Client.Cooldown = v.(string) },
		extract: func(cfg Config) any { return cfg.Client.Cooldown },
	},
	{
		key: "client.half_open_timeout", typ: kString, env: "QUILL_CLIENT_HALF_OPEN_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Client.HalfOpenTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Client.HalfOpenTimeout },
	},
	{
		key: "client.locale", typ: kString, env: "QUILL_CLIENT_LOCALE",
		apply:   func(cfg *Config, v any) { cfg.Client.Locale = v.(string) },
		extract: func(cfg Config) any { return cfg.Client.Locale },
	},
	{
		key: "storage.data_dir", typ: kString, env: "QUILL_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "QUILL_LOG_LEVEL",
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
		}
	}
}
