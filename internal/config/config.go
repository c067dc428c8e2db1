package config

import (
	"strings"
)

type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Client  ClientConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type BackendConfig struct {
	BaseURL         string
	ConnectivityURL string
	APIKey          string
}

type ClientConfig struct {
	RequestTimeout   string
	MaxRetries       int
	FailureThreshold int
	Cooldown         string
	HalfOpenTimeout  string
	Locale           string
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
			Port: 4800,
		},
		Backend: BackendConfig{
			BaseURL:         "https://api.quillwriter.app",
			ConnectivityURL: "https://www.gstatic.com/generate_204",
		},
		Client: ClientConfig{
			RequestTimeout:   "20s",
			MaxRetries:       3,
			FailureThreshold: 3,
			Cooldown:         "8s",
			HalfOpenTimeout:  "5s",
			Locale:           "en-US",
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
// variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.quill.app) and the API
// key falls back to macOS Keychain (service: quill). On Linux the backend
// is a JSON file at $XDG_CONFIG_HOME/quill/config.json and the key falls
// back to a secrets file under $XDG_DATA_HOME.
//
// Environment variables (QUILL_*) override backend values on all platforms.
// A missing API key is not an error here: requests simply go out without a
// bearer header and the backend rejects them with a clear message.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try the platform keychain for the API key if still empty.
	if cfg.Backend.APIKey == "" {
		if key, err := kc.Get(keychainService, keychainAPIKeyAccount); err == nil {
			cfg.Backend.APIKey = strings.TrimSpace(key)
		}
	}

	return cfg, nil
}
