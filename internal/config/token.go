package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	keychainService       = "quill"
	keychainAPIKeyAccount = "api_key"
	keychainTokenAccount  = "server_api_token"
)

// Keychain abstracts the platform secret store for testing.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// platformKeychain reads and writes the real platform secret store:
// macOS Keychain via the security CLI, a secrets file elsewhere.
type platformKeychain struct{}

// NewKeychain returns the platform secret store.
func NewKeychain() Keychain {
	return platformKeychain{}
}

func (platformKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// GetAPIToken returns the bearer token protecting the local dev server,
// generating and persisting one on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if token, err := kc.Get(keychainService, keychainTokenAccount); err == nil && token != "" {
		return token, nil
	}

	token := uuid.New().String()
	if err := kc.Set(keychainService, keychainTokenAccount, token); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return token, nil
}

// APIKey adapts the loaded config to the client's credential store
// interface.
type APIKey string

func (k APIKey) Get() (string, error) {
	return string(k), nil
}
