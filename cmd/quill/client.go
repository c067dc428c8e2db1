package main

import (
	"fmt"
	"time"

	"github.com/quillkb/quill/internal/backend"
	"github.com/quillkb/quill/internal/breaker"
	"github.com/quillkb/quill/internal/config"
	"github.com/quillkb/quill/internal/retry"
)

// newBackendClient builds the resilient client from loaded config.
var newBackendClient = func(cfg config.Config) (*backend.Client, error) {
	timeout, err := time.ParseDuration(cfg.Client.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid client.request_timeout %q: %w", cfg.Client.RequestTimeout, err)
	}
	cooldown, err := time.ParseDuration(cfg.Client.Cooldown)
	if err != nil {
		return nil, fmt.Errorf("invalid client.cooldown %q: %w", cfg.Client.Cooldown, err)
	}
	halfOpen, err := time.ParseDuration(cfg.Client.HalfOpenTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid client.half_open_timeout %q: %w", cfg.Client.HalfOpenTimeout, err)
	}

	brkCfg := breaker.Config{
		FailureThreshold: cfg.Client.FailureThreshold,
		Cooldown:         cooldown,
		HalfOpenTimeout:  halfOpen,
	}
	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.Client.MaxRetries

	return backend.NewClient(backend.Options{
		BaseURL:         cfg.Backend.BaseURL,
		Credentials:     config.APIKey(cfg.Backend.APIKey),
		RequestTimeout:  timeout,
		ConnectivityURL: cfg.Backend.ConnectivityURL,
		Breaker:         brkCfg,
		Retry:           policy,
	}), nil
}
