// Package probe implements the two preflight checks the client uses to
// tell "no network" apart from "backend down" without spending a full
// request-with-retries cycle.
package probe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultConnectivityURL is a well-known always-up endpoint that answers
// HEAD requests cheaply.
const DefaultConnectivityURL = "https://www.gstatic.com/generate_204"

// probeTimeout is deliberately shorter than the main request timeout: a
// probe exists to classify failure fast, not to wait out a slow backend.
const probeTimeout = 3 * time.Second

// Prober issues short-timeout connectivity and backend health checks.
type Prober struct {
	connectivityURL string
	healthURL       string
	httpClient      *http.Client
}

// New creates a Prober. healthURL should point at the backend's health
// endpoint; an empty connectivityURL falls back to the default.
func New(connectivityURL, healthURL string) *Prober {
	if connectivityURL == "" {
		connectivityURL = DefaultConnectivityURL
	}
	return &Prober{
		connectivityURL: connectivityURL,
		healthURL:       strings.TrimRight(healthURL, "/"),
		httpClient: &http.Client{
			Timeout: probeTimeout,
		},
	}
}

// Connectivity reports whether the device can reach the external network
// at all. Any response, regardless of status, proves connectivity.
func (p *Prober) Connectivity(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.connectivityURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// BackendHealthy reports whether the backend's health endpoint answers with
// a 2xx. Used while the breaker is open or half-open to decide between
// resetting the breaker and keeping it tripped.
func (p *Prober) BackendHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Status is the combined result of both probes.
type Status struct {
	Network bool
	Backend bool
}

// Check runs both probes concurrently and returns the combined status.
func (p *Prober) Check(ctx context.Context) Status {
	var st Status
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st.Network = p.Connectivity(ctx)
		return nil
	})
	g.Go(func() error {
		st.Backend = p.BackendHealthy(ctx)
		return nil
	})
	g.Wait()
	return st
}
