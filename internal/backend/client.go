// Package backend implements the resilient client for the remote text
// generation service.
//
// Every request runs through the same ladder: parameter validation, burst
// deduplication, a circuit breaker consulted before spending network time,
// the HTTP call itself, a single classification of any failure, and a
// jittered retry schedule for transient errors. Async completions are
// delivered on one serial dispatch queue so UI code never synchronizes.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/quillkb/quill/internal/breaker"
	"github.com/quillkb/quill/internal/dedup"
	"github.com/quillkb/quill/internal/dispatch"
	"github.com/quillkb/quill/internal/probe"
	"github.com/quillkb/quill/internal/retry"
)

const (
	defaultRequestTimeout = 20 * time.Second
	// failSafeCeiling force-completes an async request if no completion
	// fired within this bound. It defends against lost callbacks when the
	// host process is suspended mid-request; the per-request timeout
	// remains the primary mechanism.
	failSafeCeiling = 60 * time.Second

	maxErrorBodySize = 64 << 10
)

// ErrInFlight is returned when an identical request is already in flight
// within the dedup window. No network call was made.
var ErrInFlight = errors.New("an identical request is already in progress")

// CredentialStore supplies the bearer credential for backend calls. The
// credential is an opaque secret blob; an empty credential means the
// request goes out unauthenticated.
type CredentialStore interface {
	Get() (string, error)
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	// BaseURL is the backend root, e.g. "https://api.quillwriter.app".
	BaseURL string
	// Credentials supplies the bearer token; nil disables auth headers.
	Credentials CredentialStore
	// RequestTimeout bounds each HTTP attempt (default 20s).
	RequestTimeout time.Duration
	// ConnectivityURL overrides the external connectivity probe target.
	ConnectivityURL string
	// Breaker tunes the circuit breaker.
	Breaker breaker.Config
	// Retry tunes the backoff schedule.
	Retry retry.Policy
}

// Client is the resilient API client. Breaker and dedup state live for the
// client's lifetime and are not persisted: a new process always starts
// with a closed breaker and an empty dedup table.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialStore

	brk    *breaker.Breaker
	policy retry.Policy
	dedup  *dedup.Table
	prober *probe.Prober
	queue  *dispatch.Queue

	failSafe time.Duration
}

// NewClient creates a Client for the given backend.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	policy := opts.Retry
	if policy.MaxRetries == 0 && policy.BaseDelay == 0 {
		policy = retry.DefaultPolicy()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		creds:      opts.Credentials,
		brk:        breaker.New(opts.Breaker),
		policy:     policy,
		dedup:      dedup.NewTable(),
		prober:     probe.New(opts.ConnectivityURL, baseURL+"/api/health"),
		queue:      dispatch.NewQueue(),
		failSafe:   failSafeCeiling,
	}
}

// Close drains and stops the delivery queue. Call it only after all async
// requests have completed.
func (c *Client) Close() {
	c.queue.Close()
}

// BreakerState exposes the breaker state for status reporting.
func (c *Client) BreakerState() breaker.State {
	return c.brk.CurrentState()
}

// Preflight runs both preflight probes and returns the combined status.
func (c *Client) Preflight(ctx context.Context) probe.Status {
	return c.prober.Check(ctx)
}

// Rewrite sends a rewrite request and returns the rewritten text.
func (c *Client) Rewrite(ctx context.Context, p RewriteParams) (string, error) {
	return c.execute(ctx, p)
}

// Chat sends a chat request and returns the response text.
func (c *Client) Chat(ctx context.Context, p ChatParams) (string, error) {
	return c.execute(ctx, p)
}

// Callback receives the final result of an async request, always on the
// client's delivery queue.
type Callback func(text string, err error)

// RewriteAsync runs a rewrite in the background. onProgress (optional) and
// onComplete are both invoked on the client's single delivery queue.
func (c *Client) RewriteAsync(ctx context.Context, p RewriteParams, onProgress func(string), onComplete Callback) {
	c.executeAsync(ctx, p, onProgress, onComplete)
}

// ChatAsync runs a chat request in the background; see RewriteAsync.
func (c *Client) ChatAsync(ctx context.Context, p ChatParams, onProgress func(string), onComplete Callback) {
	c.executeAsync(ctx, p, onProgress, onComplete)
}

// execute is the synchronous path: validate, dedup, then run the ladder.
func (c *Client) execute(ctx context.Context, p request) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	if c.dedup.IsDuplicate(p.dedupKey()) {
		return "", ErrInFlight
	}
	return c.run(ctx, p, nil)
}

// executeAsync validates and dedups on the caller's goroutine, then runs
// the ladder in the background. Exactly one completion is delivered: the
// fail-safe timer fires a timeout completion if the real one is lost.
func (c *Client) executeAsync(ctx context.Context, p request, onProgress func(string), onComplete Callback) {
	progress := func(msg string) {
		if onProgress != nil {
			c.queue.Submit(func() { onProgress(msg) })
		}
	}

	if err := p.validate(); err != nil {
		c.queue.Submit(func() { onComplete("", err) })
		return
	}
	if c.dedup.IsDuplicate(p.dedupKey()) {
		progress("a matching request is already in progress")
		return
	}

	var once sync.Once
	var timer *time.Timer
	deliver := func(text string, err error) {
		once.Do(func() {
			if timer != nil {
				timer.Stop()
			}
			c.queue.Submit(func() { onComplete(text, err) })
		})
	}
	timer = time.AfterFunc(c.failSafe, func() {
		deliver("", &Error{Kind: KindTimeout, Detail: "no completion within the fail-safe ceiling"})
	})

	go func() {
		text, err := c.run(ctx, p, progress)
		deliver(text, err)
	}()
}

// run consults the breaker, performs the HTTP call, and applies the retry
// schedule. progress may be nil.
func (c *Client) run(ctx context.Context, p request, progress func(string)) (string, error) {
	// A tripped breaker is cheaper to verify with one short health probe
	// than with a full request-plus-retries cycle. Healthy again: reset
	// and proceed. Still down: fail fast so the user is not kept waiting.
	if c.brk.CurrentState() == breaker.StateOpen {
		if c.prober.BackendHealthy(ctx) {
			c.brk.RecordSuccess()
		} else {
			slog.Debug("breaker open and backend unhealthy, failing fast", "op", p.op())
			return "", &Error{Kind: KindBackendUnavailable}
		}
	}

	for attempt := 0; ; attempt++ {
		text, err := c.do(ctx, p, attempt)
		if err == nil {
			c.brk.RecordSuccess()
			return text, nil
		}

		// Caller cancellation propagates as-is: not retried, not counted
		// against the breaker.
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s cancelled: %w", p.op(), ctx.Err())
		}

		// A transport failure on a device with no connectivity is not a
		// backend problem: report it immediately instead of retrying, and
		// leave the breaker alone.
		var e *Error
		if errors.As(err, &e) && e.Kind == KindNetwork && !c.prober.Connectivity(ctx) {
			return "", &Error{Kind: KindNoConnectivity}
		}

		if c.policy.ShouldRetry(err, attempt) {
			delay := c.policy.Delay(attempt)
			slog.Debug("retrying request", "op", p.op(), "attempt", attempt, "delay", delay, "error", err)
			if progress != nil {
				progress(fmt.Sprintf("retrying (%d/%d)", attempt+1, c.policy.MaxRetries))
			}
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%s cancelled: %w", p.op(), ctx.Err())
			case <-time.After(delay):
			}
			continue
		}

		c.brk.RecordFailure()
		if e != nil && e.ShouldRetry() && attempt >= c.policy.MaxRetries {
			e.Retries = attempt
		}
		return "", err
	}
}

// do performs one HTTP attempt and classifies any failure.
func (c *Client) do(ctx context.Context, p request, attempt int) (string, error) {
	payload, err := json.Marshal(p.body())
	if err != nil {
		return "", &Error{Kind: KindInvalidRequest, Detail: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+p.path(), bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Kind: KindInvalidRequest, Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()

	slog.Debug("backend response", "op", p.op(), "attempt", attempt, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return "", classifyStatus(resp.StatusCode, body)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &Error{Kind: KindInvalidResponse, Detail: err.Error()}
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", &Error{Kind: KindNoData}
	}
	return text, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.creds == nil {
		return
	}
	token, err := c.creds.Get()
	if err != nil {
		slog.Debug("credential store unavailable, sending unauthenticated request", "error", err)
		return
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// classifyTransport maps a transport error (cancellation excluded; the
// caller handles that first) to the taxonomy.
func classifyTransport(err error) *Error {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return &Error{Kind: KindTimeout}
	}
	return &Error{Kind: KindNetwork, Detail: err.Error()}
}
