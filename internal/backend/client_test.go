package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quillkb/quill/internal/breaker"
	"github.com/quillkb/quill/internal/retry"
)

type fakeCreds struct {
	token string
}

func (f fakeCreds) Get() (string, error) { return f.token, nil }

// fastPolicy keeps retry delays negligible in tests.
func fastPolicy(maxRetries int) retry.Policy {
	return retry.Policy{
		MaxRetries:  maxRetries,
		BaseDelay:   time.Millisecond,
		JitterRange: 0.3,
		MinDelay:    time.Millisecond,
	}
}

// newTestClient builds a client against srv with the connectivity probe
// pointed at a live local server, so no test ever leaves the machine.
func newTestClient(t *testing.T, backendURL string, policy retry.Policy) *Client {
	t.Helper()
	conn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(conn.Close)

	c := NewClient(Options{
		BaseURL:         backendURL,
		Credentials:     fakeCreds{token: "test-token"},
		ConnectivityURL: conn.URL,
		Retry:           policy,
	})
	t.Cleanup(c.Close)
	return c
}

func TestRewrite_Success(t *testing.T) {
	var gotAuth string
	var gotReq rewriteRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rewrite" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		fmt.Fprint(w, `{"text":"  Good morning, team.  "}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, fastPolicy(3))
	text, err := c.Rewrite(context.Background(), RewriteParams{
		Text:   "gm team",
		Tone:   0.9,
		Length: 0.2,
		Locale: "en-US",
	})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	if text != "Good morning, team." {
		t.Errorf("text = %q, want trimmed rewrite", text)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer test-token")
	}
	if gotReq.Tone != 0.9 || gotReq.Length != 0.2 || gotReq.Locale != "en-US" {
		t.Errorf("request = %+v, want tone/length/locale forwarded", gotReq)
	}
}

func TestChat_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		fmt.Fprintf(w, `{"text":"echo: %s"}`, req.Query)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, fastPolicy(3))
	text, err := c.Chat(context.Background(), ChatParams{Query: "hello"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if text != "echo: hello" {
		t.Errorf("text = %q, want %q", text, "echo: hello")
	}
}

func TestInvalidParamsNoNetworkCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, fastPolicy(3))

	tests := []struct {
		name   string
		params RewriteParams
	}{
		{"tone above range", RewriteParams{Text: "hi", Tone: 1.5, Length: 0.5}},
		{"tone below range", RewriteParams{Text: "hi", Tone: -0.1, Length: 0.5}},
		{"length above range", RewriteParams{Text: "hi", Tone: 0.5, Length: 2}},
		{"blank text", RewriteParams{Text: "   ", Tone: 0.5, Length: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Rewrite(context.Background(), tt.params)
			var e *Error
			if !errors.As(err, &e) || e.Kind != KindInvalidRequest {
				t.Fatalf("err = %v, want KindInvalidRequest", err)
			}
		})
	}

	if got := calls.Load(); got != 0 {
		t.Errorf("server saw %d calls, want 0", got)
	}

	// Blank chat query is rejected the same way.
	if _, err := c.Chat(context.Background(), ChatParams{Query: " "}); err == nil {
		t.Error("blank chat query accepted")
	}
}

func TestDedupSuppression(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"text":"out"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, fastPolicy(3))
	p := RewriteParams{Text: "same text", Tone: 0.5, Length: 0.5}

	if _, err := c.Rewrite(context.Background(), p); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := c.Rewrite(context.Background(), p); !errors.Is(err, ErrInFlight) {
		t.Errorf("second identical call err = %v, want ErrInFlight", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want 1", got)
	}

	// A different payload is not suppressed.
	if _, err := c.Rewrite(context.Background(), RewriteParams{Text: "other text", Tone: 0.5, Length: 0.5}); err != nil {
		t.Errorf("distinct call: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d calls, want 2", got)
	}
}

func TestBreakerTripsAndFailsFast(t *testing.T) {
	var rewrites atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health endpoint is down along with everything else.
		if r.URL.Path == "/api/rewrite" {
			rewrites.Add(1)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, fastPolicy(0))

	for i := 0; i < 3; i++ {
		p := RewriteParams{Text: fmt.Sprintf("attempt %d", i), Tone: 0.5, Length: 0.5}
		if _, err := c.Rewrite(context.Background(), p); err == nil {
			t.Fatalf("call %d unexpectedly succeeded", i)
		}
	}

	if got := c.BreakerState(); got != breaker.StateOpen {
		t.Fatalf("breaker state = %v after 3 failures, want open", got)
	}

	// Fourth call fails fast on the health probe without a rewrite attempt.
	_, err := c.Rewrite(context.Background(), RewriteParams{Text: "fourth", Tone: 0.5, Length: 0.5})
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindBackendUnavailable {
		t.Fatalf("err = %v, want KindBackendUnavailable", err)
	}
	if got := rewrites.Load(); got != 3 {
		t.Errorf("rewrite endpoint saw %d calls, want 3 (fail fast must skip it)", got)
	}
}

func TestBreakerResetsWhenHealthProbeSucceeds(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" && healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.URL.Path == "/api/rewrite" && healthy.Load() {
			fmt.Fprint(w, `{"text":"recovered"}`)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, fastPolicy(0))

	for i := 0; i < 3; i++ {
		p := RewriteParams{Text: fmt.Sprintf("fail %d", i), Tone: 0.5, Length: 0.5}
		c.Rewrite(context.Background(), p)
	}
	if got := c.BreakerState(); got != breaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", got)
	}

	healthy.Store(true)
	text, err := c.Rewrite(context.Background(), RewriteParams{Text: "try again", Tone: 0.5, Length: 0.5})
	if err != nil {
		t.Fatalf("Rewrite after recovery: %v", err)
	}
	if text != "recovered" {
		t.Errorf("text = %q, want %q", text, "recovered")
	}
	if got := c.BreakerState(); got != breaker.StateClosed {
		t.Errorf("breaker state = %v, want closed after success", got)
	}
}

func TestRetryOn429ThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"text":"second time lucky"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, fastPolicy(3))
	text, err := c.Rewrite(context.Background(), RewriteParams{Text: "busy", Tone: 0.5, Length: 0.5})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if text != "second time lucky" {
		t.Errorf("text = %q", text)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
	if got := c.BreakerState(); got != breaker.StateClosed {
		t.Errorf("breaker state = %v, want closed", got)
	}
}

func TestNonRetryable4xxSingleAttempt(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"malformed request"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, fastPolicy(3))
	_, err := c.Rewrite(context.Background(), RewriteParams{Text: "nope", Tone: 0.5, Length: 0.5})

	var e *Error
	if !errors.As(err, &e) || e.Kind != KindHTTP || e.Status != 400 {
		t.Fatalf("err = %v, want HTTP 400", err)
	}
	if !strings.Contains(e.Error(), "malformed request") {
		t.Errorf("message %q missing application error detail", e.Error())
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (4xx must not be retried)", got)
	}
}

func TestRetriesExhaustedAnnotated(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, fastPolicy(2))
	_, err := c.Rewrite(context.Background(), RewriteParams{Text: "persistent", Tone: 0.5, Length: 0.5})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}

	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3 (initial + 2 retries)", got)
	}
	if !strings.Contains(err.Error(), "gave up after 2 retries") {
		t.Errorf("error %q missing retry annotation", err.Error())
	}
}

func TestNoConnectivityFailsImmediately(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	conn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	conn.Close() // connectivity probe target is unreachable too

	c := NewClient(Options{
		BaseURL:         dead.URL,
		ConnectivityURL: conn.URL,
		Retry:           fastPolicy(3),
	})
	defer c.Close()

	start := time.Now()
	_, err := c.Rewrite(context.Background(), RewriteParams{Text: "offline", Tone: 0.5, Length: 0.5})
	elapsed := time.Since(start)

	var e *Error
	if !errors.As(err, &e) || e.Kind != KindNoConnectivity {
		t.Fatalf("err = %v, want KindNoConnectivity", err)
	}
	// No retry ladder: well under a single backoff step plus probe timeout.
	if elapsed > 5*time.Second {
		t.Errorf("took %v, want an immediate failure", elapsed)
	}
	if got := c.BreakerState(); got != breaker.StateClosed {
		t.Errorf("breaker state = %v, want closed (preflight failures leave it alone)", got)
	}
}

func TestCancellationPropagatesUnretried(t *testing.T) {
	var attempts atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			close(started)
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, fastPolicy(3))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Rewrite(ctx, RewriteParams{Text: "cancel me", Tone: 0.5, Length: 0.5})
		done <- err
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want wrapped context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Rewrite did not return promptly after cancellation")
	}

	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (cancellation must not be retried)", got)
	}
	if got := c.BreakerState(); got != breaker.StateClosed {
		t.Errorf("breaker state = %v, want closed (cancellation is not a failure)", got)
	}
}

func TestEmptyResultIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"text":"   "}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, fastPolicy(3))
	_, err := c.Chat(context.Background(), ChatParams{Query: "anything"})
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindNoData {
		t.Errorf("err = %v, want KindNoData", err)
	}
}

func TestMalformedResponseIsInvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json at all`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, fastPolicy(3))
	_, err := c.Chat(context.Background(), ChatParams{Query: "anything"})
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindInvalidResponse {
		t.Errorf("err = %v, want KindInvalidResponse", err)
	}
}

func TestAsyncDeliversCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"text":"done"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, fastPolicy(3))

	type completion struct {
		text string
		err  error
	}
	got := make(chan completion, 1)
	c.RewriteAsync(context.Background(), RewriteParams{Text: "async", Tone: 0.5, Length: 0.5}, nil,
		func(text string, err error) { got <- completion{text, err} })

	select {
	case comp := <-got:
		if comp.err != nil {
			t.Fatalf("onComplete err = %v", comp.err)
		}
		if comp.text != "done" {
			t.Errorf("text = %q, want %q", comp.text, "done")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no completion delivered")
	}
}

func TestAsyncDuplicateSignalsProgressOnly(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, `{"text":"slow"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, fastPolicy(3))

	progress := make(chan string, 1)
	complete := make(chan struct{}, 2)
	p := ChatParams{Query: "burst"}

	c.ChatAsync(context.Background(), p, nil, func(string, error) { complete <- struct{}{} })
	c.ChatAsync(context.Background(), p,
		func(msg string) { progress <- msg },
		func(string, error) { complete <- struct{}{} })

	select {
	case msg := <-progress:
		if !strings.Contains(msg, "already in progress") {
			t.Errorf("progress = %q, want in-progress signal", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no progress signal for the duplicate request")
	}

	close(release)
	// Exactly one completion: the duplicate never issues a network call.
	<-complete
	select {
	case <-complete:
		t.Error("duplicate request delivered a completion")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestAsyncFailSafeFires(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, fastPolicy(3))
	c.failSafe = 50 * time.Millisecond

	got := make(chan error, 1)
	c.ChatAsync(context.Background(), ChatParams{Query: "stuck"}, nil,
		func(_ string, err error) { got <- err })

	select {
	case err := <-got:
		var e *Error
		if !errors.As(err, &e) || e.Kind != KindTimeout {
			t.Errorf("err = %v, want fail-safe KindTimeout", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("fail-safe completion never delivered")
	}
}

func TestAsyncInvalidParamsCompleteOnQueue(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:0", fastPolicy(3))

	got := make(chan error, 1)
	c.RewriteAsync(context.Background(), RewriteParams{Text: "x", Tone: 2, Length: 0.5}, nil,
		func(_ string, err error) { got <- err })

	select {
	case err := <-got:
		var e *Error
		if !errors.As(err, &e) || e.Kind != KindInvalidRequest {
			t.Errorf("err = %v, want KindInvalidRequest", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no completion delivered for invalid params")
	}
}
