package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Kind enumerates the closed failure taxonomy. Every failure the client can
// produce is classified exactly once into one of these kinds; downstream
// code branches on the kind and never on raw status codes.
type Kind int

const (
	// KindNetwork is a transport failure other than a timeout.
	KindNetwork Kind = iota
	// KindHTTP is a non-2xx response from the backend.
	KindHTTP
	// KindInvalidResponse is a 2xx response whose body could not be parsed.
	KindInvalidResponse
	// KindInvalidRequest is a request rejected before any network call.
	KindInvalidRequest
	// KindCircuitOpen is a request rejected because the breaker is open.
	KindCircuitOpen
	// KindTimeout is a transport timeout.
	KindTimeout
	// KindNoData is a 2xx response with an empty result.
	KindNoData
	// KindNoConnectivity means the device cannot reach the network at all.
	KindNoConnectivity
	// KindBackendUnavailable means the backend failed its health probe.
	KindBackendUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	case KindInvalidResponse:
		return "invalid_response"
	case KindInvalidRequest:
		return "invalid_request"
	case KindCircuitOpen:
		return "circuit_open"
	case KindTimeout:
		return "timeout"
	case KindNoData:
		return "no_data"
	case KindNoConnectivity:
		return "no_connectivity"
	case KindBackendUnavailable:
		return "backend_unavailable"
	default:
		return "unknown"
	}
}

// Error is a classified request failure. It carries both the retry
// directive and a user-safe message, so the executor only applies the
// directive and the UI never interprets status codes.
type Error struct {
	Kind   Kind
	Status int    // HTTP status, set for KindHTTP
	Detail string // application-level error/details, may be empty
	// Retries is the number of exhausted retries, set on the final error
	// of a retried request so the user sees persistence was attempted.
	Retries int
}

func (e *Error) Error() string {
	msg := e.message()
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Retries > 0 {
		msg = fmt.Sprintf("%s (gave up after %d retries)", msg, e.Retries)
	}
	return msg
}

// message renders the short user-safe text for the kind/status,
// independent of the retry decision.
func (e *Error) message() string {
	switch e.Kind {
	case KindNetwork:
		return "a network error interrupted the request"
	case KindHTTP:
		switch {
		case e.Status == http.StatusTooManyRequests:
			return "the writing service is busy right now (HTTP 429)"
		case e.Status >= 500:
			return fmt.Sprintf("the writing service hit a problem (HTTP %d)", e.Status)
		default:
			return fmt.Sprintf("the request was rejected (HTTP %d)", e.Status)
		}
	case KindInvalidResponse:
		return "the writing service returned an unreadable response"
	case KindInvalidRequest:
		return "invalid request"
	case KindCircuitOpen:
		return "requests are paused after repeated failures"
	case KindTimeout:
		return "the request timed out"
	case KindNoData:
		return "the writing service returned an empty result"
	case KindNoConnectivity:
		return "no internet connection; check connectivity and network permissions"
	case KindBackendUnavailable:
		return "the writing service is currently unavailable"
	default:
		return "the request failed"
	}
}

// ShouldRetry reports whether a request failing with this error may be
// resubmitted. The decision depends only on the kind and status:
// timeouts, transport failures, 429 and 5xx are transient; everything else
// is not worth waiting through a retry ladder for.
func (e *Error) ShouldRetry() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork:
		return true
	case KindHTTP:
		return e.Status == http.StatusTooManyRequests || e.Status >= 500
	default:
		return false
	}
}

// errorBody is the backend's JSON error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// classifyStatus maps a non-2xx response to an Error, pulling the
// application-level error message out of the body when one is present.
func classifyStatus(status int, body []byte) *Error {
	e := &Error{Kind: KindHTTP, Status: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		switch {
		case eb.Error != "" && eb.Details != "":
			e.Detail = eb.Error + ": " + eb.Details
		case eb.Error != "":
			e.Detail = eb.Error
		}
	} else if s := strings.TrimSpace(string(body)); s != "" && len(s) <= 200 {
		e.Detail = s
	}
	return e
}
