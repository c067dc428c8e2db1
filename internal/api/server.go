// Package api exposes the generation wire contract over HTTP for local
// development, and over MCP for agent integration.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Generator produces rewritten or conversational text. The dev server uses
// a deterministic stub; a real deployment would back this with a model.
type Generator interface {
	Rewrite(ctx context.Context, text string, tone, length float64, locale string) (string, error)
	Chat(ctx context.Context, query string) (string, error)
}

// NewHandler returns an http.Handler implementing the backend wire
// contract: POST /api/rewrite, POST /api/chat, GET /api/health. The two
// generation routes require the bearer token; health is open so probes
// work unauthenticated.
func NewHandler(gen Generator, token string) http.Handler {
	r := chi.NewRouter()

	r.Get("/api/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(token))
		r.Post("/api/rewrite", handleRewrite(gen))
		r.Post("/api/chat", handleChat(gen))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type rewriteRequest struct {
	Text   string  `json:"text"`
	Tone   float64 `json:"tone"`
	Length float64 `json:"length"`
	Locale string  `json:"locale"`
	Preset string  `json:"preset,omitempty"`
}

type chatRequest struct {
	Query string `json:"query"`
}

type textResponse struct {
	Text string `json:"text"`
}

func handleRewrite(gen Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req rewriteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body", "%v", err)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			httpError(w, http.StatusBadRequest, "text is required", "")
			return
		}
		if req.Tone < 0 || req.Tone > 1 || req.Length < 0 || req.Length > 1 {
			httpError(w, http.StatusBadRequest, "tone and length must be within [0,1]", "tone=%.2f length=%.2f", req.Tone, req.Length)
			return
		}

		text, err := gen.Rewrite(r.Context(), req.Text, req.Tone, req.Length, req.Locale)
		if err != nil {
			slog.Error("rewrite generation failed", "error", err)
			httpError(w, http.StatusBadGateway, "generation failed", "%v", err)
			return
		}

		writeJSON(w, textResponse{Text: text})
	}
}

func handleChat(gen Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body", "%v", err)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "query is required", "")
			return
		}

		text, err := gen.Chat(r.Context(), req.Query)
		if err != nil {
			slog.Error("chat generation failed", "error", err)
			httpError(w, http.StatusBadGateway, "generation failed", "%v", err)
			return
		}

		writeJSON(w, textResponse{Text: text})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// httpError writes the wire contract's error envelope: {error, details?}.
func httpError(w http.ResponseWriter, code int, errMsg string, detailFormat string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	body := map[string]any{"error": errMsg}
	if detailFormat != "" {
		body["details"] = fmt.Sprintf(detailFormat, args...)
	}
	json.NewEncoder(w).Encode(body)
}
