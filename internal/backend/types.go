package backend

import (
	"fmt"
	"strings"

	"github.com/quillkb/quill/internal/dedup"
)

// RewriteParams describes a rewrite request. Tone and Length are sliders in
// [0,1]: tone runs casual→formal, length runs detailed→brief.
type RewriteParams struct {
	Text     string
	Tone     float64
	Length   float64
	PresetID string
	Locale   string
}

func (p RewriteParams) validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return &Error{Kind: KindInvalidRequest, Detail: "text must not be empty"}
	}
	if p.Tone < 0 || p.Tone > 1 {
		return &Error{Kind: KindInvalidRequest, Detail: fmt.Sprintf("tone %.2f out of range [0,1]", p.Tone)}
	}
	if p.Length < 0 || p.Length > 1 {
		return &Error{Kind: KindInvalidRequest, Detail: fmt.Sprintf("length %.2f out of range [0,1]", p.Length)}
	}
	return nil
}

func (p RewriteParams) op() string   { return "rewrite" }
func (p RewriteParams) path() string { return "/api/rewrite" }

func (p RewriteParams) body() any {
	return rewriteRequest{
		Text:   strings.TrimSpace(p.Text),
		Tone:   p.Tone,
		Length: p.Length,
		Locale: p.Locale,
		Preset: p.PresetID,
	}
}

func (p RewriteParams) dedupKey() string {
	return dedup.Key(p.op(), p.Text, fmt.Sprintf("%.2f", p.Tone), fmt.Sprintf("%.2f", p.Length))
}

// ChatParams describes a chat request.
type ChatParams struct {
	Query string
}

func (p ChatParams) validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return &Error{Kind: KindInvalidRequest, Detail: "query must not be empty"}
	}
	return nil
}

func (p ChatParams) op() string   { return "chat" }
func (p ChatParams) path() string { return "/api/chat" }

func (p ChatParams) body() any {
	return chatRequest{Query: strings.TrimSpace(p.Query)}
}

func (p ChatParams) dedupKey() string {
	return dedup.Key(p.op(), p.Query)
}

// request is the common shape of the two operations the executor handles.
type request interface {
	validate() error
	op() string
	path() string
	body() any
	dedupKey() string
}

// Wire types for the backend's JSON contract.

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

type generateResponse struct {
	Text string `json:"text"`
}
