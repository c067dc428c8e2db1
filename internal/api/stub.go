package api

import (
	"context"
	"strings"
	"unicode"
)

// StubGenerator is the deterministic generator behind `quill serve`. It
// exists so the keyboard extension (and this repo's own client) can be
// developed and demoed against a local backend with predictable output.
type StubGenerator struct{}

// Rewrite applies a crude but stable transformation: formal tone
// capitalizes and punctuates, brief length keeps only the first sentence.
func (StubGenerator) Rewrite(_ context.Context, text string, tone, length float64, _ string) (string, error) {
	out := strings.TrimSpace(text)

	if length >= 0.5 {
		out = firstSentence(out)
	}

	if tone >= 0.5 {
		out = capitalizeFirst(out)
		if out != "" && !strings.ContainsAny(out[len(out)-1:], ".!?") {
			out += "."
		}
	} else {
		out = strings.ToLower(out)
		out = strings.TrimRight(out, ".")
	}

	return out, nil
}

// Chat echoes a canned acknowledgement so clients can exercise the chat
// path end to end.
func (StubGenerator) Chat(_ context.Context, query string) (string, error) {
	return "You asked: " + strings.TrimSpace(query), nil
}

func firstSentence(s string) string {
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			return s[:i+1]
		}
	}
	return s
}

func capitalizeFirst(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}
