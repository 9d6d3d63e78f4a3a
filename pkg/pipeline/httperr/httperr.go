// Package httperr summarizes non-2xx API responses without leaking bodies.
package httperr

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/palantir/business-contact-pipeline/pkg/pipeline/redact"
)

// maxSnippet bounds how much of an unrecognized body is kept.
const maxSnippet = 256

// HTTPError is a sanitized summary of a non-2xx API response.
//
// Raw bodies are never kept whole: they can carry tokens or PII.
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	Code       string
	Message    string

	// Snippet is a redacted, truncated hint for bodies without a known envelope.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	parts := []string{fmt.Sprintf("%s: status=%d", strings.TrimSpace(e.Op), e.StatusCode)}
	if e.Code != "" {
		parts = append(parts, "code="+e.Code)
	}
	if e.Message != "" {
		parts = append(parts, "message="+e.Message)
	}
	if e.Snippet != "" {
		parts = append(parts, "body="+e.Snippet)
	}
	return strings.Join(parts, " ")
}

// envelope covers the error shapes used by the APIs we call:
// {"error":{"code":..,"message":".."}}, {"error":".."} and {"message":".."}.
type envelope struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

type nestedError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

// New builds an HTTPError for op from a response status and body.
func New(op string, statusCode int, status string, body []byte) *HTTPError {
	h := &HTTPError{Op: op, StatusCode: statusCode, Status: status}

	var env envelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		var nested nestedError
		var flat string
		switch {
		case len(env.Error) > 0 && json.Unmarshal(env.Error, &nested) == nil && (nested.Message != "" || nested.Code != nil):
			h.Message = clean(nested.Message)
			if nested.Code != nil {
				h.Code = clean(fmt.Sprint(nested.Code))
			}
		case len(env.Error) > 0 && json.Unmarshal(env.Error, &flat) == nil && flat != "":
			h.Message = clean(flat)
		case env.Message != "":
			h.Message = clean(env.Message)
		}
		if h.Message != "" || h.Code != "" {
			return h
		}
	}

	h.Snippet = snippet(body)
	return h
}

func clean(s string) string {
	s = strings.TrimSpace(redact.Secrets(s))
	if len(s) > maxSnippet {
		s = s[:maxSnippet] + "..."
	}
	return s
}

func snippet(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	b := body
	if len(b) > maxSnippet {
		b = b[:maxSnippet]
	}
	s := redact.Secrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > maxSnippet {
		return s + "..."
	}
	return s
}
