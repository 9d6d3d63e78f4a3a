// Package ai defines the single-turn completion contract used for relevance
// scoring and page extraction, plus helpers for decoding model JSON.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/palantir/business-contact-pipeline/pkg/pipeline/retry"
)

// DefaultTemperature keeps answers close to deterministic.
const DefaultTemperature float32 = 0.1

// Request is a single-turn completion request.
type Request struct {
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Completer returns the model's text answer for a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

type retryingCompleter struct {
	next    Completer
	retrier *retry.Retrier
}

// WithRetry retries transient completion failures through r.
func WithRetry(next Completer, r *retry.Retrier) Completer {
	if next == nil || r == nil {
		return next
	}
	return &retryingCompleter{next: next, retrier: r}
}

func (c *retryingCompleter) Complete(ctx context.Context, req Request) (string, error) {
	return retry.Do(ctx, c.retrier, func(ctx context.Context) (string, error) {
		return c.next.Complete(ctx, req)
	})
}

var fenceRe = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")

// StripCodeFence removes markdown code fences wrapped around a model answer.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = fenceRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// DecodeJSON strips code fences from raw and unmarshals it into v. When the
// text is not valid JSON it is repaired once and decoded again. Truncated
// answers are never repaired.
func DecodeJSON(raw string, v any) error {
	cleaned := StripCodeFence(raw)
	if cleaned == "" {
		return fmt.Errorf("empty model answer")
	}
	err := json.Unmarshal([]byte(cleaned), v)
	if err == nil {
		return nil
	}
	if !closed(cleaned) {
		return fmt.Errorf("decode model json: %w", err)
	}
	repaired, repairErr := jsonrepair.JSONRepair(cleaned)
	if repairErr != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("decode repaired model json: %w", err)
	}
	return nil
}

// closed reports whether s ends with the bracket matching its opening one.
func closed(s string) bool {
	switch {
	case strings.HasPrefix(s, "{"):
		return strings.HasSuffix(s, "}")
	case strings.HasPrefix(s, "["):
		return strings.HasSuffix(s, "]")
	}
	return false
}

// DecodeStrictJSON is DecodeJSON without the repair step: the answer must be
// valid JSON once code fences are removed.
func DecodeStrictJSON(raw string, v any) error {
	cleaned := StripCodeFence(raw)
	if cleaned == "" {
		return fmt.Errorf("empty model answer")
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}

// FlexInt decodes a JSON number or numeric string. Anything else decodes to 0.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexInt(int(n))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, convErr := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64); convErr == nil {
			*f = FlexInt(int(v))
			return nil
		}
	}
	*f = 0
	return nil
}

// FlexStrings decodes either a JSON string or an array of strings.
type FlexStrings []string

func (f *FlexStrings) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			*f = nil
			return nil
		}
		*f = []string{s}
		return nil
	}
	*f = nil
	return nil
}

// First returns the first non-empty value.
func (f FlexStrings) First() string {
	for _, v := range f {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Truncate returns the first max runes of s.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
