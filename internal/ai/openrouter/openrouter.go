// Package openrouter implements ai.Completer on the OpenRouter chat completions API.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/palantir/business-contact-pipeline/internal/ai"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/core"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/httperr"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "google/gemini-2.0-flash-exp:free"

	appTitle   = "Local Business Scraper"
	appReferer = "http://localhost:3001"
)

type Config struct {
	APIKey  string
	Model   string
	BaseURL string

	// Timeout bounds a single HTTP call. Zero leaves it to the caller's context.
	Timeout time.Duration
}

type Completer struct {
	http  *resty.Client
	model string
}

func New(cfg Config) (*Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}

	client := resty.New().
		SetBaseURL(base).
		SetAuthToken(strings.TrimSpace(cfg.APIKey)).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("HTTP-Referer", appReferer).
		SetHeader("X-Title", appTitle)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &Completer{http: client, model: model}, nil
}

// Model returns the configured model name.
func (c *Completer) Model() string { return c.model }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float32   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

func (c *Completer) Complete(ctx context.Context, req ai.Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", errors.New("openrouter: empty prompt")
	}
	body := chatRequest{
		Model:       c.model,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return "", classifyErr(0, err)
	}
	if resp.IsError() {
		return "", classifyErr(resp.StatusCode(), httperr.New("openrouter", resp.StatusCode(), resp.Status(), resp.Body()))
	}
	if out.Error != nil && out.Error.Message != "" {
		return "", fmt.Errorf("openrouter: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openrouter: no choices in response")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("openrouter: empty response")
	}
	return text, nil
}

func classifyErr(status int, err error) error {
	if status == http.StatusTooManyRequests || status/100 == 5 {
		return &core.TransientError{Err: err}
	}
	if status != 0 {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.TransientError{Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return err
}
