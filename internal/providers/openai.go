package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	openaiDefaultBase  = "https://api.openai.com/v1"
	openaiDefaultModel = "gpt-4o-mini"

	// Connection failures are retried here, below the decision engine.
	// Exhausted retries surface as a single connection CallError.
	maxConnectRetries = 2
	retryBaseDelay    = 500 * time.Millisecond
)

// OpenAICompatible talks to any /chat/completions endpoint that speaks the
// OpenAI wire format (OpenAI, DashScope, vLLM, llama.cpp server, ...).
type OpenAICompatible struct {
	name         string
	apiKey       string
	apiBase      string
	defaultModel string
	client       *http.Client
}

// NewOpenAICompatible creates a provider for an OpenAI-style endpoint.
func NewOpenAICompatible(name, apiKey, apiBase, defaultModel string) *OpenAICompatible {
	if name == "" {
		name = "openai"
	}
	if apiBase == "" {
		apiBase = openaiDefaultBase
	}
	if defaultModel == "" {
		defaultModel = openaiDefaultModel
	}
	return &OpenAICompatible{
		name:         name,
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{},
	}
}

func (p *OpenAICompatible) Name() string { return p.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete issues one chat completion. Connection errors are retried with
// exponential backoff; timeout and cancellation are returned immediately
// as their respective kinds.
func (p *OpenAICompatible) Complete(ctx context.Context, req Request) (*Completion, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	msgs := make([]chatMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, &CallError{Kind: ErrMalformed, Msg: "encode request", Err: err}
	}

	var lastErr error
	for attempt := 0; attempt <= maxConnectRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << uint(attempt-1)
			slog.Debug("provider retrying after connection error",
				"provider", p.name, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctxError(ctx)
			}
		}

		comp, err := p.once(ctx, body)
		if err == nil {
			return comp, nil
		}
		if KindOf(err) != ErrConnection {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (p *OpenAICompatible) once(ctx context.Context, body []byte) (*Completion, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &CallError{Kind: ErrMalformed, Msg: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctxError(ctx)
		}
		return nil, &CallError{Kind: ErrConnection, Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctxError(ctx)
		}
		return nil, &CallError{Kind: ErrConnection, Msg: "read response", Err: err}
	}

	if resp.StatusCode >= 500 {
		return nil, &CallError{Kind: ErrConnection,
			Msg: fmt.Sprintf("server status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &CallError{Kind: ErrMalformed,
			Msg: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(data), 200))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &CallError{Kind: ErrMalformed, Msg: "decode response", Err: err}
	}
	if parsed.Error != nil {
		return nil, &CallError{Kind: ErrMalformed, Msg: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return nil, &CallError{Kind: ErrMalformed, Msg: "empty choices"}
	}

	return &Completion{
		Text:  parsed.Choices[0].Message.Content,
		Model: parsed.Model,
		Usage: parsed.Usage,
	}, nil
}

// ctxError maps a done context to the right CallError kind. A deadline
// expiry is a timeout; anything else cancelled the call from outside.
func ctxError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &CallError{Kind: ErrTimeout, Msg: "deadline exceeded", Err: ctx.Err()}
	}
	return &CallError{Kind: ErrAborted, Msg: "call aborted", Err: context.Cause(ctx)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
