// Package providers defines the reasoning-client abstraction the decision
// engine talks to, plus an OpenAI-compatible HTTP implementation.
package providers

import (
	"context"
	"errors"
	"fmt"
)

// ErrKind classifies a failed reasoning call so callers can branch
// (fail-closed activation vs no_reply degrade vs abort propagation).
type ErrKind string

const (
	ErrTimeout    ErrKind = "timeout"
	ErrConnection ErrKind = "connection"
	ErrMalformed  ErrKind = "malformed"
	ErrAborted    ErrKind = "aborted"
)

// CallError is the typed error every Provider implementation returns.
type CallError struct {
	Kind ErrKind
	Msg  string
	Err  error
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reasoning call %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("reasoning call %s: %s", e.Kind, e.Msg)
}

func (e *CallError) Unwrap() error { return e.Err }

// KindOf returns the error kind, or "" if err is not a CallError.
func KindOf(err error) ErrKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsAborted reports whether err represents external cancellation,
// as opposed to an ordinary timeout.
func IsAborted(err error) bool { return KindOf(err) == ErrAborted }

// IsTimeout reports whether err represents a deadline expiry.
func IsTimeout(err error) bool { return KindOf(err) == ErrTimeout }

// Usage is the token accounting returned with a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Request is a single-shot completion request.
type Request struct {
	System      string
	Prompt      string
	Model       string // empty = provider default
	MaxTokens   int
	Temperature float64
}

// Completion is the text plus usage metadata from one reasoning call.
type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// Provider issues reasoning calls. Implementations must return *CallError
// on failure so callers can distinguish timeout, connection loss,
// malformed payloads and external aborts.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Completion, error)
}
