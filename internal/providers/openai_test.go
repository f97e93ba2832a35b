package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func chatOK(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": text}},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 3},
		})
	}
}

func TestOpenAICompatible_Complete(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		chatOK("hello there")(w, r)
	}))
	defer srv.Close()

	p := NewOpenAICompatible("test", "sk-test", srv.URL, "test-model")
	comp, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if comp.Text != "hello there" {
		t.Errorf("text = %q", comp.Text)
	}
	if comp.Usage.PromptTokens != 10 {
		t.Errorf("usage = %+v", comp.Usage)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestOpenAICompatible_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not json"))
	}))
	defer srv.Close()

	p := NewOpenAICompatible("test", "", srv.URL, "m")
	_, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	if KindOf(err) != ErrMalformed {
		t.Errorf("kind = %q, want malformed (%v)", KindOf(err), err)
	}
}

func TestOpenAICompatible_APIErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key", "type": "auth"}}`))
	}))
	defer srv.Close()

	p := NewOpenAICompatible("test", "", srv.URL, "m")
	_, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	if KindOf(err) != ErrMalformed {
		t.Errorf("kind = %q, want malformed", KindOf(err))
	}
}

func TestOpenAICompatible_ServerErrorRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		chatOK("recovered")(w, r)
	}))
	defer srv.Close()

	p := NewOpenAICompatible("test", "", srv.URL, "m")
	comp, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("complete after retries: %v", err)
	}
	if comp.Text != "recovered" {
		t.Errorf("text = %q", comp.Text)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestOpenAICompatible_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		chatOK("late")(w, r)
	}))
	defer srv.Close()

	p := NewOpenAICompatible("test", "", srv.URL, "m")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, Request{Prompt: "hi"})
	if !IsTimeout(err) {
		t.Errorf("kind = %q, want timeout (%v)", KindOf(err), err)
	}
}

func TestOpenAICompatible_Aborted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		chatOK("late")(w, r)
	}))
	defer srv.Close()

	p := NewOpenAICompatible("test", "", srv.URL, "m")
	cause := errors.New("operator abort")
	ctx, cancel := context.WithCancelCause(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel(cause)
	}()

	_, err := p.Complete(ctx, Request{Prompt: "hi"})
	if !IsAborted(err) {
		t.Fatalf("kind = %q, want aborted (%v)", KindOf(err), err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("abort cause not preserved: %v", err)
	}
}

func TestOpenAICompatible_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model": "m", "choices": []}`))
	}))
	defer srv.Close()

	p := NewOpenAICompatible("test", "", srv.URL, "m")
	_, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	if KindOf(err) != ErrMalformed {
		t.Errorf("kind = %q, want malformed", KindOf(err))
	}
}

func TestKindOf_NonCallError(t *testing.T) {
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain errors must have no kind")
	}
	if KindOf(nil) != "" {
		t.Error("nil must have no kind")
	}
}
