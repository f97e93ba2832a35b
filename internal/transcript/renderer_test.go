package transcript

import (
	"strings"
	"testing"
	"time"

	"github.com/lunamoth/heartflow/internal/bus"
)

func at(h, m, s int) time.Time {
	return time.Date(2026, 8, 25, h, m, s, 0, time.UTC)
}

func TestRender_Lines(t *testing.T) {
	r := NewTextRenderer()
	out := r.Render([]bus.Message{
		{SenderName: "kay", Content: "hello", Timestamp: at(12, 0, 1)},
		{SenderID: "u42", Content: "hi", Timestamp: at(12, 0, 5)},
	}, []string{"replied to kay"}, Options{})

	want := "[12:00:01] kay: hello\n[12:00:05] u42: hi\n* replied to kay"
	if out != want {
		t.Errorf("render =\n%q\nwant\n%q", out, want)
	}
}

func TestRender_SenderIDFallback(t *testing.T) {
	r := NewTextRenderer()
	out := r.Render([]bus.Message{
		{SenderID: "u7", Content: "x", Timestamp: at(1, 2, 3)},
	}, nil, Options{})
	if !strings.Contains(out, "u7:") {
		t.Errorf("expected sender ID fallback, got %q", out)
	}
}

func TestRender_Empty(t *testing.T) {
	r := NewTextRenderer()
	if out := r.Render(nil, nil, Options{}); out != "" {
		t.Errorf("empty render = %q, want empty string", out)
	}
}

func TestRender_TokenBudgetDropsOldest(t *testing.T) {
	r := NewTextRenderer()
	msgs := make([]bus.Message, 20)
	for i := range msgs {
		msgs[i] = bus.Message{
			SenderName: "kay",
			Content:    strings.Repeat("chatter ", 10),
			Timestamp:  at(12, 0, i),
		}
	}

	full := r.Render(msgs, nil, Options{})
	trimmed := r.Render(msgs, nil, Options{TokenBudget: 60})

	if len(trimmed) >= len(full) {
		t.Fatal("budget did not shrink the rendering")
	}
	// The newest line must survive; the oldest must go first.
	if !strings.Contains(trimmed, "[12:00:19]") {
		t.Error("newest line dropped")
	}
	if strings.Contains(trimmed, "[12:00:00]") {
		t.Error("oldest line kept despite budget")
	}
}

func TestRender_BudgetKeepsAtLeastOneLine(t *testing.T) {
	r := NewTextRenderer()
	out := r.Render([]bus.Message{
		{SenderName: "kay", Content: strings.Repeat("long ", 100), Timestamp: at(0, 0, 0)},
	}, nil, Options{TokenBudget: 1})
	if out == "" {
		t.Error("a lone oversized line must still render")
	}
}
