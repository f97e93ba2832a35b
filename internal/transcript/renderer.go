// Package transcript turns the recent message window into the plain-text
// rendering the activation filter and planner consume.
package transcript

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/lunamoth/heartflow/internal/bus"
)

// Options controls one rendering.
type Options struct {
	// TokenBudget truncates the rendering from the oldest line down.
	// <= 0 disables truncation.
	TokenBudget int

	// TimeFormat for the per-line timestamp prefix.
	TimeFormat string
}

// DefaultTimeFormat is the per-line timestamp layout.
const DefaultTimeFormat = "15:04:05"

// Renderer produces a plain-text transcript from messages plus synthetic
// action-history lines. Implemented by TextRenderer; hosts may substitute
// their own.
type Renderer interface {
	Render(msgs []bus.Message, actionHistory []string, opts Options) string
}

// TextRenderer renders chronological "[HH:MM:SS] sender: text" lines and
// appends action-history lines, then trims to the token budget.
type TextRenderer struct {
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// NewTextRenderer creates the default renderer.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{}
}

func (r *TextRenderer) Render(msgs []bus.Message, actionHistory []string, opts Options) string {
	timeFormat := opts.TimeFormat
	if timeFormat == "" {
		timeFormat = DefaultTimeFormat
	}

	lines := make([]string, 0, len(msgs)+len(actionHistory))
	for _, m := range msgs {
		name := m.SenderName
		if name == "" {
			name = m.SenderID
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s",
			m.Timestamp.Format(timeFormat), name, m.Content))
	}
	for _, h := range actionHistory {
		lines = append(lines, "* "+h)
	}

	if opts.TokenBudget > 0 {
		lines = r.trimToBudget(lines, opts.TokenBudget)
	}
	return strings.Join(lines, "\n")
}

// trimToBudget drops lines oldest-first until the rendering fits.
func (r *TextRenderer) trimToBudget(lines []string, budget int) []string {
	total := 0
	counts := make([]int, len(lines))
	for i, line := range lines {
		counts[i] = r.countTokens(line) + 1 // +1 for the joining newline
		total += counts[i]
	}
	start := 0
	for start < len(lines)-1 && total > budget {
		total -= counts[start]
		start++
	}
	if start > 0 {
		slog.Debug("transcript truncated to token budget",
			"dropped_lines", start, "budget", budget)
	}
	return lines[start:]
}

// countTokens uses the cl100k_base encoding, falling back to a rune
// estimate if the encoding cannot be loaded.
func (r *TextRenderer) countTokens(s string) int {
	r.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("tiktoken unavailable, using rune estimate", "error", err)
			return
		}
		r.enc = enc
	})
	if r.enc == nil {
		return len([]rune(s)) / 3
	}
	return len(r.enc.Encode(s, nil, nil))
}
