package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lunamoth/heartflow/internal/actions"
	"github.com/lunamoth/heartflow/internal/providers"
)

// DefaultTimeout caps one planning call.
const DefaultTimeout = 30 * time.Second

// Planner issues exactly one reasoning call per cycle and converts the
// response into a non-empty ordered decision list.
type Planner struct {
	provider providers.Provider
	model    string
	timeout  time.Duration
}

// New creates a planner. model empty = provider default; timeout <= 0
// selects DefaultTimeout.
func New(provider providers.Provider, model string, timeout time.Duration) *Planner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Planner{provider: provider, model: model, timeout: timeout}
}

// Plan returns at least one decision and never an error: every failure
// path degrades to a single no_reply decision whose reasoning carries
// the failure text. The returned error kind is informational only —
// callers use it to distinguish aborts and timeouts for bookkeeping.
func (p *Planner) Plan(ctx context.Context, in Input) ([]Decision, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	comp, err := p.provider.Complete(callCtx, providers.Request{
		System:      promptSystem,
		Prompt:      buildPrompt(in),
		Model:       p.model,
		Temperature: 0.4,
	})
	if err != nil {
		slog.Warn("planning call failed, degrading to no_reply",
			"kind", providers.KindOf(err), "error", err)
		return []Decision{NoReply(fmt.Sprintf("planning failed: %v", err))}, err
	}

	decisions := p.parse(comp.Text, in)
	if len(decisions) == 0 {
		slog.Warn("planner response unparsable, degrading to no_reply",
			"response_preview", preview(comp.Text, 120))
		return []Decision{NoReply("planner response unparsable")}, nil
	}
	return decisions, nil
}

// parse converts the raw response into validated decisions in source
// order. Invalid blocks are dropped and logged individually; decisions
// naming unknown actions are coerced to no_reply with the rejected name
// kept in the reasoning for observability.
func (p *Planner) parse(response string, in Input) []Decision {
	blocks := extractBlocks(response)
	decisions := make([]Decision, 0, len(blocks))

	for i, block := range blocks {
		raw, err := decodeBlock(block)
		if err != nil {
			slog.Warn("dropping malformed decision block",
				"index", i, "error", err, "block_preview", preview(block, 80))
			continue
		}
		decisions = append(decisions, p.validate(raw, in))
	}
	return decisions
}

func (p *Planner) validate(raw rawDecision, in Input) Decision {
	name := raw.name()
	d := Decision{
		Action:    name,
		Reasoning: raw.Reasoning,
		Params:    raw.Params,
	}

	if !actions.IsBuiltin(name) {
		if _, ok := in.Eligible[name]; !ok {
			slog.Warn("planner chose ineligible action, coercing to no_reply", "action", name)
			return NoReply(fmt.Sprintf("%s [rejected action: %s]", raw.Reasoning, name))
		}
	}

	d.TargetMessageID = resolveTarget(raw.Target, in)
	return d
}

// resolveTarget maps the model's target reference onto the cycle's
// message set, defaulting to the most recent message when absent or
// unresolved.
func resolveTarget(target string, in Input) string {
	if len(in.Messages) == 0 {
		return ""
	}
	if target != "" {
		for _, m := range in.Messages {
			if m.ID == target {
				return target
			}
		}
		slog.Debug("planner target not in message set, using most recent", "target", target)
	}
	return in.Messages[len(in.Messages)-1].ID
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
