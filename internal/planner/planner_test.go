package planner

import (
	"context"
	"strings"
	"testing"

	"github.com/lunamoth/heartflow/internal/actions"
	"github.com/lunamoth/heartflow/internal/bus"
	"github.com/lunamoth/heartflow/internal/engagement"
	"github.com/lunamoth/heartflow/internal/providers"
)

// cannedProvider returns a fixed completion (or error) for every call.
type cannedProvider struct {
	text  string
	err   error
	calls int
}

func (p *cannedProvider) Name() string { return "canned" }

func (p *cannedProvider) Complete(ctx context.Context, req providers.Request) (*providers.Completion, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &providers.Completion{Text: p.text}, nil
}

func testInput() Input {
	return Input{
		Eligible: map[string]*actions.ActionDescriptor{
			"weather": {Name: "weather", Description: "look up weather", Activation: actions.Always()},
		},
		Transcript: "[12:00:00] kay: what's the weather?",
		Messages: []bus.Message{
			{ID: "m1", SenderName: "kay", Content: "hello"},
			{ID: "m2", SenderName: "kay", Content: "what's the weather?"},
		},
		Engagement: engagement.State{Mode: engagement.ModeNormal},
	}
}

func TestPlanner_MultipleDecisionsInOrder(t *testing.T) {
	p := New(&cannedProvider{text: "```json\n" +
		`{"action": "weather", "reasoning": "asked directly"}` + "\n```\n```json\n" +
		`{"action": "reply", "reasoning": "answer with the result"}` + "\n```"}, "", 0)

	ds, err := p.Plan(context.Background(), testInput())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(ds) != 2 {
		t.Fatalf("decisions = %d, want 2", len(ds))
	}
	if ds[0].Action != "weather" || ds[1].Action != "reply" {
		t.Errorf("order = [%s %s], want [weather reply]", ds[0].Action, ds[1].Action)
	}
}

func TestPlanner_UnparsableDegradesToNoReply(t *testing.T) {
	p := New(&cannedProvider{text: "I think I'll just watch for now."}, "", 0)

	ds, err := p.Plan(context.Background(), testInput())
	if err != nil {
		t.Fatalf("plan must not error on unparsable output: %v", err)
	}
	if len(ds) != 1 || !ds[0].IsNoReply() {
		t.Fatalf("decisions = %+v, want single no_reply", ds)
	}
}

func TestPlanner_ProviderErrorDegradesToNoReply(t *testing.T) {
	callErr := &providers.CallError{Kind: providers.ErrConnection, Msg: "refused"}
	p := New(&cannedProvider{err: callErr}, "", 0)

	ds, err := p.Plan(context.Background(), testInput())
	if err == nil {
		t.Error("expected the informational error to surface")
	}
	if len(ds) != 1 || !ds[0].IsNoReply() {
		t.Fatalf("decisions = %+v, want single no_reply", ds)
	}
	if !strings.Contains(ds[0].Reasoning, "planning failed") {
		t.Errorf("reasoning = %q, want failure text", ds[0].Reasoning)
	}
}

func TestPlanner_IneligibleActionCoerced(t *testing.T) {
	p := New(&cannedProvider{text: `{"action": "launch_rockets", "reasoning": "seems fun"}`}, "", 0)

	ds, err := p.Plan(context.Background(), testInput())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(ds) != 1 || !ds[0].IsNoReply() {
		t.Fatalf("decisions = %+v, want single coerced no_reply", ds)
	}
	if !strings.Contains(ds[0].Reasoning, "launch_rockets") {
		t.Errorf("reasoning = %q, must name the rejected action", ds[0].Reasoning)
	}
}

func TestPlanner_BuiltinsAlwaysEligible(t *testing.T) {
	p := New(&cannedProvider{text: `{"action": "no_reply", "reasoning": "nothing to add"}`}, "", 0)

	ds, err := p.Plan(context.Background(), testInput())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(ds) != 1 || ds[0].Action != actions.ActionNoReply {
		t.Fatalf("decisions = %+v, want the no_reply decision as-is", ds)
	}
	if strings.Contains(ds[0].Reasoning, "rejected") {
		t.Error("builtin must not be coerced")
	}
}

func TestPlanner_MalformedBlockDroppedOthersKept(t *testing.T) {
	p := New(&cannedProvider{text: "```json\n<<<garbage>>>\n```\n```json\n" +
		`{"action": "reply", "reasoning": "ok"}` + "\n```"}, "", 0)

	ds, err := p.Plan(context.Background(), testInput())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(ds) != 1 || ds[0].Action != "reply" {
		t.Fatalf("decisions = %+v, want single reply surviving the garbage sibling", ds)
	}
}

func TestPlanner_TargetResolution(t *testing.T) {
	in := testInput()

	p := New(&cannedProvider{text: `{"action": "reply", "reasoning": "r", "target": "m1"}`}, "", 0)
	ds, _ := p.Plan(context.Background(), in)
	if ds[0].TargetMessageID != "m1" {
		t.Errorf("target = %q, want explicit m1", ds[0].TargetMessageID)
	}

	p = New(&cannedProvider{text: `{"action": "reply", "reasoning": "r", "target": "m99"}`}, "", 0)
	ds, _ = p.Plan(context.Background(), in)
	if ds[0].TargetMessageID != "m2" {
		t.Errorf("target = %q, want most recent m2 for unknown reference", ds[0].TargetMessageID)
	}

	p = New(&cannedProvider{text: `{"action": "reply", "reasoning": "r"}`}, "", 0)
	ds, _ = p.Plan(context.Background(), in)
	if ds[0].TargetMessageID != "m2" {
		t.Errorf("target = %q, want default m2 when absent", ds[0].TargetMessageID)
	}
}

func TestPlanner_SingleCallPerCycle(t *testing.T) {
	cp := &cannedProvider{text: `{"action": "reply", "reasoning": "ok"}`}
	p := New(cp, "", 0)
	if _, err := p.Plan(context.Background(), testInput()); err != nil {
		t.Fatal(err)
	}
	if cp.calls != 1 {
		t.Errorf("provider calls = %d, want exactly 1", cp.calls)
	}
}

func TestBuildPrompt_NamesEligibleAndBuiltins(t *testing.T) {
	prompt := buildPrompt(testInput())
	for _, want := range []string{"weather", actions.ActionNoReply, actions.ActionReply, "what's the weather?"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPrompt_MarksExclusiveActions(t *testing.T) {
	in := testInput()
	in.Eligible = map[string]*actions.ActionDescriptor{
		"deploy": {Name: "deploy", Description: "roll out a release",
			Activation: actions.Always()},
		"weather": {Name: "weather", Description: "look up weather",
			Activation: actions.Always(), ParallelAllowed: true},
	}
	prompt := buildPrompt(in)

	deployLine, weatherLine := "", ""
	for _, line := range strings.Split(prompt, "\n") {
		switch {
		case strings.HasPrefix(line, "- deploy:"):
			deployLine = line
		case strings.HasPrefix(line, "- weather:"):
			weatherLine = line
		}
	}
	if !strings.Contains(deployLine, "[exclusive") {
		t.Errorf("deploy line %q missing exclusive marker", deployLine)
	}
	if strings.Contains(weatherLine, "[exclusive") {
		t.Errorf("weather line %q wrongly marked exclusive", weatherLine)
	}
}
