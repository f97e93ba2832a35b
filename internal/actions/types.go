// Package actions holds the registry of pluggable agent actions and their
// activation policies. Plugins register an ActionDescriptor at startup;
// the activation filter reduces the registry to the eligible set each
// cycle and the planner picks from that set.
package actions

import "context"

// PolicyKind selects how an action becomes a planning candidate.
type PolicyKind string

const (
	PolicyAlways   PolicyKind = "always"
	PolicyNever    PolicyKind = "never"
	PolicyRandom   PolicyKind = "random"
	PolicyKeyword  PolicyKind = "keyword"
	PolicyLLMJudge PolicyKind = "llm_judge"
)

// Policy is the activation rule attached to an action. Exactly one
// variant is meaningful per descriptor, selected by Kind.
type Policy struct {
	Kind PolicyKind `json:"kind" yaml:"kind"`

	// Random: include iff a fresh uniform draw < Probability.
	Probability float64 `json:"probability,omitempty" yaml:"probability,omitempty"`

	// Keyword: include iff the transcript contains any keyword.
	Keywords      []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	CaseSensitive bool     `json:"case_sensitive,omitempty" yaml:"case_sensitive,omitempty"`

	// LLMJudge: yes/no question put to the reasoning model.
	JudgePrompt string `json:"judge_prompt,omitempty" yaml:"judge_prompt,omitempty"`
}

// Always activates unconditionally.
func Always() Policy { return Policy{Kind: PolicyAlways} }

// Never deactivates unconditionally (registered but dormant).
func Never() Policy { return Policy{Kind: PolicyNever} }

// Random activates with probability p per cycle.
func Random(p float64) Policy { return Policy{Kind: PolicyRandom, Probability: p} }

// Keyword activates when the transcript mentions any of words.
func Keyword(words []string, caseSensitive bool) Policy {
	return Policy{Kind: PolicyKeyword, Keywords: words, CaseSensitive: caseSensitive}
}

// LLMJudge activates when the reasoning model answers yes to prompt.
func LLMJudge(prompt string) Policy {
	return Policy{Kind: PolicyLLMJudge, JudgePrompt: prompt}
}

// ParamSpec documents one planner-fillable action parameter.
type ParamSpec struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Required    bool   `json:"required" yaml:"required"`
}

// Result is what an executed action hands back for the cycle record.
type Result struct {
	Success bool
	Display string // short human-readable outcome, shown in action history
}

// Executor is a handler bound to one decision's parameters.
type Executor interface {
	Execute(ctx context.Context) (Result, error)
}

// ExecutorFactory builds a handler for one invocation. Params come from
// the planner decision and are validated by the plugin itself.
type ExecutorFactory func(params map[string]any) (Executor, error)

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(ctx context.Context) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context) (Result, error) { return f(ctx) }

// ActionDescriptor describes one registered action. Descriptors live for
// the process lifetime but can be hot-added and hot-removed.
type ActionDescriptor struct {
	Name            string
	Description     string
	Activation      Policy
	Parameters      []ParamSpec
	ParallelAllowed bool
	NewExecutor     ExecutorFactory
}
