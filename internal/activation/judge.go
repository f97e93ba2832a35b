package activation

import (
	"context"
	"fmt"
	"strings"

	"github.com/lunamoth/heartflow/internal/actions"
	"github.com/lunamoth/heartflow/internal/providers"
)

// Judge answers the yes/no question of whether an LLM-judged action
// should be a planning candidate for the current transcript.
type Judge interface {
	JudgeActivation(ctx context.Context, desc *actions.ActionDescriptor, transcript string) (bool, error)
}

// ProviderJudge implements Judge on top of a reasoning provider.
type ProviderJudge struct {
	provider providers.Provider
	model    string
}

// NewProviderJudge creates a judge that asks model (empty = provider
// default) a strict yes/no question per action.
func NewProviderJudge(p providers.Provider, model string) *ProviderJudge {
	return &ProviderJudge{provider: p, model: model}
}

const judgeSystem = "You decide whether a chat-bot action is applicable right now. " +
	"Answer with a single word: yes or no."

func (j *ProviderJudge) JudgeActivation(ctx context.Context, desc *actions.ActionDescriptor, transcript string) (bool, error) {
	prompt := fmt.Sprintf("Action: %s\nCriterion: %s\n\nRecent conversation:\n%s\n\nIs the action applicable? Answer yes or no.",
		desc.Name, desc.Activation.JudgePrompt, transcript)

	comp, err := j.provider.Complete(ctx, providers.Request{
		System:      judgeSystem,
		Prompt:      prompt,
		Model:       j.model,
		MaxTokens:   8,
		Temperature: 0,
	})
	if err != nil {
		return false, err
	}
	return parseYesNo(comp.Text), nil
}

// parseYesNo is lenient about casing, punctuation and filler, but any
// answer that does not clearly start with an affirmative reads as no.
func parseYesNo(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".!\"' \t\n")
	return strings.HasPrefix(s, "yes") || strings.HasPrefix(s, "y:") || s == "y" || strings.HasPrefix(s, "true")
}

// JudgeFunc adapts a function to Judge. Used by tests and by hosts that
// want a custom judgment source.
type JudgeFunc func(ctx context.Context, desc *actions.ActionDescriptor, transcript string) (bool, error)

func (f JudgeFunc) JudgeActivation(ctx context.Context, desc *actions.ActionDescriptor, transcript string) (bool, error) {
	return f(ctx, desc, transcript)
}
