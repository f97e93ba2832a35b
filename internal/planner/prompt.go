package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lunamoth/heartflow/internal/actions"
)

const promptSystem = `You are the decision module of a chat agent. Given the
conversation and the available actions, decide what the agent does next.
Reply with one or more fenced json blocks, one decision each:

` + "```json" + `
{"action": "<name>", "reasoning": "<why>", "params": {}, "target": "<message id, optional>"}
` + "```" + `

Rules:
- Only use listed actions. "no_reply" is always allowed.
- Emit several blocks only when the actions can run side by side;
  actions marked [exclusive] must be the only action of their kind.
- Keep reasoning to one short sentence.`

// buildPrompt enumerates eligible actions, built-in pseudo-actions,
// recent action history and the engagement snapshot around the
// transcript.
func buildPrompt(in Input) string {
	var b strings.Builder

	b.WriteString("## Available actions\n")
	names := make([]string, 0, len(in.Eligible))
	for name := range in.Eligible {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		desc := in.Eligible[name]
		fmt.Fprintf(&b, "- %s: %s", name, desc.Description)
		if !desc.ParallelAllowed {
			b.WriteString(" [exclusive: not alongside other actions]")
		}
		if len(desc.Parameters) > 0 {
			hints := make([]string, 0, len(desc.Parameters))
			for _, p := range desc.Parameters {
				hint := p.Name
				if p.Required {
					hint += " (required)"
				}
				if p.Description != "" {
					hint += " — " + p.Description
				}
				hints = append(hints, hint)
			}
			fmt.Fprintf(&b, " [params: %s]", strings.Join(hints, "; "))
		}
		b.WriteString("\n")
	}

	builtins := actions.BuiltinDescriptions()
	builtinNames := make([]string, 0, len(builtins))
	for name := range builtins {
		builtinNames = append(builtinNames, name)
	}
	sort.Strings(builtinNames)
	for _, name := range builtinNames {
		fmt.Fprintf(&b, "- %s: %s\n", name, builtins[name])
	}

	if len(in.History) > 0 {
		b.WriteString("\n## Your recent actions\n")
		for _, h := range in.History {
			b.WriteString("- " + h + "\n")
		}
	}

	fmt.Fprintf(&b, "\n## State\nmode: %s, energy: %.0f\n",
		in.Engagement.Mode, in.Engagement.Energy)

	b.WriteString("\n## Conversation\n")
	b.WriteString(in.Transcript)
	b.WriteString("\n\nDecide now.")
	return b.String()
}
