// Package planner turns the eligible action set plus conversation context
// into structured decisions via a single reasoning call per cycle. It
// degrades, never fails: any unrecoverable problem yields one no_reply
// decision carrying the error as its reasoning.
package planner

import (
	"github.com/lunamoth/heartflow/internal/actions"
	"github.com/lunamoth/heartflow/internal/bus"
	"github.com/lunamoth/heartflow/internal/engagement"
)

// Decision is one planner instruction: which action, why, with what
// parameters, aimed at which message. Consumed within the producing
// cycle only.
type Decision struct {
	Action          string
	Reasoning       string
	Params          map[string]any
	TargetMessageID string
}

// NoReply builds the sentinel fallback decision.
func NoReply(reasoning string) Decision {
	return Decision{Action: actions.ActionNoReply, Reasoning: reasoning}
}

// IsNoReply reports whether d is the do-nothing decision.
func (d Decision) IsNoReply() bool { return d.Action == actions.ActionNoReply }

// Input is everything one planning call sees.
type Input struct {
	Eligible   map[string]*actions.ActionDescriptor
	Transcript string

	// Messages is the cycle's rendered message set, oldest first, used
	// to resolve target references. The last entry is the most recent
	// message and the default target.
	Messages []bus.Message

	// History is recent action-history lines for the prompt.
	History []string

	Engagement engagement.State
}
