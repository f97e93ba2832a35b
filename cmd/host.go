package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/lunamoth/heartflow/internal/actions"
	"github.com/lunamoth/heartflow/internal/bus"
	"github.com/lunamoth/heartflow/internal/loop"
	"github.com/lunamoth/heartflow/internal/providers"
)

// providerReplies is the CLI's trivial reply generator: one completion,
// one text segment. Real hosts plug in persona-aware generation.
type providerReplies struct {
	provider providers.Provider
	model    string
}

const replySystem = "You are a helpful chat participant. Reply briefly and naturally " +
	"to the quoted message. Plain text only."

func (r *providerReplies) Generate(ctx context.Context, target bus.Message, available map[string]*actions.ActionDescriptor) ([]loop.Segment, error) {
	comp, err := r.provider.Complete(ctx, providers.Request{
		System:      replySystem,
		Prompt:      fmt.Sprintf("%s said: %s", target.SenderName, target.Content),
		Model:       r.model,
		Temperature: 0.8,
	})
	if err != nil {
		return nil, err
	}
	return []loop.Segment{{Kind: loop.SegmentText, Payload: comp.Text}}, nil
}

// stdoutSender prints outgoing segments; the CLI host has no platform.
type stdoutSender struct{}

func (stdoutSender) Send(ctx context.Context, conversationID string, seg loop.Segment) error {
	_, err := fmt.Fprintf(os.Stdout, "[%s] %s> %s\n", conversationID, seg.Kind, seg.Payload)
	return err
}
