package loop

import (
	"context"

	"github.com/lunamoth/heartflow/internal/actions"
	"github.com/lunamoth/heartflow/internal/bus"
)

// SegmentKind tags one piece of generated reply content.
type SegmentKind string

const (
	SegmentText  SegmentKind = "text"
	SegmentEmoji SegmentKind = "emoji"
)

// Segment is one (kind, payload) piece of a generated reply.
type Segment struct {
	Kind    SegmentKind
	Payload string
}

// ReplyGenerator produces the actual words of a reply. The engine never
// chooses wording itself; it delegates here.
type ReplyGenerator interface {
	Generate(ctx context.Context, target bus.Message, available map[string]*actions.ActionDescriptor) ([]Segment, error)
}

// Sender delivers reply segments to the conversation's platform.
type Sender interface {
	Send(ctx context.Context, conversationID string, seg Segment) error
}
