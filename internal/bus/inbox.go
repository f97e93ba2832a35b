package bus

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// InboxOptions tunes one conversation inbox.
type InboxOptions struct {
	// Debounce merges rapid consecutive messages from the same sender
	// into one before they become visible as unread. <= 0 disables.
	Debounce time.Duration

	// DedupeTTL and DedupeSize bound the duplicate-ID window.
	DedupeTTL  time.Duration
	DedupeSize int

	// Capacity bounds retained messages; oldest are dropped past it.
	Capacity int
}

const defaultInboxCapacity = 512

// Inbox buffers one conversation's messages for its orchestration loop.
// The host pushes; the loop reads unread messages relative to a
// watermark it advances after acting.
type Inbox struct {
	conversationID string
	opts           InboxOptions
	dedupe         *dedupeCache

	mu        sync.Mutex
	messages  []Message // chronological, bounded by Capacity
	dropped   int       // messages discarded to honor Capacity
	watermark int       // absolute index (counting dropped) of first unread
	total     int       // absolute count of messages ever appended

	// debounce state, keyed by sender
	buffers map[string]*senderBuffer

	notify chan struct{} // signalled on new visible messages, cap 1
}

type senderBuffer struct {
	pending []Message
	timer   *time.Timer
}

// NewInbox creates an inbox for one conversation.
func NewInbox(conversationID string, opts InboxOptions) *Inbox {
	if opts.Capacity <= 0 {
		opts.Capacity = defaultInboxCapacity
	}
	return &Inbox{
		conversationID: conversationID,
		opts:           opts,
		dedupe:         newDedupeCache(opts.DedupeTTL, opts.DedupeSize),
		buffers:        make(map[string]*senderBuffer),
		notify:         make(chan struct{}, 1),
	}
}

// Notify returns a channel that receives a signal whenever new messages
// become visible. Coalesced: one signal may cover many messages.
func (in *Inbox) Notify() <-chan struct{} { return in.notify }

// Push adds a message. Duplicate IDs inside the dedupe window are
// dropped; with debouncing enabled, rapid messages from one sender are
// merged before becoming visible.
func (in *Inbox) Push(msg Message) {
	if in.dedupe.isDuplicate(msg.ID) {
		slog.Debug("inbox dropped duplicate", "conversation", in.conversationID, "id", msg.ID)
		return
	}

	if in.opts.Debounce <= 0 {
		in.append(msg)
		return
	}

	// Mentions bypass debounce: flush the sender's buffer, then deliver.
	if msg.Mentioned {
		in.flushSender(msg.SenderID)
		in.append(msg)
		return
	}

	in.mu.Lock()
	buf, ok := in.buffers[msg.SenderID]
	if !ok {
		buf = &senderBuffer{}
		in.buffers[msg.SenderID] = buf
	}
	buf.pending = append(buf.pending, msg)
	if buf.timer != nil {
		buf.timer.Stop()
	}
	sender := msg.SenderID
	buf.timer = time.AfterFunc(in.opts.Debounce, func() { in.flushSender(sender) })
	in.mu.Unlock()
}

// flushSender merges and appends a sender's buffered messages.
func (in *Inbox) flushSender(senderID string) {
	in.mu.Lock()
	buf, ok := in.buffers[senderID]
	if !ok || len(buf.pending) == 0 {
		in.mu.Unlock()
		return
	}
	if buf.timer != nil {
		buf.timer.Stop()
	}
	msgs := buf.pending
	delete(in.buffers, senderID)
	in.mu.Unlock()

	in.append(mergeMessages(msgs))
}

// Flush forces all debounce buffers out immediately (shutdown).
func (in *Inbox) Flush() {
	in.mu.Lock()
	senders := make([]string, 0, len(in.buffers))
	for s := range in.buffers {
		senders = append(senders, s)
	}
	in.mu.Unlock()
	for _, s := range senders {
		in.flushSender(s)
	}
}

func (in *Inbox) append(msg Message) {
	in.mu.Lock()
	in.messages = append(in.messages, msg)
	in.total++
	if len(in.messages) > in.opts.Capacity {
		over := len(in.messages) - in.opts.Capacity
		in.messages = in.messages[over:]
		in.dropped += over
	}
	in.mu.Unlock()

	select {
	case in.notify <- struct{}{}:
	default:
	}
}

// Unread returns the messages past the watermark, oldest first.
func (in *Inbox) Unread() []Message {
	in.mu.Lock()
	defer in.mu.Unlock()

	start := in.watermark - in.dropped
	if start < 0 {
		start = 0
	}
	if start >= len(in.messages) {
		return nil
	}
	out := make([]Message, len(in.messages)-start)
	copy(out, in.messages[start:])
	return out
}

// UnreadCount returns the number of unread messages.
func (in *Inbox) UnreadCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := in.total - in.watermark
	if n < 0 {
		return 0
	}
	return n
}

// AccumulatedInterest sums the interest scores of unread messages.
func (in *Inbox) AccumulatedInterest() float64 {
	in.mu.Lock()
	defer in.mu.Unlock()

	start := in.watermark - in.dropped
	if start < 0 {
		start = 0
	}
	var sum float64
	for i := start; i < len(in.messages); i++ {
		sum += in.messages[i].Interest
	}
	return sum
}

// Recent returns up to n most recent messages regardless of watermark,
// oldest first. Used for transcript rendering context.
func (in *Inbox) Recent(n int) []Message {
	in.mu.Lock()
	defer in.mu.Unlock()

	if n <= 0 || len(in.messages) == 0 {
		return nil
	}
	start := len(in.messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]Message, len(in.messages)-start)
	copy(out, in.messages[start:])
	return out
}

// Advance moves the watermark past everything currently visible.
func (in *Inbox) Advance() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.watermark = in.total
}

// mergeMessages folds a sender burst into one message: contents joined
// with newlines, interest summed, identity fields from the last message.
func mergeMessages(msgs []Message) Message {
	if len(msgs) == 1 {
		return msgs[0]
	}
	last := msgs[len(msgs)-1]

	parts := make([]string, 0, len(msgs))
	var interest float64
	mentioned := false
	for _, m := range msgs {
		if m.Content != "" {
			parts = append(parts, m.Content)
		}
		interest += m.Interest
		mentioned = mentioned || m.Mentioned
	}
	last.Content = strings.Join(parts, "\n")
	last.Interest = interest
	last.Mentioned = mentioned
	return last
}
