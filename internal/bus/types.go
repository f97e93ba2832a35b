// Package bus is the message intake path between the hosting process and
// the per-conversation orchestration loops: a deduplicated, debounced
// inbox with an unread watermark and accumulated interest tracking.
package bus

import "time"

// Message is one chat message as observed by the engine. The hosting
// process maps its platform payloads into this shape.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string
	Content        string
	Timestamp      time.Time

	// Interest is the host-assigned salience score for this message
	// (mentions, questions, media...). Summed into the loop's readiness
	// gate and fed to the engagement model. Zero is a plain message.
	Interest float64

	// Mentioned marks messages that address the agent directly.
	Mentioned bool
}
