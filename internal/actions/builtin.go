package actions

// Built-in pseudo-actions are always legal planner outputs regardless of
// the eligible set. They carry loop semantics, not plugin executors.
const (
	// ActionReply asks the reply generator to produce and send a message.
	ActionReply = "reply"

	// ActionNoReply is the explicit do-nothing decision (and the planner's
	// universal fallback).
	ActionNoReply = "no_reply"

	// ActionNoReplyUntilCalled stays silent until the agent is mentioned.
	ActionNoReplyUntilCalled = "no_reply_until_called"

	// ActionWaitTime pauses the loop for a planner-chosen duration.
	ActionWaitTime = "wait_time"
)

var builtins = map[string]string{
	ActionReply:              "Send a text reply to the conversation.",
	ActionNoReply:            "Do nothing this cycle.",
	ActionNoReplyUntilCalled: "Stay silent until someone addresses you directly.",
	ActionWaitTime:           "Wait a number of seconds before the next cycle. Params: seconds.",
}

// IsBuiltin reports whether name is a built-in pseudo-action.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// BuiltinDescriptions returns the pseudo-action name → description map
// used when assembling the planner prompt.
func BuiltinDescriptions() map[string]string {
	out := make(map[string]string, len(builtins))
	for k, v := range builtins {
		out[k] = v
	}
	return out
}
