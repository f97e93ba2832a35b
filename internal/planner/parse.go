package planner

import (
	"fmt"
	"strings"

	"github.com/titanous/json5"
)

// rawDecision is the decoded shape of one model-emitted block. Accepts
// both "action" and "action_type" spellings seen in the wild.
type rawDecision struct {
	Action     string         `json:"action"`
	ActionType string         `json:"action_type"`
	Reasoning  string         `json:"reasoning"`
	Params     map[string]any `json:"params"`
	Target     string         `json:"target"`
}

func (r rawDecision) name() string {
	if r.Action != "" {
		return r.Action
	}
	return r.ActionType
}

// extractBlocks pulls every fenced code block out of a model response.
// When no fences are present, brace-balanced objects are scanned from
// the raw text instead, so bare-JSON replies still parse.
func extractBlocks(s string) []string {
	var blocks []string
	rest := s
	for {
		open := strings.Index(rest, "```")
		if open < 0 {
			break
		}
		rest = rest[open+3:]
		// drop the language tag up to end of line
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			firstLine := strings.TrimSpace(rest[:nl])
			if len(firstLine) <= 10 && !strings.Contains(firstLine, "{") {
				rest = rest[nl+1:]
			}
		}
		closing := strings.Index(rest, "```")
		var body string
		if closing < 0 {
			// Truncated response: take the remainder as an unclosed block.
			body = rest
			rest = ""
		} else {
			body = rest[:closing]
			rest = rest[closing+3:]
		}
		if b := strings.TrimSpace(body); b != "" {
			blocks = append(blocks, b)
		}
		if rest == "" {
			break
		}
	}
	if len(blocks) > 0 {
		return blocks
	}
	return scanObjects(s)
}

// scanObjects extracts top-level {...} spans by brace counting, skipping
// braces inside strings.
func scanObjects(s string) []string {
	var out []string
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					out = append(out, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return out
}

// repairBlock best-effort-fixes a malformed block before decoding:
// strips leading commentary before the first brace, trims trailing
// prose after the last brace, closes an unterminated string, and
// balances missing closing braces. It never errors; hopeless input
// passes through and fails strict decoding instead.
func repairBlock(s string) string {
	s = strings.TrimSpace(s)

	if i := strings.IndexByte(s, '{'); i > 0 {
		s = s[i:]
	} else if i < 0 {
		return s
	}
	if i := strings.LastIndexByte(s, '}'); i >= 0 && i < len(s)-1 {
		s = s[:i+1]
	}

	// Walk once to find unterminated strings and unbalanced braces.
	depth := 0
	inString := false
	escaped := false
	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
		}
	}
	if inString {
		s += `"`
	}
	for ; depth > 0; depth-- {
		s += "}"
	}
	return s
}

// decodeBlock repairs then strictly decodes one block. json5 tolerates
// trailing commas, comments and unquoted keys, which covers most of the
// model's formatting drift.
func decodeBlock(block string) (rawDecision, error) {
	var raw rawDecision
	repaired := repairBlock(block)
	if err := json5.Unmarshal([]byte(repaired), &raw); err != nil {
		return rawDecision{}, fmt.Errorf("decode decision block: %w", err)
	}
	if raw.name() == "" {
		return rawDecision{}, fmt.Errorf("decision block missing action name")
	}
	return raw, nil
}
