package planner

import "testing"

func TestExtractBlocks_TwoFenced(t *testing.T) {
	response := "Here's my plan.\n" +
		"```json\n{\"action\": \"reply\", \"reasoning\": \"greet\"}\n```\n" +
		"And then:\n" +
		"```json\n{\"action\": \"no_reply\", \"reasoning\": \"done\"}\n```\n"

	blocks := extractBlocks(response)
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(blocks))
	}
	first, err := decodeBlock(blocks[0])
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if first.name() != "reply" {
		t.Errorf("first action = %q, want reply (order preserved)", first.name())
	}
}

func TestExtractBlocks_BareJSONFallback(t *testing.T) {
	blocks := extractBlocks(`{"action": "reply", "reasoning": "hi"} trailing words`)
	if len(blocks) != 1 {
		t.Fatalf("blocks = %d, want 1 via brace scan", len(blocks))
	}
}

func TestExtractBlocks_TruncatedFence(t *testing.T) {
	blocks := extractBlocks("```json\n{\"action\": \"reply\", \"reasoning\": \"cut off")
	if len(blocks) != 1 {
		t.Fatalf("blocks = %d, want 1 from unclosed fence", len(blocks))
	}
	raw, err := decodeBlock(blocks[0])
	if err != nil {
		t.Fatalf("decode repaired truncation: %v", err)
	}
	if raw.Action != "reply" {
		t.Errorf("action = %q, want reply", raw.Action)
	}
}

func TestExtractBlocks_IgnoresBracesInStrings(t *testing.T) {
	blocks := extractBlocks(`{"action": "reply", "reasoning": "use {braces} carefully"}`)
	if len(blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(blocks))
	}
	if _, err := decodeBlock(blocks[0]); err != nil {
		t.Errorf("decode: %v", err)
	}
}

func TestRepairBlock(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"leading prose", `Sure thing: {"action": "reply", "reasoning": "ok"}`},
		{"trailing prose", `{"action": "reply", "reasoning": "ok"} hope that helps!`},
		{"missing brace", `{"action": "reply", "reasoning": "ok"`},
		{"unterminated string", `{"action": "reply", "reasoning": "ok`},
		{"trailing comma", `{"action": "reply", "reasoning": "ok",}`},
		{"unquoted keys", `{action: "reply", reasoning: "ok"}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw, err := decodeBlock(c.in)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if raw.Action != "reply" {
				t.Errorf("action = %q, want reply", raw.Action)
			}
		})
	}
}

func TestDecodeBlock_ActionTypeAlias(t *testing.T) {
	raw, err := decodeBlock(`{"action_type": "wait_time", "reasoning": "later", "params": {"seconds": 30}}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw.name() != "wait_time" {
		t.Errorf("name = %q, want wait_time", raw.name())
	}
	if raw.Params["seconds"] == nil {
		t.Error("params lost in decode")
	}
}

func TestDecodeBlock_MissingAction(t *testing.T) {
	if _, err := decodeBlock(`{"reasoning": "no action here"}`); err == nil {
		t.Error("expected error for block without an action name")
	}
}

func TestDecodeBlock_Hopeless(t *testing.T) {
	if _, err := decodeBlock("not even close to json"); err == nil {
		t.Error("expected error for unrepairable text")
	}
}
