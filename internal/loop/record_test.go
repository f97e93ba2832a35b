package loop

import (
	"strings"
	"testing"
	"time"

	"github.com/lunamoth/heartflow/internal/planner"
)

func rec(id string, outcomes ...Outcome) CycleRecord {
	return CycleRecord{
		ID:         id,
		FinishedAt: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		Outcomes:   outcomes,
	}
}

func TestHistory_RingEviction(t *testing.T) {
	h := NewHistory(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		h.Append(rec(id))
	}
	snap := h.Snapshot()
	if len(snap) != 3 || snap[0].ID != "b" || snap[2].ID != "d" {
		t.Errorf("snapshot = %v, want oldest evicted", ids(snap))
	}
	last, ok := h.Last()
	if !ok || last.ID != "d" {
		t.Errorf("last = %+v", last)
	}
}

func TestHistory_Empty(t *testing.T) {
	h := NewHistory(3)
	if _, ok := h.Last(); ok {
		t.Error("last on empty history")
	}
	if lines := h.ActionLines(5); len(lines) != 0 {
		t.Errorf("lines = %v", lines)
	}
}

func TestHistory_ActionLines(t *testing.T) {
	h := NewHistory(10)
	h.Append(rec("c1",
		Outcome{Decision: planner.Decision{Action: "reply"}, Success: true, Display: "replied with 2 segments"},
		Outcome{Decision: planner.NoReply("quiet"), Success: true},
	))
	h.Append(rec("c2",
		Outcome{Decision: planner.Decision{Action: "weather"}, Success: false},
	))

	lines := h.ActionLines(10)
	if len(lines) != 2 {
		t.Fatalf("lines = %v, want 2 (no_reply skipped)", lines)
	}
	// chronological: the older reply first
	if !strings.Contains(lines[0], "reply (ok)") {
		t.Errorf("line[0] = %q", lines[0])
	}
	if !strings.Contains(lines[0], "replied with 2 segments") {
		t.Errorf("line[0] missing display: %q", lines[0])
	}
	if !strings.Contains(lines[1], "weather (failed)") {
		t.Errorf("line[1] = %q", lines[1])
	}
}

func TestHistory_ActionLinesCapped(t *testing.T) {
	h := NewHistory(10)
	for i := 0; i < 5; i++ {
		h.Append(rec("c",
			Outcome{Decision: planner.Decision{Action: "reply"}, Success: true}))
	}
	if lines := h.ActionLines(2); len(lines) != 2 {
		t.Errorf("lines = %d, want capped at 2", len(lines))
	}
}

func TestCycleRecord_Failures(t *testing.T) {
	r := rec("c",
		Outcome{Success: true},
		Outcome{Success: false, Err: "boom"},
		Outcome{Success: false, Err: "bang"},
	)
	if n := r.Failures(); n != 2 {
		t.Errorf("failures = %d, want 2", n)
	}
}

func ids(recs []CycleRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
