package store

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sampleDecision() DecisionRecord {
	return DecisionRecord{
		ConversationID: "general",
		CycleID:        "cyc-1",
		Action:         "reply",
		Reasoning:      "direct question",
		Params:         map[string]any{"tone": "casual"},
		Success:        true,
		Timestamp:      time.Now().Truncate(time.Millisecond),
	}
}

func sampleCycle() CycleSummary {
	now := time.Now().Truncate(time.Millisecond)
	return CycleSummary{
		ConversationID: "general",
		CycleID:        "cyc-1",
		StartedAt:      now.Add(-2 * time.Second),
		FinishedAt:     now,
		Decisions:      2,
		Failures:       1,
		PlanDuration:   800 * time.Millisecond,
		FilterDuration: 150 * time.Millisecond,
	}
}

func TestJSONLSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	s, err := NewJSONLSink(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RecordDecision(sampleDecision()); err != nil {
		t.Fatalf("record decision: %v", err)
	}
	if err := s.RecordCycle(sampleCycle()); err != nil {
		t.Fatalf("record cycle: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var kinds []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line map[string]any
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("line not valid JSON: %v", err)
		}
		kinds = append(kinds, line["kind"].(string))
	}
	if len(kinds) != 2 || kinds[0] != "decision" || kinds[1] != "cycle" {
		t.Errorf("kinds = %v, want [decision cycle]", kinds)
	}
}

func TestSQLiteSink_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	s, err := NewSQLiteSink(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	want := sampleDecision()
	if err := s.RecordDecision(want); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordCycle(sampleCycle()); err != nil {
		t.Fatalf("record cycle: %v", err)
	}

	got, err := s.RecentDecisions("general", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("decisions = %d, want 1", len(got))
	}
	rec := got[0]
	if rec.Action != want.Action || rec.Reasoning != want.Reasoning || !rec.Success {
		t.Errorf("record = %+v", rec)
	}
	if rec.Params["tone"] != "casual" {
		t.Errorf("params = %v", rec.Params)
	}
	if !rec.Timestamp.Equal(want.Timestamp) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp, want.Timestamp)
	}
}

func TestSQLiteSink_RecentOrderAndLimit(t *testing.T) {
	s, err := NewSQLiteSink(filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	base := time.Now()
	for i := 0; i < 5; i++ {
		rec := sampleDecision()
		rec.CycleID = "cyc-" + string(rune('0'+i))
		rec.Timestamp = base.Add(time.Duration(i) * time.Second)
		if err := s.RecordDecision(rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.RecentDecisions("general", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].CycleID != "cyc-4" {
		t.Errorf("newest first expected, got %q", got[0].CycleID)
	}
	if empty, _ := s.RecentDecisions("other-conv", 3); len(empty) != 0 {
		t.Error("foreign conversation leaked into results")
	}
}

func TestSQLiteSink_CycleUpsert(t *testing.T) {
	s, err := NewSQLiteSink(filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	sum := sampleCycle()
	if err := s.RecordCycle(sum); err != nil {
		t.Fatal(err)
	}
	sum.Failures = 0
	if err := s.RecordCycle(sum); err != nil {
		t.Errorf("re-recording a cycle must upsert, got %v", err)
	}
}

func TestNopSink(t *testing.T) {
	var s Sink = NopSink{}
	if err := s.RecordDecision(sampleDecision()); err != nil {
		t.Error(err)
	}
	if err := s.RecordCycle(sampleCycle()); err != nil {
		t.Error(err)
	}
	if err := s.Close(); err != nil {
		t.Error(err)
	}
}
