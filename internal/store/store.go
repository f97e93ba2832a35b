// Package store persists per-decision records and finalized cycle
// summaries for downstream analysis. The engine only talks to the Sink
// interface; backends are a JSONL file and SQLite.
package store

import "time"

// DecisionRecord is the flat per-decision record emitted after every
// cycle, one row per executed decision.
type DecisionRecord struct {
	ConversationID string         `db:"conversation_id" json:"conversation_id"`
	CycleID        string         `db:"cycle_id" json:"cycle_id"`
	Action         string         `db:"action" json:"action_name"`
	Reasoning      string         `db:"reasoning" json:"reasoning"`
	Params         map[string]any `db:"-" json:"parameters,omitempty"`
	Success        bool           `db:"success" json:"success"`
	Timestamp      time.Time      `db:"ts" json:"timestamp"`
}

// CycleSummary is the per-cycle roll-up.
type CycleSummary struct {
	ConversationID string        `db:"conversation_id" json:"conversation_id"`
	CycleID        string        `db:"cycle_id" json:"cycle_id"`
	StartedAt      time.Time     `db:"started_at" json:"started_at"`
	FinishedAt     time.Time     `db:"finished_at" json:"finished_at"`
	Decisions      int           `db:"decisions" json:"decisions"`
	Failures       int           `db:"failures" json:"failures"`
	PlanDuration   time.Duration `db:"plan_ns" json:"plan_duration"`
	FilterDuration time.Duration `db:"filter_ns" json:"filter_duration"`
}

// Sink receives records. Implementations must tolerate concurrent calls
// from many conversation loops.
type Sink interface {
	RecordDecision(rec DecisionRecord) error
	RecordCycle(sum CycleSummary) error
	Close() error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordDecision(DecisionRecord) error { return nil }
func (NopSink) RecordCycle(CycleSummary) error      { return nil }
func (NopSink) Close() error                        { return nil }
