package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteSink persists records in a SQLite database (WAL mode).
type SQLiteSink struct {
	db *sqlx.DB
}

// NewSQLiteSink opens (or creates) the database at path and migrates the
// schema.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("decision store opened", "path", path)
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			cycle_id TEXT NOT NULL,
			action TEXT NOT NULL,
			reasoning TEXT NOT NULL DEFAULT '',
			params TEXT NOT NULL DEFAULT '{}',
			success INTEGER NOT NULL,
			ts INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_conv ON decisions(conversation_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_cycle ON decisions(cycle_id)`,
		`CREATE TABLE IF NOT EXISTS cycles (
			cycle_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			decisions INTEGER NOT NULL,
			failures INTEGER NOT NULL,
			plan_ns INTEGER NOT NULL,
			filter_ns INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_conv ON cycles(conversation_id, started_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteSink) RecordDecision(rec DecisionRecord) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		params = []byte("{}")
	}
	_, err = s.db.Exec(
		`INSERT INTO decisions (conversation_id, cycle_id, action, reasoning, params, success, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ConversationID, rec.CycleID, rec.Action, rec.Reasoning,
		string(params), rec.Success, rec.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (s *SQLiteSink) RecordCycle(sum CycleSummary) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO cycles
		 (cycle_id, conversation_id, started_at, finished_at, decisions, failures, plan_ns, filter_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.CycleID, sum.ConversationID,
		sum.StartedAt.UnixMilli(), sum.FinishedAt.UnixMilli(),
		sum.Decisions, sum.Failures,
		sum.PlanDuration.Nanoseconds(), sum.FilterDuration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

// RecentDecisions returns up to limit most recent decisions for a
// conversation, newest first. Used by the doctor command and hosts.
func (s *SQLiteSink) RecentDecisions(conversationID string, limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Queryx(
		`SELECT conversation_id, cycle_id, action, reasoning, params, success, ts
		 FROM decisions WHERE conversation_id = ? ORDER BY ts DESC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var (
			rec    DecisionRecord
			params string
			ts     int64
		)
		if err := rows.Scan(&rec.ConversationID, &rec.CycleID, &rec.Action,
			&rec.Reasoning, &params, &rec.Success, &ts); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		json.Unmarshal([]byte(params), &rec.Params)
		rec.Timestamp = msToTime(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func msToTime(ms int64) time.Time { return time.UnixMilli(ms) }

func (s *SQLiteSink) Close() error { return s.db.Close() }
