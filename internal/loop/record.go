package loop

import (
	"fmt"
	"sync"
	"time"

	"github.com/lunamoth/heartflow/internal/planner"
)

// Outcome is the per-decision execution result inside a cycle record.
type Outcome struct {
	Decision planner.Decision
	Success  bool
	Display  string
	Err      string
	Duration time.Duration
}

// Timings is the per-phase breakdown of one cycle.
type Timings struct {
	Observe time.Duration
	Filter  time.Duration
	Plan    time.Duration
	Execute time.Duration
}

// CycleRecord captures one finished cycle. Records are immutable once
// appended to the history ring.
type CycleRecord struct {
	ID             string
	ConversationID string
	StartedAt      time.Time
	FinishedAt     time.Time
	Outcomes       []Outcome
	Timings        Timings
	Aborted        bool
}

// Failures counts unsuccessful outcomes.
func (r CycleRecord) Failures() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Success {
			n++
		}
	}
	return n
}

// History is a bounded ring of finalized cycle records, newest last.
type History struct {
	mu   sync.Mutex
	ring []CycleRecord
	size int
}

// NewHistory creates a ring holding up to size records.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 64
	}
	return &History{size: size}
}

// Append adds a finalized record, evicting the oldest past capacity.
func (h *History) Append(rec CycleRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring = append(h.ring, rec)
	if len(h.ring) > h.size {
		h.ring = h.ring[len(h.ring)-h.size:]
	}
}

// Snapshot returns a copy of the retained records, oldest first.
func (h *History) Snapshot() []CycleRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]CycleRecord, len(h.ring))
	copy(out, h.ring)
	return out
}

// Last returns the most recent record.
func (h *History) Last() (CycleRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.ring) == 0 {
		return CycleRecord{}, false
	}
	return h.ring[len(h.ring)-1], true
}

// ActionLines renders up to max recent non-silent outcomes as synthetic
// history lines for the transcript and planner prompt.
func (h *History) ActionLines(max int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var lines []string
	for i := len(h.ring) - 1; i >= 0 && len(lines) < max; i-- {
		rec := h.ring[i]
		for j := len(rec.Outcomes) - 1; j >= 0 && len(lines) < max; j-- {
			o := rec.Outcomes[j]
			if o.Decision.IsNoReply() {
				continue
			}
			status := "ok"
			if !o.Success {
				status = "failed"
			}
			line := fmt.Sprintf("[%s] %s (%s)",
				rec.FinishedAt.Format("15:04:05"), o.Decision.Action, status)
			if o.Display != "" {
				line += " — " + o.Display
			}
			lines = append(lines, line)
		}
	}
	// reverse into chronological order
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines
}
