package loop

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Manager supervises the per-conversation loops. Conversations are
// independent; the manager only adds registration, bulk start/stop and
// crash escalation.
type Manager struct {
	mu    sync.RWMutex
	loops map[string]*Loop
}

func NewManager() *Manager {
	return &Manager{loops: make(map[string]*Loop)}
}

// Add registers a loop under its conversation ID.
func (m *Manager) Add(l *Loop) error {
	id := l.opts.ConversationID
	if id == "" {
		return fmt.Errorf("loop with empty conversation id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.loops[id]; exists {
		return fmt.Errorf("conversation already managed: %s", id)
	}

	// Escalation path for crash policy "stop": drop the dead loop so the
	// host can observe the conversation disappearing.
	prev := l.opts.OnTerminate
	l.opts.OnTerminate = func(conversationID string, err error) {
		if prev != nil {
			prev(conversationID, err)
		}
		slog.Error("conversation escalated to supervisor",
			"conversation", conversationID, "error", err)
		m.Remove(conversationID)
	}

	m.loops[id] = l
	return nil
}

// Get returns the loop for a conversation.
func (m *Manager) Get(conversationID string) (*Loop, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loops[conversationID]
	return l, ok
}

// Remove stops and forgets a conversation's loop.
func (m *Manager) Remove(conversationID string) {
	m.mu.Lock()
	l, ok := m.loops[conversationID]
	delete(m.loops, conversationID)
	m.mu.Unlock()

	if ok {
		l.Stop()
	}
}

// List returns managed conversation IDs, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.loops))
	for id := range m.loops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StartAll starts every managed loop (idempotent per loop).
func (m *Manager) StartAll() {
	for _, l := range m.snapshot() {
		l.Start()
	}
}

// StopAll flags every loop to stop and waits for them to exit.
func (m *Manager) StopAll() {
	loops := m.snapshot()
	for _, l := range loops {
		l.Stop()
	}
	for _, l := range loops {
		l.Wait()
	}
	slog.Info("all loops stopped", "count", len(loops))
}

// Abort signals the abort condition to one conversation's in-flight
// cycle. Unknown conversations are a no-op; returns whether the loop
// was found.
func (m *Manager) Abort(conversationID string) bool {
	l, ok := m.Get(conversationID)
	if ok {
		l.Abort()
	}
	return ok
}

// Info is lightweight per-conversation status.
type Info struct {
	ConversationID string `json:"conversation_id"`
	Running        bool   `json:"running"`
	Cycles         int    `json:"cycles"`
}

// ListInfo returns status for all managed loops.
func (m *Manager) ListInfo() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, 0, len(m.loops))
	for id, l := range m.loops {
		infos = append(infos, Info{
			ConversationID: id,
			Running:        l.IsRunning(),
			Cycles:         len(l.history.Snapshot()),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConversationID < infos[j].ConversationID
	})
	return infos
}

func (m *Manager) snapshot() []*Loop {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Loop, 0, len(m.loops))
	for _, l := range m.loops {
		out = append(out, l)
	}
	return out
}
