// Package engagement tracks how invested the agent is in a conversation.
// A bounded energy scalar plus a NORMAL/FOCUS mode bias the orchestration
// loop: FOCUS cycles act more readily, NORMAL cycles hang back. The
// numeric constants are empirically tuned, so every one of them is
// configuration, not code.
package engagement

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Mode is the conversation attention mode. Exactly one mode is active
// per conversation at any time.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeFocus  Mode = "focus"
)

// Config holds the tunables for one conversation's engagement model.
type Config struct {
	// EnergyCeiling clamps energy from above. Energy is clamped to
	// [0, EnergyCeiling] after every update.
	EnergyCeiling float64

	// FocusEnterEnergy is the upper bound whose crossing makes the model
	// consider NORMAL→FOCUS.
	FocusEnterEnergy float64

	// TrafficThreshold is the unread-message volume that makes the model
	// consider NORMAL→FOCUS, scaled by FocusFactor.
	TrafficThreshold int

	// FocusFactor scales a conversation's eagerness to focus. Higher
	// factor = harder to enter focus and slower energy growth.
	FocusFactor float64

	// Priority marks the conversation as always-important. Orthogonal
	// configuration, not a mode: it halves the effective traffic
	// threshold but never forces a transition.
	Priority bool

	// DecayPerCycle is energy lost on a FOCUS cycle that produced no
	// actionable decision.
	DecayPerCycle float64

	// PassiveDecayPerMinute is energy lost to elapsed wall time.
	PassiveDecayPerMinute float64

	// GrowthPerReply is energy gained after a NORMAL cycle that replied,
	// scaled inversely by FocusFactor.
	GrowthPerReply float64

	// SigmoidSlope and SigmoidMidpoint shape the probability transform
	// applied to recent interest before a NORMAL→FOCUS switch. The
	// sigmoid biases rather than forces the transition, which keeps the
	// mode from thrashing on bursty traffic.
	SigmoidSlope    float64
	SigmoidMidpoint float64
}

// DefaultConfig mirrors the empirically tuned defaults.
func DefaultConfig() Config {
	return Config{
		EnergyCeiling:         100,
		FocusEnterEnergy:      80,
		TrafficThreshold:      12,
		FocusFactor:           1.0,
		DecayPerCycle:         3,
		PassiveDecayPerMinute: 1,
		GrowthPerReply:        8,
		SigmoidSlope:          1.5,
		SigmoidMidpoint:       0.6,
	}
}

// State is the externally visible engagement snapshot.
type State struct {
	Energy           float64
	Mode             Mode
	NoDecisionStreak int
}

// CycleOutcome summarizes what the finished cycle did, for the energy
// update.
type CycleOutcome struct {
	Replied bool // a reply decision executed successfully
	Decided bool // any decision other than no_reply was produced
}

// Model is one conversation's engagement state machine. All methods are
// safe for concurrent use, though the loop only calls them between
// cycles.
type Model struct {
	mu    sync.Mutex
	cfg   Config
	state State

	lastUpdate time.Time
	randFloat  func() float64
}

// NewModel creates a model in NORMAL mode with zero energy.
func NewModel(cfg Config) *Model {
	if cfg.EnergyCeiling <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.FocusFactor <= 0 {
		cfg.FocusFactor = 1.0
	}
	return &Model{
		cfg:        cfg,
		state:      State{Mode: ModeNormal},
		lastUpdate: time.Now(),
		randFloat:  rand.Float64,
	}
}

// SetRand overrides the uniform source (tests).
func (m *Model) SetRand(f func() float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.randFloat = f
}

// Snapshot returns the current state.
func (m *Model) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ObserveTraffic considers a NORMAL→FOCUS switch given the unread volume
// and a normalized recent-interest score in [0,1]. The switch fires only
// when a threshold is crossed AND a sigmoid-transformed draw agrees.
func (m *Model) ObserveTraffic(unread int, interest float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Mode != ModeNormal {
		return
	}

	threshold := float64(m.cfg.TrafficThreshold) * m.cfg.FocusFactor
	if m.cfg.Priority {
		threshold /= 2
	}

	crossed := float64(unread) > threshold || m.state.Energy >= m.cfg.FocusEnterEnergy
	if !crossed {
		return
	}

	p := sigmoid(interest, m.cfg.SigmoidSlope, m.cfg.SigmoidMidpoint)
	if m.state.Energy >= m.cfg.FocusEnterEnergy {
		// Energy crossings switch regardless of interest.
		p = 1
	}
	if m.randFloat() < p {
		m.state.Mode = ModeFocus
		m.state.NoDecisionStreak = 0
		slog.Info("engagement mode switch", "to", ModeFocus,
			"unread", unread, "energy", m.state.Energy, "p", p)
	}
}

// AfterCycle applies the post-cycle energy update and the FOCUS→NORMAL
// transition. FOCUS leaves exactly when energy reaches zero.
func (m *Model) AfterCycle(out CycleOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if out.Decided {
		m.state.NoDecisionStreak = 0
	} else {
		m.state.NoDecisionStreak++
	}

	switch m.state.Mode {
	case ModeFocus:
		if !out.Decided {
			m.state.Energy -= m.cfg.DecayPerCycle * m.cfg.FocusFactor
		}
	case ModeNormal:
		if out.Replied {
			m.state.Energy += m.cfg.GrowthPerReply / m.cfg.FocusFactor
		}
	}
	m.clampLocked()

	if m.state.Mode == ModeFocus && m.state.Energy <= 0 {
		m.state.Mode = ModeNormal
		slog.Info("engagement mode switch", "to", ModeNormal, "reason", "energy exhausted")
	}
}

// DecayTick applies passive time decay. Called by the loop's periodic
// decay driver.
func (m *Model) DecayTick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := now.Sub(m.lastUpdate)
	m.lastUpdate = now
	if elapsed <= 0 {
		return
	}

	m.state.Energy -= m.cfg.PassiveDecayPerMinute * elapsed.Minutes()
	m.clampLocked()

	if m.state.Mode == ModeFocus && m.state.Energy <= 0 {
		m.state.Mode = ModeNormal
		slog.Info("engagement mode switch", "to", ModeNormal, "reason", "passive decay")
	}
}

// AddEnergy nudges energy directly (host hooks, tests). Clamped.
func (m *Model) AddEnergy(delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Energy += delta
	m.clampLocked()
}

func (m *Model) clampLocked() {
	if m.state.Energy < 0 {
		m.state.Energy = 0
	}
	if m.state.Energy > m.cfg.EnergyCeiling {
		m.state.Energy = m.cfg.EnergyCeiling
	}
}

// sigmoid maps x through a logistic curve with the given slope and
// midpoint, yielding a probability in (0,1).
func sigmoid(x, slope, midpoint float64) float64 {
	return 1 / (1 + math.Exp(-slope*(x-midpoint)*6))
}
