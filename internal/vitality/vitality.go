// Package vitality owns the decaying HP resource and its life-phase buckets.
package vitality

import (
	"sync"

	"github.com/rs/zerolog"
)

// Phase is the discrete life state derived from the current HP level.
type Phase int

const (
	// Extinct means HP reached zero. Decay no longer applies; a credit
	// revives the machine.
	Extinct Phase = iota
	// Critical covers (0, criticalHP].
	Critical
	// Depleting covers (criticalHP, thrivingHP].
	Depleting
	// Thriving covers everything above thrivingHP.
	Thriving
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case Thriving:
		return "thriving"
	case Depleting:
		return "depleting"
	case Critical:
		return "critical"
	default:
		return "extinct"
	}
}

// Options fix the machine's constants for its lifetime.
type Options struct {
	MaxHP      int64
	InitialHP  int64
	ThrivingHP int64 // T1: above this is Thriving
	CriticalHP int64 // T2: at or below this (and above zero) is Critical
}

// Snapshot is a consistent read of the machine state.
type Snapshot struct {
	HP    int64
	MaxHP int64
	Phase Phase
}

// PhaseHook observes phase transitions. Called outside the machine lock with
// the state that produced the transition; fire-and-forget.
type PhaseHook func(old, new Phase, hp int64)

// SnapshotHook persists the state after every mutation. Best-effort.
type SnapshotHook func(Snapshot)

// Machine is the bounded decaying resource. HP drains by one per decay tick
// while the phase is not Extinct and rises only through ledger credits,
// clamped at MaxHP. A single mutex serializes the decay timer and credit
// path; unsynchronized read-modify-write on HP would lose updates.
type Machine struct {
	mu    sync.Mutex
	hp    int64
	max   int64
	t1    int64
	t2    int64
	phase Phase

	phaseHook    PhaseHook
	snapshotHook SnapshotHook
	logger       zerolog.Logger
}

// New constructs a Machine with the configured starting HP.
func New(opts Options, logger zerolog.Logger) *Machine {
	m := &Machine{
		hp:     clamp(opts.InitialHP, opts.MaxHP),
		max:    opts.MaxHP,
		t1:     opts.ThrivingHP,
		t2:     opts.CriticalHP,
		logger: logger.With().Str("component", "vitality").Logger(),
	}
	m.phase = m.phaseFor(m.hp)
	return m
}

// SetPhaseHook registers the phase-transition observer.
func (m *Machine) SetPhaseHook(hook PhaseHook) {
	m.phaseHook = hook
}

// SetSnapshotHook registers the persistence observer.
func (m *Machine) SetSnapshotHook(hook SnapshotHook) {
	m.snapshotHook = hook
}

// Restore overwrites the current state, clamped to the cap. Used once at
// startup to resume from a stored snapshot before any ticks run.
func (m *Machine) Restore(hp int64) {
	m.mu.Lock()
	m.hp = clamp(hp, m.max)
	m.phase = m.phaseFor(m.hp)
	m.mu.Unlock()
}

// Tick applies one decay step: hp = max(0, hp-1). A tick on an Extinct
// machine is a no-op.
func (m *Machine) Tick() Snapshot {
	m.mu.Lock()
	if m.phase == Extinct {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap
	}

	m.hp--
	if m.hp < 0 {
		m.hp = 0
	}
	old := m.phase
	m.phase = m.phaseFor(m.hp)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.afterMutation(old, snap)
	return snap
}

// Credit raises HP by amount, clamped at the cap, and recomputes the phase.
// A sufficiently large credit revives an Extinct machine in one step.
// Non-positive amounts are ignored.
func (m *Machine) Credit(amount int64) {
	if amount <= 0 {
		return
	}

	m.mu.Lock()
	m.hp += amount
	if m.hp > m.max {
		m.hp = m.max
	}
	old := m.phase
	m.phase = m.phaseFor(m.hp)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.afterMutation(old, snap)
}

// Snapshot returns a consistent view of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{HP: m.hp, MaxHP: m.max, Phase: m.phase}
}

// phaseFor is the pure bucket function: phase depends only on hp, never on
// how hp got there.
func (m *Machine) phaseFor(hp int64) Phase {
	switch {
	case hp <= 0:
		return Extinct
	case hp <= m.t2:
		return Critical
	case hp <= m.t1:
		return Depleting
	default:
		return Thriving
	}
}

func (m *Machine) afterMutation(old Phase, snap Snapshot) {
	if m.snapshotHook != nil {
		m.snapshotHook(snap)
	}
	if old != snap.Phase {
		m.logger.Info().Str("from", old.String()).Str("to", snap.Phase.String()).
			Int64("hp", snap.HP).Msg("phase changed")
		if m.phaseHook != nil {
			m.phaseHook(old, snap.Phase, snap.HP)
		}
	}
}

func clamp(hp, max int64) int64 {
	if hp < 0 {
		return 0
	}
	if hp > max {
		return max
	}
	return hp
}
