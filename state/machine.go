package state

import (
	"fmt"

	"github.com/wfunc/bb84server/quantum"
)

// RoundState is the authoritative state of the current round. Qubit is non-nil
// exactly while the phase has a qubit in flight.
type RoundState struct {
	Phase   Phase
	Qubit   *quantum.Qubit
	Players Registry
	Round   int
}

// NewRoundState returns the state the process starts in.
func NewRoundState() RoundState {
	return RoundState{Phase: PhaseAlicePrepare, Round: 1}
}

// Machine applies intents to a RoundState. Every successful command replaces
// the current state with a new value derived from it. A Machine is not safe for
// concurrent use; room.Room serialises access to it.
type Machine struct {
	current RoundState
	src     quantum.Source
}

// NewMachine creates a machine at round 1 that draws measurement randomness from src.
func NewMachine(src quantum.Source) *Machine {
	return &Machine{current: NewRoundState(), src: src}
}

// State returns the current round state.
func (m *Machine) State() RoundState {
	return m.current
}

// Snapshot returns the broadcast view of the current state.
func (m *Machine) Snapshot() Snapshot {
	return m.current.Snapshot()
}

// Apply runs intent. A phase mismatch is not an error: it returns Ignored and
// leaves the state untouched.
func (m *Machine) Apply(intent Intent) (Outcome, error) {
	if !m.current.Phase.Accepts(intent) {
		return Ignored, nil
	}

	next := m.current
	var err error
	switch intent {
	case IntentSendQubit:
		err = m.sendQubit(&next)
	case IntentEveSkip:
		// The qubit passes through untouched.
	case IntentEveMeasure:
		err = m.eveMeasure(&next)
	case IntentBobMeasure:
		m.bobMeasure(&next)
	case IntentNextRound:
		next.Round++
		next.clearRound()
	case IntentResetGame:
		next.clearRound()
	default:
		return Ignored, fmt.Errorf("unhandled intent %s", intent)
	}
	if err != nil {
		return Ignored, err
	}

	next.Phase = intent.Target()
	m.current = next
	return Applied, nil
}

func (m *Machine) sendQubit(s *RoundState) error {
	alice := s.Players.Slot(RoleAlice)
	q, err := quantum.New(alice.Bit, quantum.Rectilinear)
	if err != nil {
		return fmt.Errorf("prepare qubit: %w", err)
	}
	if alice.BasisFlip {
		q = q.FlipBasis()
	}
	s.Qubit = &q
	return nil
}

// eveMeasure performs intercept-resend. Eve's basis is applied twice: once to
// read the qubit and again to the replacement she forwards to Bob.
func (m *Machine) eveMeasure(s *RoundState) error {
	eve := s.Players.Slot(RoleEve)
	q := *s.Qubit
	if eve.BasisFlip {
		q = q.FlipBasis()
	}
	result := q.Measure(m.src)
	s.Players.setMeasured(RoleEve, result)

	resent, err := quantum.New(result, quantum.Rectilinear)
	if err != nil {
		return fmt.Errorf("re-prepare qubit: %w", err)
	}
	if eve.BasisFlip {
		resent = resent.FlipBasis()
	}
	s.Qubit = &resent
	return nil
}

func (m *Machine) bobMeasure(s *RoundState) {
	bob := s.Players.Slot(RoleBob)
	q := *s.Qubit
	if bob.BasisFlip {
		q = q.FlipBasis()
	}
	s.Players.setMeasured(RoleBob, q.Measure(m.src))
	s.Qubit = nil
}

func (s *RoundState) clearRound() {
	s.Qubit = nil
	s.Players.resetRound()
}

// Join occupies role's slot.
func (m *Machine) Join(role Role) error {
	next := m.current
	if err := next.Players.Join(role); err != nil {
		return err
	}
	m.current = next
	return nil
}

// Leave frees role's slot. It reports Ignored for admin, which holds no slot.
func (m *Machine) Leave(role Role) Outcome {
	if !role.IsPlayer() {
		return Ignored
	}
	next := m.current
	next.Players.Leave(role)
	m.current = next
	return Applied
}

// SetAliceBit chooses the bit Alice will send.
func (m *Machine) SetAliceBit(bit quantum.Bit) (Outcome, error) {
	return m.UpdateSlot(RoleAlice, SlotUpdate{Bit: &bit})
}

// SetBasisFlip selects role's basis for the current round.
func (m *Machine) SetBasisFlip(role Role, flip bool) (Outcome, error) {
	return m.UpdateSlot(role, SlotUpdate{BasisFlip: &flip})
}

// UpdateSlot validates u against the current phase and merges it into role's
// slot. Each role may edit its choices until it has acted in the round; later
// edits are Ignored.
func (m *Machine) UpdateSlot(role Role, u SlotUpdate) (Outcome, error) {
	if !role.IsPlayer() {
		return Ignored, fmt.Errorf("%w: %s has no slot", ErrInvalidUpdate, role)
	}
	if u.Bit != nil && role != RoleAlice {
		return Ignored, fmt.Errorf("%w: only alice chooses a bit", ErrInvalidUpdate)
	}
	if !editable(role, m.current.Phase) {
		return Ignored, nil
	}
	next := m.current
	if err := next.Players.UpdateSlot(role, u); err != nil {
		return Ignored, err
	}
	m.current = next
	return Applied, nil
}

func editable(role Role, p Phase) bool {
	switch role {
	case RoleAlice:
		return p == PhaseAlicePrepare
	case RoleEve:
		return p <= PhaseEveIntercept
	case RoleBob:
		return p <= PhaseBobMeasure
	}
	return false
}
