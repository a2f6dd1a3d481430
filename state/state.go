package state

import (
	"errors"
	"fmt"
)

// ErrUnknownPhase is returned when decoding an unrecognised phase name.
var ErrUnknownPhase = errors.New("unknown phase")

// Phase is the step of the round currently open.
type Phase uint8

const (
	PhaseAlicePrepare Phase = iota
	PhaseEveIntercept
	PhaseBobMeasure
	PhaseComplete
)

var phaseNames = [...]string{"alice_prepare", "eve_intercept", "bob_measure", "complete"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) {
	if int(p) >= len(phaseNames) {
		return nil, ErrUnknownPhase
	}
	return []byte(phaseNames[p]), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for i, n := range phaseNames {
		if n == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownPhase, text)
}

// HasQubit reports whether a qubit is in flight during p.
func (p Phase) HasQubit() bool {
	return p == PhaseEveIntercept || p == PhaseBobMeasure
}

// Intent is a named request to advance the round.
type Intent uint8

const (
	IntentSendQubit Intent = iota
	IntentEveSkip
	IntentEveMeasure
	IntentBobMeasure
	IntentNextRound
	IntentResetGame
)

var intentNames = [...]string{"sendQubit", "eveSkip", "eveMeasure", "bobMeasure", "nextRound", "resetGame"}

func (i Intent) String() string {
	if int(i) < len(intentNames) {
		return intentNames[i]
	}
	return "unknown"
}

// transition is one row of the round transition table. anyPhase rows accept
// every phase as their source.
type transition struct {
	from     Phase
	anyPhase bool
	to       Phase
	actor    Role
}

var transitions = map[Intent]transition{
	IntentSendQubit:  {from: PhaseAlicePrepare, to: PhaseEveIntercept, actor: RoleAlice},
	IntentEveSkip:    {from: PhaseEveIntercept, to: PhaseBobMeasure, actor: RoleEve},
	IntentEveMeasure: {from: PhaseEveIntercept, to: PhaseBobMeasure, actor: RoleEve},
	IntentBobMeasure: {from: PhaseBobMeasure, to: PhaseComplete, actor: RoleBob},
	IntentNextRound:  {anyPhase: true, to: PhaseAlicePrepare, actor: RoleAdmin},
	IntentResetGame:  {anyPhase: true, to: PhaseAlicePrepare, actor: RoleAdmin},
}

// Accepts reports whether intent is legal while the round is in p.
func (p Phase) Accepts(intent Intent) bool {
	t, ok := transitions[intent]
	if !ok {
		return false
	}
	return t.anyPhase || t.from == p
}

// Target is the phase the round lands in after intent is applied.
func (i Intent) Target() Phase {
	return transitions[i].to
}

// Actor is the role allowed to issue i.
func (i Intent) Actor() Role {
	return transitions[i].actor
}

// Outcome tells the caller whether a command changed the round.
type Outcome uint8

const (
	// Applied means the state changed and a new snapshot must be broadcast.
	Applied Outcome = iota
	// Ignored means the command did not match the phase and nothing changed.
	Ignored
)

func (o Outcome) String() string {
	if o == Applied {
		return "applied"
	}
	return "ignored"
}
