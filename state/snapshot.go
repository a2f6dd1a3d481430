package state

import "github.com/wfunc/bb84server/quantum"

// QubitView is the in-flight qubit as shown to subscribers.
type QubitView struct {
	Value  quantum.Bit   `json:"value"`
	Basis  quantum.Basis `json:"basis"`
	Symbol string        `json:"symbol"`
}

// SenderView is Alice's slot.
type SenderView struct {
	Connected bool        `json:"connected"`
	BasisFlip bool        `json:"basis_flip"`
	Bit       quantum.Bit `json:"bit"`
}

// MeasurerView is the slot of Eve or Bob. MeasuredValue is null until they measure.
type MeasurerView struct {
	Connected     bool         `json:"connected"`
	BasisFlip     bool         `json:"basis_flip"`
	MeasuredValue *quantum.Bit `json:"measured_value"`
}

type PlayersView struct {
	Alice SenderView   `json:"alice"`
	Eve   MeasurerView `json:"eve"`
	Bob   MeasurerView `json:"bob"`
}

// Snapshot is the full round state pushed to every subscriber after a mutation.
type Snapshot struct {
	Phase   Phase       `json:"phase"`
	Round   int         `json:"round"`
	Qubit   *QubitView  `json:"qubit"`
	Players PlayersView `json:"players"`
}

// Snapshot renders s for broadcast.
func (s RoundState) Snapshot() Snapshot {
	snap := Snapshot{
		Phase: s.Phase,
		Round: s.Round,
	}
	if s.Qubit != nil {
		snap.Qubit = &QubitView{
			Value:  s.Qubit.Value,
			Basis:  s.Qubit.Basis,
			Symbol: s.Qubit.Symbol(),
		}
	}

	alice := s.Players.Slot(RoleAlice)
	snap.Players.Alice = SenderView{Connected: alice.Connected, BasisFlip: alice.BasisFlip, Bit: alice.Bit}
	snap.Players.Eve = measurerView(s.Players.Slot(RoleEve))
	snap.Players.Bob = measurerView(s.Players.Slot(RoleBob))
	return snap
}

func measurerView(slot PlayerSlot) MeasurerView {
	v := MeasurerView{Connected: slot.Connected, BasisFlip: slot.BasisFlip}
	if slot.Measured != nil {
		m := *slot.Measured
		v.MeasuredValue = &m
	}
	return v
}
