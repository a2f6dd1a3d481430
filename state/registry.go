package state

import (
	"errors"
	"fmt"

	"github.com/wfunc/bb84server/quantum"
)

var (
	// ErrRoleAlreadyConnected is returned when joining an occupied slot.
	ErrRoleAlreadyConnected = errors.New("role already connected")
	// ErrInvalidUpdate is returned for a slot update naming a field the role does not own.
	ErrInvalidUpdate = errors.New("invalid player update")
)

// PlayerSlot is the per-role scratch data of a round. Bit is only meaningful for
// Alice, Measured only for Eve and Bob.
type PlayerSlot struct {
	Connected bool
	BasisFlip bool
	Bit       quantum.Bit
	Measured  *quantum.Bit
}

// SlotUpdate carries the caller-supplied fields of an update. Nil fields are left alone.
type SlotUpdate struct {
	Bit       *quantum.Bit
	BasisFlip *bool
}

// Registry tracks the alice, eve and bob slots. It is a value type: copying a
// RoundState copies its registry. Measured pointers are replaced, never written through.
type Registry struct {
	slots [len(PlayerRoles)]PlayerSlot
}

// Join occupies the slot for role. Admin always succeeds and consumes nothing.
func (r *Registry) Join(role Role) error {
	if role == RoleAdmin {
		return nil
	}
	if !role.IsPlayer() {
		return ErrUnknownRole
	}
	if r.slots[role].Connected {
		return fmt.Errorf("%w: %s", ErrRoleAlreadyConnected, role)
	}
	r.slots[role].Connected = true
	return nil
}

// Leave frees the slot for role. It is a no-op for admin.
func (r *Registry) Leave(role Role) {
	if role.IsPlayer() {
		r.slots[role].Connected = false
	}
}

// UpdateSlot merges u into the slot for role regardless of phase.
func (r *Registry) UpdateSlot(role Role, u SlotUpdate) error {
	if !role.IsPlayer() {
		return fmt.Errorf("%w: %s has no slot", ErrInvalidUpdate, role)
	}
	if u.Bit != nil {
		if role != RoleAlice {
			return fmt.Errorf("%w: only alice chooses a bit", ErrInvalidUpdate)
		}
		if !u.Bit.Valid() {
			return quantum.ErrInvalidBit
		}
		r.slots[role].Bit = *u.Bit
	}
	if u.BasisFlip != nil {
		r.slots[role].BasisFlip = *u.BasisFlip
	}
	return nil
}

// Slot returns a copy of the slot for a player role.
func (r Registry) Slot(role Role) PlayerSlot {
	if !role.IsPlayer() {
		return PlayerSlot{}
	}
	return r.slots[role]
}

// ConnectedCount returns how many player slots are occupied.
func (r Registry) ConnectedCount() int {
	n := 0
	for _, s := range r.slots {
		if s.Connected {
			n++
		}
	}
	return n
}

func (r *Registry) setMeasured(role Role, b quantum.Bit) {
	r.slots[role].Measured = &b
}

// resetRound clears round-scoped fields and keeps connection flags.
func (r *Registry) resetRound() {
	for i := range r.slots {
		r.slots[i] = PlayerSlot{Connected: r.slots[i].Connected}
	}
}
