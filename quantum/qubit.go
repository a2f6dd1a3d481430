// Package quantum models a single BB84 qubit: one bit value encoded in one of two
// conjugate bases.
package quantum

import (
	"errors"
	"fmt"
)

// ErrInvalidBit is returned when a bit value outside {0,1} is supplied.
var ErrInvalidBit = errors.New("bit must be 0 or 1")

// ErrInvalidBasis is returned for an unrecognised basis name.
var ErrInvalidBasis = errors.New("unknown basis")

// Bit is a classical bit value.
type Bit uint8

const (
	Zero Bit = 0
	One  Bit = 1
)

// ParseBit converts an integer from the wire into a Bit.
func ParseBit(v int) (Bit, error) {
	switch v {
	case 0:
		return Zero, nil
	case 1:
		return One, nil
	}
	return 0, fmt.Errorf("%w: got %d", ErrInvalidBit, v)
}

// Valid reports whether b is 0 or 1.
func (b Bit) Valid() bool {
	return b <= One
}

// Basis is the preparation/measurement frame of a qubit.
type Basis uint8

const (
	Rectilinear Basis = iota
	Diagonal
)

func (b Basis) String() string {
	switch b {
	case Rectilinear:
		return "rectilinear"
	case Diagonal:
		return "diagonal"
	default:
		return "unknown"
	}
}

// Flip returns the conjugate basis.
func (b Basis) Flip() Basis {
	if b == Diagonal {
		return Rectilinear
	}
	return Diagonal
}

func (b Basis) MarshalText() ([]byte, error) {
	if b > Diagonal {
		return nil, ErrInvalidBasis
	}
	return []byte(b.String()), nil
}

func (b *Basis) UnmarshalText(text []byte) error {
	switch string(text) {
	case "rectilinear":
		*b = Rectilinear
	case "diagonal":
		*b = Diagonal
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBasis, text)
	}
	return nil
}

// BasisFor maps a player's basis flag onto the basis it selects.
func BasisFor(flip bool) Basis {
	if flip {
		return Diagonal
	}
	return Rectilinear
}

// Source is the randomness consumed by Measure. *math/rand.Rand satisfies it.
type Source interface {
	Intn(n int) int
}

// Qubit is an immutable value; FlipBasis and Measure never modify the receiver.
type Qubit struct {
	Value Bit   `json:"value"`
	Basis Basis `json:"basis"`
}

// New prepares a qubit carrying value in basis.
func New(value Bit, basis Basis) (Qubit, error) {
	if !value.Valid() {
		return Qubit{}, fmt.Errorf("%w: got %d", ErrInvalidBit, value)
	}
	if basis > Diagonal {
		return Qubit{}, ErrInvalidBasis
	}
	return Qubit{Value: value, Basis: basis}, nil
}

// FlipBasis toggles the basis and keeps the value.
func (q Qubit) FlipBasis() Qubit {
	q.Basis = q.Basis.Flip()
	return q
}

// Measure reads the qubit. In the rectilinear basis the stored value comes back
// unchanged; in the diagonal basis the result is a fair coin independent of it.
func (q Qubit) Measure(src Source) Bit {
	if q.Basis == Diagonal {
		return Bit(src.Intn(2))
	}
	return q.Value
}

// Symbol renders the qubit for display.
func (q Qubit) Symbol() string {
	switch {
	case q.Basis == Rectilinear && q.Value == Zero:
		return "|0⟩"
	case q.Basis == Rectilinear:
		return "|1⟩"
	case q.Value == Zero:
		return "|0x⟩"
	default:
		return "|1x⟩"
	}
}

func (q Qubit) String() string {
	return q.Symbol()
}
