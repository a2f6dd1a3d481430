// models/models.go
package models

import (
	"time"

	"github.com/wfunc/bb84server/quantum"
)

// RoundRecordsTable is the table written by the database/sql archive.
const RoundRecordsTable = "round_records"

// RoundRecord is the archived outcome of one round that reached completion.
type RoundRecord struct {
	Round       int           `json:"round"`
	AliceBit    quantum.Bit   `json:"alice_bit"`
	AliceBasis  quantum.Basis `json:"alice_basis"`
	Intercepted bool          `json:"intercepted"`
	EveBasis    quantum.Basis `json:"eve_basis"`
	EveValue    *quantum.Bit  `json:"eve_value"`
	BobBasis    quantum.Basis `json:"bob_basis"`
	BobValue    quantum.Bit   `json:"bob_value"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Sifted reports whether Alice and Bob used the same basis, so the bit survives sifting.
func (r RoundRecord) Sifted() bool {
	return r.AliceBasis == r.BobBasis
}

// Mismatch reports a sifted round where Bob read a different bit than Alice sent.
func (r RoundRecord) Mismatch() bool {
	return r.Sifted() && r.AliceBit != r.BobValue
}

// Summary aggregates archived rounds.
type Summary struct {
	Rounds      int           `json:"rounds"`
	Sifted      int           `json:"sifted"`
	Errors      int           `json:"errors"`
	QBER        float64       `json:"qber"`
	Intercepted int           `json:"intercepted"`
	SiftedKey   string        `json:"sifted_key"`
	Records     []RoundRecord `json:"records,omitempty"`
}
