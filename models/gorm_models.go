// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/wfunc/bb84server/quantum"
)

// GormRoundRecord is the table row for a RoundRecord.
type GormRoundRecord struct {
	gorm.Model
	Round       int    `gorm:"index;not null"`
	AliceBit    uint8  `gorm:"not null"`
	AliceBasis  string `gorm:"size:16;not null"`
	Intercepted bool   `gorm:"default:false"`
	EveBasis    string `gorm:"size:16"`
	EveValue    *uint8
	BobBasis    string    `gorm:"size:16;not null"`
	BobValue    uint8     `gorm:"not null"`
	CompletedAt time.Time `gorm:"index;not null"`
}

// GormRoundRecordsTable is the gorm archive's table. It differs from
// RoundRecordsTable because gorm.Model adds its own timestamp columns.
const GormRoundRecordsTable = "gorm_round_records"

func (GormRoundRecord) TableName() string {
	return GormRoundRecordsTable
}

// NewGormRoundRecord converts a record into its row form.
func NewGormRoundRecord(r RoundRecord) GormRoundRecord {
	row := GormRoundRecord{
		Round:       r.Round,
		AliceBit:    uint8(r.AliceBit),
		AliceBasis:  r.AliceBasis.String(),
		Intercepted: r.Intercepted,
		EveBasis:    r.EveBasis.String(),
		BobBasis:    r.BobBasis.String(),
		BobValue:    uint8(r.BobValue),
		CompletedAt: r.CompletedAt,
	}
	if r.EveValue != nil {
		v := uint8(*r.EveValue)
		row.EveValue = &v
	}
	return row
}

// Record converts the row back. Unknown basis names decode as an error.
func (g GormRoundRecord) Record() (RoundRecord, error) {
	r := RoundRecord{
		Round:       g.Round,
		AliceBit:    quantum.Bit(g.AliceBit),
		Intercepted: g.Intercepted,
		BobValue:    quantum.Bit(g.BobValue),
		CompletedAt: g.CompletedAt,
	}
	if err := r.AliceBasis.UnmarshalText([]byte(g.AliceBasis)); err != nil {
		return RoundRecord{}, err
	}
	if err := r.BobBasis.UnmarshalText([]byte(g.BobBasis)); err != nil {
		return RoundRecord{}, err
	}
	if g.EveBasis != "" {
		if err := r.EveBasis.UnmarshalText([]byte(g.EveBasis)); err != nil {
			return RoundRecord{}, err
		}
	}
	if g.EveValue != nil {
		v := quantum.Bit(*g.EveValue)
		r.EveValue = &v
	}
	return r, nil
}
