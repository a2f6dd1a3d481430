package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/bb84server/models"
	"github.com/wfunc/bb84server/persistence"
	"github.com/wfunc/bb84server/quantum"
)

func record(round int, aliceBit quantum.Bit, aliceBasis, bobBasis quantum.Basis, bobValue quantum.Bit, intercepted bool) models.RoundRecord {
	return models.RoundRecord{
		Round:       round,
		AliceBit:    aliceBit,
		AliceBasis:  aliceBasis,
		BobBasis:    bobBasis,
		BobValue:    bobValue,
		Intercepted: intercepted,
	}
}

func TestSummarize(t *testing.T) {
	records := []models.RoundRecord{
		record(1, quantum.One, quantum.Rectilinear, quantum.Rectilinear, quantum.One, false),
		record(2, quantum.Zero, quantum.Rectilinear, quantum.Diagonal, quantum.One, false),
		record(3, quantum.Zero, quantum.Diagonal, quantum.Diagonal, quantum.One, true),
		record(4, quantum.Zero, quantum.Diagonal, quantum.Diagonal, quantum.Zero, true),
	}

	s := Summarize(records)
	assert.Equal(t, 4, s.Rounds)
	assert.Equal(t, 3, s.Sifted)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, 2, s.Intercepted)
	assert.InDelta(t, 1.0/3.0, s.QBER, 1e-9)
	assert.Equal(t, "110", s.SiftedKey)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Rounds)
	assert.Zero(t, s.QBER)
	assert.Empty(t, s.SiftedKey)
}

func TestHistoryService_Summary(t *testing.T) {
	ctx := context.Background()
	archive := persistence.NewMemory(0)
	for i := 1; i <= 4; i++ {
		require.NoError(t, archive.SaveRound(ctx, record(i, quantum.One, quantum.Rectilinear, quantum.Rectilinear, quantum.One, false)))
	}

	svc := NewHistoryService(archive)
	s, err := svc.Summary(ctx, 2, true)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Rounds)
	assert.Equal(t, "11", s.SiftedKey)
	require.Len(t, s.Records, 2)
	assert.Equal(t, 3, s.Records[0].Round)

	s, err = svc.Summary(ctx, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Rounds)
	assert.Nil(t, s.Records)
}
