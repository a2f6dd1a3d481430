package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/bb84server/config"
	"github.com/wfunc/bb84server/models"
)

func TestMemory_SaveAndList(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	for i := 1; i <= 5; i++ {
		require.NoError(t, m.SaveRound(ctx, models.RoundRecord{Round: i}))
	}

	all, err := m.ListRounds(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, 1, all[0].Round)

	last, err := m.ListRounds(ctx, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, 4, last[0].Round)
	assert.Equal(t, 5, last[1].Round)

	// The returned slice is a copy.
	last[0].Round = 100
	again, _ := m.ListRounds(ctx, 2)
	assert.Equal(t, 4, again[0].Round)
}

func TestMemory_Capacity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(3)
	for i := 1; i <= 10; i++ {
		require.NoError(t, m.SaveRound(ctx, models.RoundRecord{Round: i}))
	}
	all, err := m.ListRounds(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 8, all[0].Round)
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory(0)
	assert.ErrorIs(t, m.SaveRound(ctx, models.RoundRecord{}), context.Canceled)
}

func TestOpen(t *testing.T) {
	a, err := Open(config.ArchiveConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, a)
	assert.NoError(t, a.Close())

	_, err = Open(config.ArchiveConfig{Driver: "mongo"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
