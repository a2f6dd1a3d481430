package state

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/bb84server/quantum"
)

// round describes the choices of one protocol pass. A nil eveFlip means Eve skips.
type round struct {
	aliceBit  quantum.Bit
	aliceFlip bool
	eveFlip   *bool
	bobFlip   bool
}

func boolPtr(b bool) *bool { return &b }

func newTestMachine(seed int64) *Machine {
	return NewMachine(rand.New(rand.NewSource(seed)))
}

func applied(t *testing.T, m *Machine, intent Intent) {
	t.Helper()
	out, err := m.Apply(intent)
	require.NoError(t, err)
	require.Equal(t, Applied, out, "intent %s in phase %s", intent, m.State().Phase)
	assertInvariants(t, m.State())
}

func assertInvariants(t *testing.T, s RoundState) {
	t.Helper()
	assert.Equal(t, s.Phase.HasQubit(), s.Qubit != nil, "qubit presence in %s", s.Phase)
	assert.GreaterOrEqual(t, s.Round, 1)
}

// play runs one round to completion and returns Bob's measurement.
func play(t *testing.T, m *Machine, r round) quantum.Bit {
	t.Helper()
	_, err := m.SetAliceBit(r.aliceBit)
	require.NoError(t, err)
	_, err = m.SetBasisFlip(RoleAlice, r.aliceFlip)
	require.NoError(t, err)
	_, err = m.SetBasisFlip(RoleBob, r.bobFlip)
	require.NoError(t, err)

	applied(t, m, IntentSendQubit)
	if r.eveFlip == nil {
		applied(t, m, IntentEveSkip)
	} else {
		_, err = m.SetBasisFlip(RoleEve, *r.eveFlip)
		require.NoError(t, err)
		applied(t, m, IntentEveMeasure)
	}
	applied(t, m, IntentBobMeasure)

	s := m.State()
	require.Equal(t, PhaseComplete, s.Phase)
	measured := s.Players.Slot(RoleBob).Measured
	require.NotNil(t, measured)
	return *measured
}

func TestMachine_InitialState(t *testing.T) {
	m := newTestMachine(1)
	s := m.State()
	assert.Equal(t, PhaseAlicePrepare, s.Phase)
	assert.Equal(t, 1, s.Round)
	assert.Nil(t, s.Qubit)
	assertInvariants(t, s)
}

func TestMachine_SendQubitPreparesFromAliceSlot(t *testing.T) {
	m := newTestMachine(1)
	_, err := m.SetAliceBit(quantum.One)
	require.NoError(t, err)
	_, err = m.SetBasisFlip(RoleAlice, true)
	require.NoError(t, err)

	applied(t, m, IntentSendQubit)

	s := m.State()
	assert.Equal(t, PhaseEveIntercept, s.Phase)
	require.NotNil(t, s.Qubit)
	assert.Equal(t, quantum.Qubit{Value: quantum.One, Basis: quantum.Diagonal}, *s.Qubit)
}

func TestMachine_EveSkipForwardsUnchanged(t *testing.T) {
	m := newTestMachine(1)
	applied(t, m, IntentSendQubit)
	before := *m.State().Qubit

	applied(t, m, IntentEveSkip)
	assert.Equal(t, before, *m.State().Qubit)
	assert.Nil(t, m.State().Players.Slot(RoleEve).Measured)
}

func TestMachine_NoEavesdropMatchingBases(t *testing.T) {
	m := newTestMachine(7)
	got := play(t, m, round{aliceBit: quantum.One, aliceFlip: false, bobFlip: false})
	assert.Equal(t, quantum.One, got)
}

func TestMachine_InterceptResendUndetectableWhenBasesAlign(t *testing.T) {
	m := newTestMachine(7)
	got := play(t, m, round{aliceBit: quantum.Zero, eveFlip: boolPtr(false)})
	assert.Equal(t, quantum.Zero, got)

	eve := m.State().Players.Slot(RoleEve)
	require.NotNil(t, eve.Measured)
	assert.Equal(t, quantum.Zero, *eve.Measured)
}

func TestMachine_EveBasisAppliedBothWays(t *testing.T) {
	// All three in the diagonal basis: Eve reads Alice's bit exactly and her
	// re-prepared qubit is diagonal again, so Bob recovers the bit too.
	for seed := int64(0); seed < 20; seed++ {
		m := newTestMachine(seed)
		_, err := m.SetAliceBit(quantum.One)
		require.NoError(t, err)
		_, err = m.SetBasisFlip(RoleAlice, true)
		require.NoError(t, err)
		applied(t, m, IntentSendQubit)

		_, err = m.SetBasisFlip(RoleEve, true)
		require.NoError(t, err)
		applied(t, m, IntentEveMeasure)

		s := m.State()
		assert.Equal(t, quantum.One, *s.Players.Slot(RoleEve).Measured)
		assert.Equal(t, quantum.Qubit{Value: quantum.One, Basis: quantum.Diagonal}, *s.Qubit)

		_, err = m.SetBasisFlip(RoleBob, true)
		require.NoError(t, err)
		applied(t, m, IntentBobMeasure)
		assert.Equal(t, quantum.One, *m.State().Players.Slot(RoleBob).Measured)
	}
}

func TestMachine_BasisMismatchIsUncorrelated(t *testing.T) {
	const rounds = 2000
	m := newTestMachine(99)
	agree := 0
	for i := 0; i < rounds; i++ {
		bit := quantum.Bit(i % 2)
		if play(t, m, round{aliceBit: bit, aliceFlip: false, bobFlip: true}) == bit {
			agree++
		}
		applied(t, m, IntentNextRound)
	}
	assert.InDelta(t, 0.5, float64(agree)/rounds, 0.05)
}

func TestMachine_MismatchedEveDisturbsBob(t *testing.T) {
	const rounds = 2000
	m := newTestMachine(3)
	errors := 0
	for i := 0; i < rounds; i++ {
		if play(t, m, round{aliceBit: quantum.One, eveFlip: boolPtr(true)}) != quantum.One {
			errors++
		}
		applied(t, m, IntentResetGame)
	}
	assert.InDelta(t, 0.5, float64(errors)/rounds, 0.05)
}

func TestMachine_PhaseMismatchIsIgnored(t *testing.T) {
	m := newTestMachine(1)
	before := m.State()

	for _, intent := range []Intent{IntentEveSkip, IntentEveMeasure, IntentBobMeasure} {
		out, err := m.Apply(intent)
		require.NoError(t, err)
		assert.Equal(t, Ignored, out, intent.String())
	}
	assert.Equal(t, before, m.State())

	applied(t, m, IntentSendQubit)
	out, err := m.Apply(IntentSendQubit)
	require.NoError(t, err)
	assert.Equal(t, Ignored, out)
}

func TestMachine_NextRoundClearsAndIncrements(t *testing.T) {
	m := newTestMachine(1)
	require.NoError(t, m.Join(RoleAlice))
	play(t, m, round{aliceBit: quantum.One, aliceFlip: true, eveFlip: boolPtr(true), bobFlip: true})

	before := m.State().Round
	applied(t, m, IntentNextRound)

	s := m.State()
	assert.Equal(t, PhaseAlicePrepare, s.Phase)
	assert.Nil(t, s.Qubit)
	assert.Equal(t, before+1, s.Round)
	assert.True(t, s.Players.Slot(RoleAlice).Connected)
	for _, r := range PlayerRoles {
		slot := s.Players.Slot(r)
		assert.False(t, slot.BasisFlip, r.String())
		assert.Nil(t, slot.Measured, r.String())
	}
	assert.Equal(t, quantum.Zero, s.Players.Slot(RoleAlice).Bit)
}

func TestMachine_NextRoundFromMidRound(t *testing.T) {
	m := newTestMachine(1)
	applied(t, m, IntentSendQubit)
	applied(t, m, IntentNextRound)
	assert.Equal(t, 2, m.State().Round)
	assert.Nil(t, m.State().Qubit)
}

func TestMachine_ResetKeepsRoundAndConnections(t *testing.T) {
	m := newTestMachine(1)
	require.NoError(t, m.Join(RoleBob))
	require.NoError(t, m.Join(RoleEve))
	applied(t, m, IntentNextRound)
	applied(t, m, IntentSendQubit)
	applied(t, m, IntentEveSkip)

	applied(t, m, IntentResetGame)

	s := m.State()
	assert.Equal(t, PhaseAlicePrepare, s.Phase)
	assert.Nil(t, s.Qubit)
	assert.Equal(t, 2, s.Round)
	assert.True(t, s.Players.Slot(RoleBob).Connected)
	assert.True(t, s.Players.Slot(RoleEve).Connected)
	assert.False(t, s.Players.Slot(RoleAlice).Connected)
}

func TestMachine_UpdatesArePhaseGated(t *testing.T) {
	m := newTestMachine(1)
	applied(t, m, IntentSendQubit)

	out, err := m.SetAliceBit(quantum.One)
	require.NoError(t, err)
	assert.Equal(t, Ignored, out)
	assert.Equal(t, quantum.Zero, m.State().Players.Slot(RoleAlice).Bit)

	out, err = m.SetBasisFlip(RoleEve, true)
	require.NoError(t, err)
	assert.Equal(t, Applied, out)

	applied(t, m, IntentEveSkip)
	out, err = m.SetBasisFlip(RoleEve, false)
	require.NoError(t, err)
	assert.Equal(t, Ignored, out)

	out, err = m.SetBasisFlip(RoleBob, true)
	require.NoError(t, err)
	assert.Equal(t, Applied, out)

	_, err = m.UpdateSlot(RoleBob, SlotUpdate{Bit: new(quantum.Bit)})
	assert.ErrorIs(t, err, ErrInvalidUpdate)
	_, err = m.SetBasisFlip(RoleAdmin, true)
	assert.ErrorIs(t, err, ErrInvalidUpdate)
}

func TestMachine_JoinAndLeave(t *testing.T) {
	m := newTestMachine(1)
	require.NoError(t, m.Join(RoleAlice))
	assert.ErrorIs(t, m.Join(RoleAlice), ErrRoleAlreadyConnected)
	assert.NoError(t, m.Join(RoleAdmin))

	assert.Equal(t, Applied, m.Leave(RoleAlice))
	assert.Equal(t, Ignored, m.Leave(RoleAdmin))
	assert.NoError(t, m.Join(RoleAlice))
}

func TestSnapshot_JSON(t *testing.T) {
	m := newTestMachine(1)
	require.NoError(t, m.Join(RoleAlice))
	_, err := m.SetAliceBit(quantum.One)
	require.NoError(t, err)
	applied(t, m, IntentSendQubit)

	data, err := json.Marshal(m.Snapshot())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"phase": "eve_intercept",
		"round": 1,
		"qubit": {"value": 1, "basis": "rectilinear", "symbol": "|1⟩"},
		"players": {
			"alice": {"connected": true, "basis_flip": false, "bit": 1},
			"eve": {"connected": false, "basis_flip": false, "measured_value": null},
			"bob": {"connected": false, "basis_flip": false, "measured_value": null}
		}
	}`, string(data))
}
