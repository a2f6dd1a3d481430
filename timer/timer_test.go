package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerManager_FiresOnce(t *testing.T) {
	m := NewTimerManager(5 * time.Millisecond)
	defer m.Stop()

	var fired atomic.Int32
	m.AddTimer(10*time.Millisecond, 0, func() { fired.Add(1) })

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, 0, m.Pending())
}

func TestTimerManager_RemoveTimerCancels(t *testing.T) {
	m := NewTimerManager(5 * time.Millisecond)
	defer m.Stop()

	var fired atomic.Int32
	id := m.AddTimer(40*time.Millisecond, 0, func() { fired.Add(1) })

	assert.True(t, m.RemoveTimer(id))
	assert.False(t, m.RemoveTimer(id))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestTimerManager_RemoveAfterFireReportsFalse(t *testing.T) {
	m := NewTimerManager(5 * time.Millisecond)
	defer m.Stop()

	done := make(chan struct{})
	id := m.AddTimer(time.Millisecond, 0, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	assert.False(t, m.RemoveTimer(id))
}

func TestTimerManager_Interval(t *testing.T) {
	m := NewTimerManager(5 * time.Millisecond)
	defer m.Stop()

	var fired atomic.Int32
	id := m.AddTimer(time.Millisecond, 10*time.Millisecond, func() { fired.Add(1) })

	assert.Eventually(t, func() bool { return fired.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, m.RemoveTimer(id))
}

func TestTimerManager_IdsAreUnique(t *testing.T) {
	m := NewTimerManager(0)
	defer m.Stop()

	a := m.AddTimer(time.Hour, 0, func() {})
	b := m.AddTimer(time.Hour, 0, func() {})
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, m.Pending())
}
