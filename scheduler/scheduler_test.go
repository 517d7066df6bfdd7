package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newScheduler(t *testing.T) *Scheduler {
	s := New(zap.NewNop())
	t.Cleanup(s.Stop)
	return s
}

func TestAddTicker_Fires(t *testing.T) {
	s := newScheduler(t)

	var count int32
	s.AddTicker("tick", 20*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	})

	time.Sleep(120 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(3))
}

func TestAddTicker_Replaces(t *testing.T) {
	s := newScheduler(t)

	var count1, count2 int32
	s.AddTicker("task", 20*time.Millisecond, func() { atomic.AddInt32(&count1, 1) })
	time.Sleep(30 * time.Millisecond)
	s.AddTicker("task", 20*time.Millisecond, func() { atomic.AddInt32(&count2, 1) })
	time.Sleep(80 * time.Millisecond)

	snap1 := atomic.LoadInt32(&count1)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, snap1, atomic.LoadInt32(&count1), "old ticker must stop after replacement")
	assert.Positive(t, atomic.LoadInt32(&count2))
}

func TestAddDelay_FiresOnce(t *testing.T) {
	s := newScheduler(t)

	var count int32
	s.AddDelay("once", 30*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	})

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestAddDelay_ReplacesCancelsOld(t *testing.T) {
	s := newScheduler(t)

	var count int32
	s.AddDelay("d", 500*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	s.AddDelay("d", 30*time.Millisecond, func() { atomic.AddInt32(&count, 10) })
	time.Sleep(100 * time.Millisecond)

	// Only the replacement fired.
	assert.Equal(t, int32(10), atomic.LoadInt32(&count))
}

func TestRemove(t *testing.T) {
	s := newScheduler(t)

	var ticks, delays int32
	s.AddTicker("sweep", 20*time.Millisecond, func() { atomic.AddInt32(&ticks, 1) })
	s.AddDelay("d", 100*time.Millisecond, func() { atomic.AddInt32(&delays, 1) })

	time.Sleep(50 * time.Millisecond)
	s.Remove("sweep")
	s.Remove("d")
	s.Remove("nope") // unknown name is a no-op

	snap := atomic.LoadInt32(&ticks)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, snap, atomic.LoadInt32(&ticks), "ticker must stop after Remove")
	assert.Equal(t, int32(0), atomic.LoadInt32(&delays))
}

func TestStop_StopsAllTickers(t *testing.T) {
	s := New(zap.NewNop())

	var c1, c2 int32
	s.AddTicker("a", 20*time.Millisecond, func() { atomic.AddInt32(&c1, 1) })
	s.AddTicker("b", 20*time.Millisecond, func() { atomic.AddInt32(&c2, 1) })
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	// Let the goroutines observe the stop signal before snapping counts.
	time.Sleep(30 * time.Millisecond)
	snap1, snap2 := atomic.LoadInt32(&c1), atomic.LoadInt32(&c2)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, snap1, atomic.LoadInt32(&c1))
	assert.Equal(t, snap2, atomic.LoadInt32(&c2))
}

func TestStop_Idempotent(t *testing.T) {
	s := New(zap.NewNop())
	s.Stop()
	s.Stop() // must not panic
}

func TestListTickers(t *testing.T) {
	s := newScheduler(t)

	require.Empty(t, s.ListTickers())
	s.AddTicker("session_cleanup", time.Hour, func() {})
	s.AddTicker("combat_ref_sweep", time.Hour, func() {})
	names := s.ListTickers()
	assert.Len(t, names, 2)
	assert.Contains(t, names, "session_cleanup")
	assert.Contains(t, names, "combat_ref_sweep")

	s.Remove("session_cleanup")
	assert.Equal(t, []string{"combat_ref_sweep"}, s.ListTickers())
}

func TestTicker_PanicRecovered(t *testing.T) {
	s := newScheduler(t)

	var after int32
	s.AddTicker("panic", 20*time.Millisecond, func() {
		if atomic.AddInt32(&after, 1) == 1 {
			panic("oops")
		}
	})
	time.Sleep(80 * time.Millisecond)
	// The ticker kept firing after the recovered panic.
	assert.Greater(t, atomic.LoadInt32(&after), int32(1))
}
