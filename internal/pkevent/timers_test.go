package pkevent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerSetFiresInDeadlineThenInsertionOrder(t *testing.T) {
	s := newTimerSet()
	base := time.Now()

	// Two timers at the same deadline: earlier insertion must fire first.
	s.add(base.Add(10*time.Millisecond), noopTimerListener{})
	s.add(base.Add(10*time.Millisecond), noopTimerListener{})
	// An earlier deadline inserted last must still fire before both.
	s.add(base.Add(5*time.Millisecond), noopTimerListener{})

	fired := s.popExpired(base.Add(20 * time.Millisecond))
	require.Len(t, fired, 3)
	assert.Equal(t, TimerID(3), fired[0].id)
	assert.Equal(t, TimerID(1), fired[1].id)
	assert.Equal(t, TimerID(2), fired[2].id)
}

func TestTimerSetCancelIsIdempotentAndSkipsFiring(t *testing.T) {
	s := newTimerSet()
	id := s.add(time.Now(), noopTimerListener{})
	s.cancel(id)
	s.cancel(id) // idempotent

	fired := s.popExpired(time.Now().Add(time.Second))
	assert.Empty(t, fired)
}

func TestTimerSetNextDeadlineSkipsCanceled(t *testing.T) {
	s := newTimerSet()
	base := time.Now()
	id := s.add(base.Add(time.Millisecond), noopTimerListener{})
	s.add(base.Add(time.Hour), noopTimerListener{})

	s.cancel(id)

	d, ok := s.nextDeadline()
	require.True(t, ok)
	assert.True(t, d.Sub(base) >= time.Hour-time.Second)
}

type noopTimerListener struct{}

func (noopTimerListener) OnTimeout(TimerID, time.Time, time.Time) {}
