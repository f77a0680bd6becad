package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueue_PopsInTimeOrder(t *testing.T) {
	// GIVEN events scheduled out of order
	q := NewEventQueue()
	for i, ts := range []float64{5, 1, 3, 2, 4} {
		require.NoError(t, q.Schedule(Event{Time: ts, Agent: i, Seq: uint64(i + 1)}))
	}

	// WHEN popping all of them
	var got []float64
	for {
		e, ok := q.PopNext()
		if !ok {
			break
		}
		got = append(got, e.Time)
	}

	// THEN they come out by ascending time
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, got)
}

func TestEventQueue_TiesBrokenBySequence(t *testing.T) {
	// GIVEN three events at the same time, pushed in reverse sequence order
	q := NewEventQueue()
	require.NoError(t, q.Schedule(Event{Time: 1, Agent: 2, Seq: 3}))
	require.NoError(t, q.Schedule(Event{Time: 1, Agent: 1, Seq: 2}))
	require.NoError(t, q.Schedule(Event{Time: 1, Agent: 0, Seq: 1}))

	// THEN they pop in creation (sequence) order
	for want := uint64(1); want <= 3; want++ {
		e, ok := q.PopNext()
		require.True(t, ok)
		assert.Equal(t, want, e.Seq)
	}
}

func TestEventQueue_PeekTime(t *testing.T) {
	q := NewEventQueue()
	_, ok := q.PeekTime()
	assert.False(t, ok)

	require.NoError(t, q.Schedule(Event{Time: 2, Seq: 1}))
	require.NoError(t, q.Schedule(Event{Time: 0.5, Seq: 2}))
	ts, ok := q.PeekTime()
	assert.True(t, ok)
	assert.Equal(t, 0.5, ts)
	assert.Equal(t, 2, q.Len(), "peek must not remove")
}

func TestEventQueue_ScheduleBeforeLastPop_Rejected(t *testing.T) {
	// GIVEN a queue that already delivered an event at t=3
	q := NewEventQueue()
	require.NoError(t, q.Schedule(Event{Time: 3, Seq: 1}))
	_, ok := q.PopNext()
	require.True(t, ok)

	// WHEN scheduling an event in the past
	err := q.Schedule(Event{Time: 2, Seq: 2})

	// THEN it is rejected and the queue is unchanged
	var evErr *InvalidEventError
	require.True(t, errors.As(err, &evErr))
	assert.Equal(t, 2.0, evErr.Time)
	assert.Equal(t, 3.0, evErr.LastTime)
	assert.Equal(t, 0, q.Len())

	// an event at exactly the last time is fine
	assert.NoError(t, q.Schedule(Event{Time: 3, Seq: 3}))
}

func TestEventQueue_NaNRejected(t *testing.T) {
	q := NewEventQueue()
	var evErr *InvalidEventError
	assert.ErrorAs(t, q.Schedule(Event{Time: math.NaN(), Seq: 1}), &evErr)
	assert.Equal(t, 0, q.Len())
}

func TestEvent_BeforeAndString(t *testing.T) {
	a := Event{Time: 1, Seq: 5}
	b := Event{Time: 1, Seq: 6}
	c := Event{Time: 0.5, Seq: 9}
	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.True(t, c.Before(a))
	assert.Equal(t, 1.0, a.Timestamp())
	assert.Contains(t, a.String(), "event#5")
}
