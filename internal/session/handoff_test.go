package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/threshcorder/internal/audiocore/trigger"
)

func TestHandoff(t *testing.T) {
	data := trigger.Event{Kind: trigger.EventData}
	start := trigger.Event{Kind: trigger.EventStart}
	end := trigger.Event{Kind: trigger.EventEnd}

	t.Run("drops_data_but_keeps_control_headroom", func(t *testing.T) {
		h := newHandoff(3, 2)

		assert.True(t, h.send(start))
		assert.True(t, h.send(data))
		assert.True(t, h.send(data))
		// Queue holds 3, the data limit.
		assert.False(t, h.send(data))
		assert.Equal(t, uint64(1), h.Dropped())

		// Control events use the reserve.
		assert.True(t, h.send(end))
		assert.True(t, h.send(start))
		assert.Len(t, h.events(), 5)
		assert.False(t, h.send(data))
		assert.Equal(t, uint64(2), h.Dropped())
	})

	t.Run("discard_is_not_queued", func(t *testing.T) {
		h := newHandoff(1, 1)
		assert.True(t, h.send(trigger.Event{Kind: trigger.EventDiscard}))
		assert.Empty(t, h.events())
		assert.Zero(t, h.Dropped())
	})

	t.Run("close_ends_consumer", func(t *testing.T) {
		h := newHandoff(4, 1)
		require.True(t, h.send(start))
		require.True(t, h.send(data))
		h.close()

		var kinds []trigger.EventKind
		for ev := range h.events() {
			kinds = append(kinds, ev.Kind)
		}
		assert.Equal(t, []trigger.EventKind{trigger.EventStart, trigger.EventData}, kinds)
	})
	t.Run("control_waits_for_writer", func(t *testing.T) {
		h := newHandoff(1, 1)
		require.True(t, h.send(start))
		require.True(t, h.send(end))

		go func() {
			time.Sleep(10 * time.Millisecond)
			<-h.events()
		}()

		assert.True(t, h.send(start))
		assert.Zero(t, h.Dropped())
	})

	t.Run("control_dropped_when_writer_stalls", func(t *testing.T) {
		h := newHandoff(1, 1)
		h.wait = 20 * time.Millisecond
		require.True(t, h.send(start))
		require.True(t, h.send(end))

		began := time.Now()
		assert.False(t, h.send(start))
		assert.GreaterOrEqual(t, time.Since(began), h.wait)
		assert.Equal(t, uint64(1), h.Dropped())
		assert.Equal(t, uint64(1), h.ControlDropped())
	})
}
