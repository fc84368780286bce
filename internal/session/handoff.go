package session

import (
	"sync/atomic"
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore/trigger"
)

// controlWait bounds how long a start or end event waits for the writer once
// the reserved headroom is used up.
const controlWait = 5 * time.Second

// handoff is the bounded queue between the processing goroutine and the
// writer. Data events are dropped when the queue is full. Start and end
// events may use a reserved headroom; beyond that they wait up to
// controlWait for the writer and are then dropped too. The writer closes
// an episode whose end never arrives when the next one starts or the queue
// closes.
type handoff struct {
	ch      chan trigger.Event
	reserve int
	wait    time.Duration

	drops        atomic.Uint64
	controlDrops atomic.Uint64
}

func newHandoff(size, reserve int) *handoff {
	return &handoff{
		ch:      make(chan trigger.Event, size+reserve),
		reserve: reserve,
		wait:    controlWait,
	}
}

// send queues ev and reports whether it was accepted. Only one goroutine
// may send.
func (h *handoff) send(ev trigger.Event) bool {
	switch {
	case ev.Kind.IsControl():
		return h.sendControl(ev)
	case ev.Kind == trigger.EventDiscard:
		// Nothing was written for a discarded episode.
		return true
	}

	if len(h.ch) >= cap(h.ch)-h.reserve {
		h.drops.Add(1)
		return false
	}
	h.ch <- ev
	return true
}

func (h *handoff) sendControl(ev trigger.Event) bool {
	select {
	case h.ch <- ev:
		return true
	default:
	}

	timer := time.NewTimer(h.wait)
	defer timer.Stop()

	select {
	case h.ch <- ev:
		return true
	case <-timer.C:
		h.drops.Add(1)
		h.controlDrops.Add(1)
		return false
	}
}

func (h *handoff) events() <-chan trigger.Event {
	return h.ch
}

func (h *handoff) close() {
	close(h.ch)
}

// Dropped returns the number of events dropped, control events included.
func (h *handoff) Dropped() uint64 {
	return h.drops.Load()
}

// ControlDropped returns the number of start and end events dropped after
// waiting for a stalled writer.
func (h *handoff) ControlDropped() uint64 {
	return h.controlDrops.Load()
}
