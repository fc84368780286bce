// Package ringbuffer implements the single-producer single-consumer frame
// ring between the capture driver and the processing goroutine.
//
// The ring is lock-free. Frame storage is a preallocated arena of cap+2
// buffers; ownership of a buffer moves between producer, ring slot and
// consumer through atomic pointer and cursor operations, so the push path
// neither allocates nor blocks once the arena is warm.
package ringbuffer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore"
)

// Policy selects which frame is lost when the ring is full.
type Policy int

const (
	// DropOldest evicts the oldest unread frame to make room for the new one.
	DropOldest Policy = iota
	// DropNewest discards the frame being pushed.
	DropNewest
)

// String returns the config name of the policy.
func (p Policy) String() string {
	if p == DropNewest {
		return "drop-newest"
	}
	return "drop-oldest"
}

// ParsePolicy parses "drop-oldest" or "drop-newest".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "drop-oldest":
		return DropOldest, nil
	case "drop-newest":
		return DropNewest, nil
	}
	return DropOldest, fmt.Errorf("unknown overflow policy %q", s)
}

// DefaultJitterPeriods is the default ring capacity in periods.
const DefaultJitterPeriods = 8

// minBuffered is the least consumer stall the ring absorbs regardless of
// period length.
const minBuffered = 100 * time.Millisecond

// CapacityFor returns the ring capacity in frames for a device period and a
// jitter multiplier. Short periods are rounded up so the ring always covers
// at least 100ms of audio.
func CapacityFor(period time.Duration, jitterPeriods int) int {
	if jitterPeriods < 2 {
		jitterPeriods = DefaultJitterPeriods
	}
	if period <= 0 {
		return jitterPeriods
	}
	floor := int((minBuffered + period - 1) / period)
	return max(jitterPeriods, floor)
}

// Ring is a bounded SPSC queue of frames.
//
// Push must only be called from one goroutine and Pop/PopInto from one other
// goroutine. Len, Cap and Dropped are safe from anywhere.
type Ring struct {
	slots  []atomic.Pointer[audiocore.Frame]
	size   uint64
	policy Policy

	// head is written only by the producer; tail is advanced by the consumer
	// on pop and by the producer when it evicts under DropOldest.
	head atomic.Uint64
	tail atomic.Uint64

	free    freeList
	dropped atomic.Uint64
}

// New creates a ring holding up to capacity frames of frameBytes each.
func New(capacity, frameBytes int, policy Policy) (*Ring, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("ring capacity must be positive, got %d", capacity)
	}
	if frameBytes < 1 {
		return nil, fmt.Errorf("ring frame size must be positive, got %d", frameBytes)
	}

	r := &Ring{
		slots:  make([]atomic.Pointer[audiocore.Frame], capacity),
		size:   uint64(capacity),
		policy: policy,
		free:   newFreeList(capacity + 2),
	}

	// cap slots, one frame held by the consumer mid-copy and one being
	// filled by the producer.
	for range capacity + 2 {
		r.free.push(&audiocore.Frame{Data: make([]byte, 0, frameBytes)})
	}

	return r, nil
}

// Push copies src into the ring. It returns false when the ring was full, in
// which case exactly one frame was dropped according to the policy and the
// drop counter was incremented.
func (r *Ring) Push(src *audiocore.Frame) bool {
	h := r.head.Load()
	accepted := true

	var buf *audiocore.Frame
	if h-r.tail.Load() >= r.size {
		if r.policy == DropNewest {
			r.dropped.Add(1)
			return false
		}
		// Full means tail == h-size. If the CAS fails the consumer just
		// took that frame and a slot is free again.
		oldest := h - r.size
		if r.tail.CompareAndSwap(oldest, oldest+1) {
			buf = r.slots[oldest%r.size].Load()
			r.dropped.Add(1)
			accepted = false
		}
	}

	if buf == nil {
		buf = r.free.pop()
		if buf == nil {
			// Unreachable while the arena accounting holds.
			r.dropped.Add(1)
			return false
		}
	}

	buf.CopyFrom(src)
	r.slots[h%r.size].Store(buf)
	r.head.Store(h + 1)

	return accepted
}

// PopInto copies the oldest frame into dst, reusing dst's storage.
// It returns false when the ring is empty.
func (r *Ring) PopInto(dst *audiocore.Frame) bool {
	for {
		t := r.tail.Load()
		if t == r.head.Load() {
			return false
		}

		f := r.slots[t%r.size].Load()
		if !r.tail.CompareAndSwap(t, t+1) {
			// Evicted by the producer; retry with the new oldest frame.
			continue
		}

		dst.CopyFrom(f)
		r.free.push(f)
		return true
	}
}

// Pop returns a copy of the oldest frame.
func (r *Ring) Pop() (audiocore.Frame, bool) {
	var f audiocore.Frame
	ok := r.PopInto(&f)
	return f, ok
}

// Len returns the number of unread frames.
func (r *Ring) Len() int {
	t := r.tail.Load()
	h := r.head.Load()
	if h < t {
		return 0
	}
	return int(h - t)
}

// Cap returns the ring capacity in frames.
func (r *Ring) Cap() int {
	return int(r.size)
}

// Dropped returns the total number of frames lost to overflow.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// Policy returns the overflow policy.
func (r *Ring) Policy() Policy {
	return r.policy
}

// freeList returns consumed buffers from the consumer to the producer.
// It is itself SPSC in the opposite direction of the ring.
type freeList struct {
	items []*audiocore.Frame
	size  uint64
	head  atomic.Uint64
	tail  atomic.Uint64
}

func newFreeList(n int) freeList {
	return freeList{items: make([]*audiocore.Frame, n), size: uint64(n)}
}

func (l *freeList) push(f *audiocore.Frame) {
	h := l.head.Load()
	// Never full: the list holds at most every buffer of the arena.
	l.items[h%l.size] = f
	l.head.Store(h + 1)
}

func (l *freeList) pop() *audiocore.Frame {
	t := l.tail.Load()
	if t == l.head.Load() {
		return nil
	}
	f := l.items[t%l.size]
	l.tail.Store(t + 1)
	return f
}
