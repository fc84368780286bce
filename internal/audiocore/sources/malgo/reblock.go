package malgo

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore"
)

// reblocker turns miniaudio callbacks of arbitrary size into fixed periods
// for a blocking reader. Period buffers are preallocated and cycle between
// the free and full channels; the callback never allocates or blocks.
type reblocker struct {
	free chan []byte
	full chan []byte

	// callback side
	cur  []byte
	fill int

	timeout time.Duration
	timer   *time.Timer // reader side only

	stopped  chan struct{}
	stopOnce sync.Once
	overruns atomic.Uint64
}

func newReblocker(periodBytes, slots int, timeout time.Duration) *reblocker {
	r := &reblocker{
		free:    make(chan []byte, slots),
		full:    make(chan []byte, slots),
		timeout: timeout,
		timer:   time.NewTimer(timeout),
		stopped: make(chan struct{}),
	}
	r.timer.Stop()
	for range slots {
		r.free <- make([]byte, periodBytes)
	}
	return r
}

// write is called from the device callback.
func (r *reblocker) write(in []byte) {
	for len(in) > 0 {
		if r.cur == nil {
			select {
			case r.cur = <-r.free:
				r.fill = 0
			default:
				// Reader is behind by every slot; lose the rest of this callback.
				r.overruns.Add(1)
				return
			}
		}

		n := copy(r.cur[r.fill:], in)
		r.fill += n
		in = in[n:]

		if r.fill == len(r.cur) {
			// full has room for every slot, so this never blocks.
			r.full <- r.cur
			r.cur = nil
		}
	}
}

// read blocks until one period is available, the device stops, or the
// timeout passes.
func (r *reblocker) read(buf []byte) error {
	select {
	case p := <-r.full:
		return r.take(buf, p)
	default:
	}

	r.timer.Reset(r.timeout)
	defer r.timer.Stop()

	select {
	case p := <-r.full:
		return r.take(buf, p)
	case <-r.stopped:
		return fmt.Errorf("%w: device stopped", audiocore.ErrDeviceDisconnected)
	case <-r.timer.C:
		return fmt.Errorf("%w: no audio for %s", audiocore.ErrDeviceDisconnected, r.timeout)
	}
}

func (r *reblocker) take(buf, p []byte) error {
	copy(buf, p)
	r.free <- p
	return nil
}

// stop wakes a blocked reader. Buffered periods can still be read.
func (r *reblocker) stop() {
	r.stopOnce.Do(func() { close(r.stopped) })
}
