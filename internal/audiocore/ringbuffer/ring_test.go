package ringbuffer

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/threshcorder/internal/audiocore"
)

const testFrameBytes = 64

// patternFrame returns a frame whose payload is derived from seq so that a
// torn or mixed-up copy is detectable.
func patternFrame(seq uint64) *audiocore.Frame {
	data := make([]byte, testFrameBytes)
	for i := range data {
		data[i] = byte(seq*31 + uint64(i))
	}
	return &audiocore.Frame{Seq: seq, FrameCount: testFrameBytes / 2, Data: data}
}

func checkPattern(t *testing.T, f *audiocore.Frame) {
	t.Helper()
	want := patternFrame(f.Seq)
	if !bytes.Equal(want.Data, f.Data) {
		t.Fatalf("frame %d payload does not match its sequence number", f.Seq)
	}
}

func TestNew_InvalidArguments(t *testing.T) {
	_, err := New(0, testFrameBytes, DropOldest)
	require.Error(t, err)

	_, err = New(4, 0, DropOldest)
	require.Error(t, err)

	r, err := New(4, testFrameBytes, DropNewest)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Cap())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, DropNewest, r.Policy())
}

func TestRing_FIFO(t *testing.T) {
	r, err := New(4, testFrameBytes, DropOldest)
	require.NoError(t, err)

	_, ok := r.Pop()
	assert.False(t, ok, "empty ring must not pop")

	for seq := range uint64(3) {
		require.True(t, r.Push(patternFrame(seq)))
	}
	assert.Equal(t, 3, r.Len())

	for seq := range uint64(3) {
		f, ok := r.Pop()
		require.True(t, ok)
		assert.Equal(t, seq, f.Seq)
		checkPattern(t, &f)
	}

	_, ok = r.Pop()
	assert.False(t, ok)
	assert.Zero(t, r.Dropped())
}

func TestRing_PushCopiesSource(t *testing.T) {
	r, err := New(2, testFrameBytes, DropOldest)
	require.NoError(t, err)

	src := patternFrame(7)
	require.True(t, r.Push(src))
	src.Data[0] ^= 0xFF
	src.Seq = 99

	f, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(7), f.Seq)
	checkPattern(t, &f)
}

func TestRing_OverflowPolicies(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		pushes   int
		wantSeqs []uint64
	}{
		{"drop_oldest_two_over", DropOldest, 6, []uint64{2, 3, 4, 5}},
		{"drop_oldest_wraps_twice", DropOldest, 13, []uint64{9, 10, 11, 12}},
		{"drop_newest_two_over", DropNewest, 6, []uint64{0, 1, 2, 3}},
		{"exactly_full", DropOldest, 4, []uint64{0, 1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(4, testFrameBytes, tt.policy)
			require.NoError(t, err)

			rejected := 0
			for seq := range uint64(tt.pushes) {
				if !r.Push(patternFrame(seq)) {
					rejected++
				}
			}

			wantDropped := max(0, tt.pushes-r.Cap())
			assert.Equal(t, wantDropped, rejected)
			assert.Equal(t, uint64(wantDropped), r.Dropped())
			assert.Equal(t, r.Cap(), r.Len())

			var got []uint64
			var f audiocore.Frame
			for r.PopInto(&f) {
				checkPattern(t, &f)
				got = append(got, f.Seq)
			}
			assert.Equal(t, tt.wantSeqs, got)
		})
	}
}

func TestRing_PopIntoReusesStorage(t *testing.T) {
	r, err := New(2, testFrameBytes, DropOldest)
	require.NoError(t, err)

	dst := audiocore.Frame{Data: make([]byte, 0, testFrameBytes)}
	backing := dst.Data[:1]

	require.True(t, r.Push(patternFrame(1)))
	require.True(t, r.PopInto(&dst))
	assert.Same(t, &backing[0], &dst.Data[0])
	checkPattern(t, &dst)
}

func TestRing_DropCounterMonotonic(t *testing.T) {
	r, err := New(2, testFrameBytes, DropOldest)
	require.NoError(t, err)

	var last uint64
	for seq := range uint64(20) {
		r.Push(patternFrame(seq))
		if seq%3 == 0 {
			r.Pop()
		}
		d := r.Dropped()
		assert.GreaterOrEqual(t, d, last)
		last = d
	}
}

// TestRing_ConcurrentProducerConsumer pushes faster than it pops and checks
// that every popped frame is intact, in order, and that each lost frame was
// counted exactly once.
func TestRing_ConcurrentProducerConsumer(t *testing.T) {
	for _, policy := range []Policy{DropOldest, DropNewest} {
		t.Run(policy.String(), func(t *testing.T) {
			const total = 20000

			r, err := New(8, testFrameBytes, policy)
			require.NoError(t, err)

			frames := make([]*audiocore.Frame, total)
			for i := range frames {
				frames[i] = patternFrame(uint64(i))
			}

			var (
				wg       sync.WaitGroup
				rejected int
				done     = make(chan struct{})
			)

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer close(done)
				for _, f := range frames {
					if !r.Push(f) {
						rejected++
					}
				}
			}()

			var (
				popped  int
				lastSeq int64 = -1
				f       audiocore.Frame
				torn    bool
				order   bool
			)
		consume:
			for {
				if r.PopInto(&f) {
					popped++
					if int64(f.Seq) <= lastSeq {
						order = true
					}
					lastSeq = int64(f.Seq)
					if !bytes.Equal(patternFrame(f.Seq).Data, f.Data) {
						torn = true
					}
					// Slow consumer so the ring overflows.
					if popped%64 == 0 {
						time.Sleep(10 * time.Microsecond)
					}
					continue
				}
				select {
				case <-done:
					if r.Len() == 0 {
						break consume
					}
				default:
				}
			}
			wg.Wait()

			assert.False(t, torn, "torn frame observed")
			assert.False(t, order, "sequence numbers went backwards")
			assert.Equal(t, total, popped+int(r.Dropped()))
			assert.Equal(t, uint64(rejected), r.Dropped())
		})
	}
}

func TestCapacityFor(t *testing.T) {
	tests := []struct {
		name   string
		period time.Duration
		jitter int
		want   int
	}{
		{"default_period", 250 * time.Millisecond, 8, 8},
		{"short_period_rounds_up", 10 * time.Millisecond, 8, 10},
		{"uneven_short_period", 30 * time.Millisecond, 2, 4},
		{"zero_period", 0, 8, 8},
		{"multiplier_below_two_uses_default", 250 * time.Millisecond, 1, DefaultJitterPeriods},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CapacityFor(tt.period, tt.jitter))
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("drop-newest")
	require.NoError(t, err)
	assert.Equal(t, DropNewest, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DropOldest, p)

	_, err = ParsePolicy("block")
	require.Error(t, err)
}
