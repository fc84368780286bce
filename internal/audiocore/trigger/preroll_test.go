package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/threshcorder/internal/audiocore"
)

func sizedFrame(seq uint64, frames int) *audiocore.Frame {
	data := make([]byte, frames*testFormat.FrameBytes())
	for i := range frames {
		testFormat.PutSample(data, i, float64(i)/float64(frames)/2)
	}
	return &audiocore.Frame{
		Seq:        seq,
		Timestamp:  epoch.Add(time.Duration(seq) * time.Second),
		FrameCount: frames,
		Data:       data,
	}
}

func TestPreRoll_KeepsAtLeastLookback(t *testing.T) {
	p := NewPreRoll(testFormat, 100*time.Millisecond)
	assert.Zero(t, p.Available())
	assert.Nil(t, p.Snapshot())

	for seq := range uint64(50) {
		p.Push(testFrame(seq))
	}
	assert.Equal(t, 100, p.Available())

	snap := p.Snapshot()
	require.Len(t, snap, 10)
	assert.Equal(t, uint64(40), snap[0].Seq)
	assert.Equal(t, uint64(49), snap[9].Seq)
}

func TestPreRoll_VariableFrameSizes(t *testing.T) {
	p := NewPreRoll(testFormat, 25*time.Millisecond)

	p.Push(sizedFrame(0, 7))
	p.Push(sizedFrame(1, 13))
	p.Push(sizedFrame(2, 9))
	p.Push(sizedFrame(3, 4))

	// 33 buffered, 25 wanted: the 7-sample frame is evicted and one sample
	// of the 13-sample frame is trimmed.
	snap := p.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, 25, sampleFrames(snap))
	assert.Equal(t, uint64(1), snap[0].Seq)
	assert.Equal(t, 12, snap[0].FrameCount)

	orig := sizedFrame(1, 13)
	assert.Equal(t, orig.Data[1*2:], snap[0].Data)
	assert.Equal(t, orig.Timestamp.Add(time.Millisecond), snap[0].Timestamp)
}

func TestPreRoll_SingleFrameLargerThanLookback(t *testing.T) {
	p := NewPreRoll(testFormat, 5*time.Millisecond)
	p.Push(testFrame(3))

	snap := p.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 5, snap[0].FrameCount)
}

func TestPreRoll_GrowsBeyondInitialSlots(t *testing.T) {
	p := NewPreRoll(testFormat, time.Second)

	for seq := range uint64(initialPreRollSlots * 5) {
		p.Push(sizedFrame(seq, 1))
	}

	snap := p.Snapshot()
	require.Len(t, snap, initialPreRollSlots*5)
	for i, f := range snap {
		assert.Equal(t, uint64(i), f.Seq)
	}
}

func TestPreRoll_SnapshotIsIndependent(t *testing.T) {
	p := NewPreRoll(testFormat, 20*time.Millisecond)
	p.Push(testFrame(1))

	snap := p.Snapshot()
	p.Push(testFrame(2))
	p.Push(testFrame(3))
	p.Push(testFrame(4))

	assert.Equal(t, byte(1), snap[0].Data[0])
}

func TestPreRoll_Reset(t *testing.T) {
	p := NewPreRoll(testFormat, 20*time.Millisecond)
	p.Push(testFrame(1))
	p.Reset()
	assert.Zero(t, p.Available())
	assert.Nil(t, p.Snapshot())
}
