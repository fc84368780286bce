package audiocore

import "time"

// Frame is one period of interleaved PCM as read from the device.
//
// Seq increases by one per period produced by the capture driver, so a gap
// in Seq downstream means frames were dropped in between. Data holds
// FrameCount sample frames in the session Format.
type Frame struct {
	Seq        uint64
	Timestamp  time.Time
	FrameCount int
	Data       []byte
}

// Clone returns a deep copy of f.
func (f *Frame) Clone() Frame {
	c := *f
	c.Data = append([]byte(nil), f.Data...)
	return c
}

// CopyFrom overwrites f with src, reusing f's storage when it is large enough.
func (f *Frame) CopyFrom(src *Frame) {
	f.Seq = src.Seq
	f.Timestamp = src.Timestamp
	f.FrameCount = src.FrameCount
	f.Data = append(f.Data[:0], src.Data...)
}

// Slice returns a frame holding sample frames [from, to) of f with the
// timestamp advanced accordingly. The returned frame shares f's storage.
func (f *Frame) Slice(format Format, from, to int) Frame {
	fb := format.FrameBytes()
	return Frame{
		Seq:        f.Seq,
		Timestamp:  f.Timestamp.Add(format.DurationOf(from)),
		FrameCount: to - from,
		Data:       f.Data[from*fb : to*fb],
	}
}
