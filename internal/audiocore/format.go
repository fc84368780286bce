package audiocore

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tphakala/threshcorder/internal/errors"
)

// SampleFormat identifies the encoding of a single PCM sample.
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	FormatS16LE
	FormatS24LE
	FormatS32LE
)

// String returns the config name of the format.
func (f SampleFormat) String() string {
	switch f {
	case FormatS16LE:
		return "s16le"
	case FormatS24LE:
		return "s24le"
	case FormatS32LE:
		return "s32le"
	default:
		return "unknown"
	}
}

// ParseSampleFormat parses a config name such as "s16le".
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s16le", "s16", "pcm_s16le":
		return FormatS16LE, nil
	case "s24le", "s24", "pcm_s24le":
		return FormatS24LE, nil
	case "s32le", "s32", "pcm_s32le":
		return FormatS32LE, nil
	}
	return FormatUnknown, errors.New(fmt.Errorf("%w: %q", ErrFormatUnsupported, s)).
		Component(ComponentAudioCore).
		Category(errors.CategoryValidation).
		Build()
}

// BytesPerSample returns the storage size of one sample.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatS16LE:
		return 2
	case FormatS24LE:
		return 3
	case FormatS32LE:
		return 4
	default:
		return 0
	}
}

// BitDepth returns the number of significant bits per sample.
func (f SampleFormat) BitDepth() int {
	return f.BytesPerSample() * 8
}

// fullScale is the magnitude of the most negative sample value.
func (f SampleFormat) fullScale() float64 {
	return math.Ldexp(1, f.BitDepth()-1)
}

// Format describes the PCM stream delivered by a capture device.
type Format struct {
	SampleRate int
	Channels   int
	Sample     SampleFormat
}

// Validate checks that the format is usable.
func (f Format) Validate() error {
	switch {
	case f.SampleRate <= 0:
		return errors.Newf("invalid sample rate %d", f.SampleRate).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	case f.Channels <= 0:
		return errors.Newf("invalid channel count %d", f.Channels).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	case f.Sample.BytesPerSample() == 0:
		return errors.New(fmt.Errorf("%w: %s", ErrFormatUnsupported, f.Sample)).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// String renders the format as "44100Hz/1ch/s16le".
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, f.Sample)
}

// FrameBytes returns the size of one sample frame (one sample per channel).
func (f Format) FrameBytes() int {
	return f.Channels * f.Sample.BytesPerSample()
}

// FramesFor converts a duration to a number of sample frames, rounding to nearest.
func (f Format) FramesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * float64(f.SampleRate)))
}

// DurationOf converts a number of sample frames to a duration.
func (f Format) DurationOf(frames int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// SampleInt decodes the i-th interleaved sample of data as a signed integer.
func (f Format) SampleInt(data []byte, i int) int {
	switch f.Sample {
	case FormatS16LE:
		return int(int16(binary.LittleEndian.Uint16(data[i*2:])))
	case FormatS24LE:
		o := i * 3
		v := int32(data[o]) | int32(data[o+1])<<8 | int32(data[o+2])<<16
		// Sign-extend from 24 bits.
		return int(v<<8) >> 8
	case FormatS32LE:
		return int(int32(binary.LittleEndian.Uint32(data[i*4:])))
	default:
		return 0
	}
}

// SampleAt decodes the i-th interleaved sample of data normalized to [-1, 1).
func (f Format) SampleAt(data []byte, i int) float64 {
	return float64(f.SampleInt(data, i)) / f.Sample.fullScale()
}

// PutSample encodes v (clamped to [-1, 1]) as the i-th interleaved sample of data.
func (f Format) PutSample(data []byte, i int, v float64) {
	v = max(-1, min(1, v))
	scale := f.Sample.fullScale()
	n := int64(math.Round(v * scale))
	if n >= int64(scale) {
		n = int64(scale) - 1
	}
	f.PutSampleInt(data, i, int(n))
}

// PutSampleInt encodes v as the i-th interleaved sample of data. v must fit
// the sample width.
func (f Format) PutSampleInt(data []byte, i, v int) {
	switch f.Sample {
	case FormatS16LE:
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(v)))
	case FormatS24LE:
		o := i * 3
		data[o] = byte(v)
		data[o+1] = byte(v >> 8)
		data[o+2] = byte(v >> 16)
	case FormatS32LE:
		binary.LittleEndian.PutUint32(data[i*4:], uint32(int32(v)))
	}
}
