package audiocore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/threshcorder/internal/errors"
)

func TestParseSampleFormat(t *testing.T) {
	tests := []struct {
		in   string
		want SampleFormat
	}{
		{"s16le", FormatS16LE},
		{"S24LE", FormatS24LE},
		{" s32 ", FormatS32LE},
		{"pcm_s16le", FormatS16LE},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSampleFormat(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseSampleFormat("f32le")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormatUnsupported)
}

func TestFormat_Validate(t *testing.T) {
	good := Format{SampleRate: 44100, Channels: 1, Sample: FormatS16LE}
	require.NoError(t, good.Validate())
	assert.Equal(t, "44100Hz/1ch/s16le", good.String())
	assert.Equal(t, 2, good.FrameBytes())

	bad := []Format{
		{SampleRate: 0, Channels: 1, Sample: FormatS16LE},
		{SampleRate: 48000, Channels: 0, Sample: FormatS16LE},
		{SampleRate: 48000, Channels: 2, Sample: FormatUnknown},
	}
	for _, f := range bad {
		err := f.Validate()
		require.Error(t, err, f.String())
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	}
	assert.ErrorIs(t, bad[2].Validate(), ErrFormatUnsupported)
}

func TestFormat_FramesAndDuration(t *testing.T) {
	f := Format{SampleRate: 44100, Channels: 2, Sample: FormatS24LE}

	assert.Equal(t, 11025, f.FramesFor(250*time.Millisecond))
	assert.Equal(t, 44100, f.FramesFor(time.Second))
	assert.Equal(t, 0, f.FramesFor(-time.Second))
	assert.Equal(t, 250*time.Millisecond, f.DurationOf(11025))
	assert.Equal(t, 6, f.FrameBytes())
}

func TestFormat_SampleRoundTrip(t *testing.T) {
	values := []float64{0, 0.5, -0.5, 0.25, -1, 0.999}

	for _, sf := range []SampleFormat{FormatS16LE, FormatS24LE, FormatS32LE} {
		t.Run(sf.String(), func(t *testing.T) {
			f := Format{SampleRate: 8000, Channels: 1, Sample: sf}
			data := make([]byte, len(values)*f.FrameBytes())

			for i, v := range values {
				f.PutSample(data, i, v)
			}

			// One quantization step of the coarsest format.
			delta := 1.0 / 32768
			for i, v := range values {
				assert.InDelta(t, v, f.SampleAt(data, i), delta, "sample %d", i)
			}
		})
	}
}

func TestFormat_PutSampleClamps(t *testing.T) {
	f := Format{SampleRate: 8000, Channels: 1, Sample: FormatS16LE}
	data := make([]byte, 4)

	f.PutSample(data, 0, 2.0)
	f.PutSample(data, 1, -3.0)

	assert.Equal(t, 32767, f.SampleInt(data, 0))
	assert.Equal(t, -32768, f.SampleInt(data, 1))
}

func TestFormat_S24SignExtension(t *testing.T) {
	f := Format{SampleRate: 8000, Channels: 1, Sample: FormatS24LE}
	data := []byte{0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x80}

	assert.Equal(t, -1, f.SampleInt(data, 0))
	assert.Equal(t, -8388608, f.SampleInt(data, 1))
}

func TestFrame_SliceAndClone(t *testing.T) {
	format := Format{SampleRate: 1000, Channels: 1, Sample: FormatS16LE}
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f := Frame{Seq: 3, Timestamp: start, FrameCount: 4, Data: []byte{1, 0, 2, 0, 3, 0, 4, 0}}

	s := f.Slice(format, 1, 3)
	assert.Equal(t, uint64(3), s.Seq)
	assert.Equal(t, 2, s.FrameCount)
	assert.Equal(t, []byte{2, 0, 3, 0}, s.Data)
	assert.Equal(t, start.Add(time.Millisecond), s.Timestamp)

	c := f.Clone()
	c.Data[0] = 9
	assert.Equal(t, byte(1), f.Data[0])
}
