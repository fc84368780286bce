package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/audiocore/capture"
)

func writeWAV(t *testing.T, rate, bitDepth, channels int, samples []int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "input.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, rate, bitDepth, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{SampleRate: rate, NumChannels: channels},
		SourceBitDepth: bitDepth,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func open(t *testing.T, path string, format audiocore.Format, periodFrames int, realtime bool) capture.Device {
	t.Helper()

	b, err := New(capture.Options{Realtime: realtime})
	require.NoError(t, err)

	dev, err := b.Open(context.Background(), capture.DeviceConfig{
		Name:         path,
		Format:       format,
		PeriodFrames: periodFrames,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func TestReplay_ReadsPeriodsThenEndOfStream(t *testing.T) {
	format := audiocore.Format{SampleRate: 8000, Channels: 1, Sample: audiocore.FormatS16LE}

	samples := make([]int, 10)
	for i := range samples {
		samples[i] = (i + 1) * 1000
	}
	samples[9] = -32768

	dev := open(t, writeWAV(t, 8000, 16, 1, samples), format, 4, false)
	assert.Equal(t, format, dev.Format())
	assert.Equal(t, "input.wav", dev.Info().Name)

	buf := make([]byte, 4*format.FrameBytes())

	require.NoError(t, dev.ReadPeriod(buf))
	for i := range 4 {
		assert.Equal(t, samples[i], format.SampleInt(buf, i))
	}

	require.NoError(t, dev.ReadPeriod(buf))
	for i := range 4 {
		assert.Equal(t, samples[4+i], format.SampleInt(buf, i))
	}

	// Two samples remain; the period is padded with silence.
	require.NoError(t, dev.ReadPeriod(buf))
	assert.Equal(t, samples[8], format.SampleInt(buf, 0))
	assert.Equal(t, -32768, format.SampleInt(buf, 1))
	assert.Zero(t, format.SampleInt(buf, 2))
	assert.Zero(t, format.SampleInt(buf, 3))

	require.ErrorIs(t, dev.ReadPeriod(buf), audiocore.ErrEndOfStream)
	require.ErrorIs(t, dev.ReadPeriod(buf), audiocore.ErrEndOfStream)
	assert.Zero(t, dev.Overruns())
}

func TestReplay_StereoS24(t *testing.T) {
	format := audiocore.Format{SampleRate: 16000, Channels: 2, Sample: audiocore.FormatS24LE}
	samples := []int{100, -100, 8388607, -8388608}

	dev := open(t, writeWAV(t, 16000, 24, 2, samples), format, 2, false)
	assert.Equal(t, format, dev.Format())

	buf := make([]byte, 2*format.FrameBytes())
	require.NoError(t, dev.ReadPeriod(buf))
	for i, want := range samples {
		assert.Equal(t, want, format.SampleInt(buf, i))
	}
	require.ErrorIs(t, dev.ReadPeriod(buf), audiocore.ErrEndOfStream)
}

func TestReplay_RealtimePacing(t *testing.T) {
	format := audiocore.Format{SampleRate: 1000, Channels: 1, Sample: audiocore.FormatS16LE}
	dev := open(t, writeWAV(t, 1000, 16, 1, make([]int, 100)), format, 20, true)

	buf := make([]byte, 20*format.FrameBytes())
	start := time.Now()
	for range 5 {
		require.NoError(t, dev.ReadPeriod(buf))
	}

	// Five 20 ms periods.
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestReplay_OpenErrors(t *testing.T) {
	b, err := New(capture.Options{})
	require.NoError(t, err)

	format := audiocore.Format{SampleRate: 8000, Channels: 1, Sample: audiocore.FormatS16LE}

	t.Run("missing_file", func(t *testing.T) {
		_, err := b.Open(context.Background(), capture.DeviceConfig{
			Name: filepath.Join(t.TempDir(), "nope.wav"), Format: format, PeriodFrames: 4,
		})
		require.ErrorIs(t, err, audiocore.ErrDeviceUnavailable)
	})

	t.Run("not_a_wav", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "noise.wav")
		require.NoError(t, os.WriteFile(path, []byte("definitely not RIFF data"), 0o600))

		_, err := b.Open(context.Background(), capture.DeviceConfig{Name: path, Format: format, PeriodFrames: 4})
		require.ErrorIs(t, err, audiocore.ErrFormatUnsupported)
	})

	t.Run("unsupported_bit_depth", func(t *testing.T) {
		path := writeWAV(t, 8000, 8, 1, []int{1, 2, 3, 4})
		_, err := b.Open(context.Background(), capture.DeviceConfig{Name: path, Format: format, PeriodFrames: 4})
		require.ErrorIs(t, err, audiocore.ErrFormatUnsupported)
	})
}

func TestReplay_Registered(t *testing.T) {
	assert.Contains(t, capture.Backends(), BackendName)

	devices, err := (&Backend{}).Devices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
}
