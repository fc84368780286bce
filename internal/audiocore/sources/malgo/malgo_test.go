package malgo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/audiocore/capture"
)

func TestSelectDevice(t *testing.T) {
	devices := []capture.DeviceInfo{
		{Index: 0, Name: "HDA Intel PCH: ALC3246 Analog", ID: ":0,0"},
		{Index: 2, Name: "USB Audio CODEC", ID: ":1,0", Default: true},
		{Index: 3, Name: "USB Audio CODEC Secondary", ID: ":2,0"},
	}

	tests := []struct {
		name      string
		query     string
		wantIndex int
		wantErr   bool
	}{
		{"empty_selects_default", "", 2, false},
		{"default_keyword", "default", 2, false},
		{"sysdefault_keyword", "sysdefault", 2, false},
		{"exact_name_beats_partial", "USB Audio CODEC", 2, false},
		{"alsa_id", ":2,0", 3, false},
		{"partial_name", "ALC3246", 0, false},
		{"no_match", "Scarlett", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectDevice(devices, tt.query)
			if tt.wantErr {
				require.ErrorIs(t, err, audiocore.ErrDeviceUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIndex, got.Index)
		})
	}

	t.Run("default_falls_back_to_first", func(t *testing.T) {
		got, err := selectDevice(devices[:1], "")
		require.NoError(t, err)
		assert.Equal(t, 0, got.Index)
	})

	t.Run("no_devices", func(t *testing.T) {
		_, err := selectDevice(nil, "")
		require.ErrorIs(t, err, audiocore.ErrDeviceUnavailable)
	})
}

func TestFormatMapping(t *testing.T) {
	for _, f := range []audiocore.SampleFormat{audiocore.FormatS16LE, audiocore.FormatS24LE, audiocore.FormatS32LE} {
		mf, ok := toMalgoFormat(f)
		require.True(t, ok, f.String())
		assert.Equal(t, f, fromMalgoFormat(mf))
	}

	_, ok := toMalgoFormat(audiocore.FormatUnknown)
	assert.False(t, ok)
}

func TestHexToASCII(t *testing.T) {
	got, err := hexToASCII("3a312c3000")
	require.NoError(t, err)
	assert.Equal(t, ":1,0", got)

	_, err = hexToASCII("zz")
	assert.Error(t, err)
}

func TestReblocker(t *testing.T) {
	t.Run("splits_and_joins_callbacks", func(t *testing.T) {
		r := newReblocker(4, 4, time.Second)

		r.write([]byte{1, 2, 3})
		r.write([]byte{4, 5})
		r.write([]byte{6, 7, 8, 9, 10, 11, 12})

		buf := make([]byte, 4)
		require.NoError(t, r.read(buf))
		assert.Equal(t, []byte{1, 2, 3, 4}, buf)
		require.NoError(t, r.read(buf))
		assert.Equal(t, []byte{5, 6, 7, 8}, buf)
		require.NoError(t, r.read(buf))
		assert.Equal(t, []byte{9, 10, 11, 12}, buf)
		assert.Zero(t, r.overruns.Load())
	})

	t.Run("overrun_when_reader_is_behind", func(t *testing.T) {
		r := newReblocker(2, 2, time.Second)

		r.write([]byte{1, 1, 2, 2})
		r.write([]byte{3, 3})
		assert.Equal(t, uint64(1), r.overruns.Load())

		buf := make([]byte, 2)
		require.NoError(t, r.read(buf))
		assert.Equal(t, []byte{1, 1}, buf)

		// The slot is free again.
		r.write([]byte{4, 4})
		require.NoError(t, r.read(buf))
		assert.Equal(t, []byte{2, 2}, buf)
		require.NoError(t, r.read(buf))
		assert.Equal(t, []byte{4, 4}, buf)
	})

	t.Run("timeout_is_disconnect", func(t *testing.T) {
		r := newReblocker(2, 2, 5*time.Millisecond)
		err := r.read(make([]byte, 2))
		require.ErrorIs(t, err, audiocore.ErrDeviceDisconnected)
	})

	t.Run("stop_wakes_reader_after_buffered_data", func(t *testing.T) {
		r := newReblocker(2, 2, time.Minute)
		r.write([]byte{7, 7})
		r.stop()
		r.stop()

		buf := make([]byte, 2)
		require.NoError(t, r.read(buf))
		assert.Equal(t, []byte{7, 7}, buf)

		err := r.read(buf)
		require.ErrorIs(t, err, audiocore.ErrDeviceDisconnected)
	})
}
