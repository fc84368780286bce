package level

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/threshcorder/internal/audiocore"
)

// 1 kHz keeps window arithmetic readable: 100ms is 100 sample frames.
var testFormat = audiocore.Format{SampleRate: 1000, Channels: 1, Sample: audiocore.FormatS16LE}

const quantum = 1.0 / 32768

func constFrame(format audiocore.Format, seq uint64, frames int, amplitude float64) *audiocore.Frame {
	data := make([]byte, frames*format.FrameBytes())
	for i := range frames * format.Channels {
		format.PutSample(data, i, amplitude)
	}
	return &audiocore.Frame{Seq: seq, FrameCount: frames, Data: data}
}

func newTestDetector(t *testing.T, mutate func(*Config)) *Detector {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Window = 100 * time.Millisecond
	cfg.Threshold = 0.1
	cfg.Hysteresis = 0.02
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := NewDetector(cfg, testFormat)
	require.NoError(t, err)
	return d
}

func TestDetector_RMSOfConstantSignal(t *testing.T) {
	d := newTestDetector(t, nil)
	assert.Equal(t, 100, d.WindowFrames())

	samples := d.Process(constFrame(testFormat, 0, 100, 0.5))
	require.Len(t, samples, 1)
	assert.InDelta(t, 0.5, samples[0].Value, quantum)
	assert.InDelta(t, 0.5, samples[0].Raw, quantum)
	assert.True(t, samples[0].Above)
	assert.True(t, samples[0].Changed)
}

func TestDetector_RMSOfSine(t *testing.T) {
	d := newTestDetector(t, nil)

	f := constFrame(testFormat, 0, 100, 0)
	for i := range 100 {
		// Ten full cycles of a 100 Hz tone at 0.8 amplitude.
		testFormat.PutSample(f.Data, i, 0.8*math.Sin(2*math.Pi*float64(i)/10))
	}

	samples := d.Process(f)
	require.Len(t, samples, 1)
	assert.InDelta(t, 0.8/math.Sqrt2, samples[0].Value, 1e-3)
}

func TestDetector_PeakMethod(t *testing.T) {
	d := newTestDetector(t, func(c *Config) { c.Method = MethodPeak })

	f := constFrame(testFormat, 0, 100, 0.01)
	testFormat.PutSample(f.Data, 42, -0.75)

	samples := d.Process(f)
	require.Len(t, samples, 1)
	assert.InDelta(t, 0.75, samples[0].Value, quantum)
}

func TestDetector_MultiChannelAveragesAllSamples(t *testing.T) {
	stereo := audiocore.Format{SampleRate: 1000, Channels: 2, Sample: audiocore.FormatS16LE}
	d, err := NewDetector(Config{
		Method: MethodRMS, Unit: UnitLinear, Threshold: 0.1, Window: 100 * time.Millisecond, Smoothing: 1,
	}, stereo)
	require.NoError(t, err)

	f := constFrame(stereo, 0, 100, 0)
	for i := range 100 {
		stereo.PutSample(f.Data, i*2, 0.5)
	}

	samples := d.Process(f)
	require.Len(t, samples, 1)
	assert.InDelta(t, math.Sqrt(0.25/2), samples[0].Value, 1e-4)
}

func TestDetector_WindowSpansFrames(t *testing.T) {
	d := newTestDetector(t, nil)

	var got []Sample
	for seq := range uint64(7) {
		got = append(got, d.Process(constFrame(testFormat, seq, 30, 0.2))...)
	}

	// 210 sample frames make two full windows; the third is still open.
	require.Len(t, got, 2)
	assert.Equal(t, uint64(0), got[0].FirstSeq)
	assert.Equal(t, uint64(3), got[0].LastSeq)
	assert.Equal(t, uint64(3), got[1].FirstSeq)
	assert.Equal(t, uint64(6), got[1].LastSeq)
}

func TestDetector_Hysteresis(t *testing.T) {
	tests := []struct {
		name   string
		levels []float64
		want   []bool
	}{
		{
			name:   "inside_band_does_not_rise",
			levels: []float64{0.11, 0.119, 0.05},
			want:   []bool{false, false, false},
		},
		{
			name:   "rises_above_upper_bound_and_holds_in_band",
			levels: []float64{0.13, 0.09, 0.085, 0.11},
			want:   []bool{true, true, true, true},
		},
		{
			name:   "falls_only_below_lower_bound",
			levels: []float64{0.2, 0.07, 0.11, 0.125},
			want:   []bool{true, false, false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDetector(t, nil)
			for i, lvl := range tt.levels {
				samples := d.Process(constFrame(testFormat, uint64(i), 100, lvl))
				require.Len(t, samples, 1)
				assert.Equal(t, tt.want[i], samples[0].Above, "window %d level %g", i, lvl)
				assert.Equal(t, tt.want[i], d.Above())
			}
		})
	}
}

// A level oscillating inside the hysteresis band must never flip the decision.
func TestDetector_NoChatterInsideBand(t *testing.T) {
	d := newTestDetector(t, nil)

	d.Process(constFrame(testFormat, 0, 100, 0.3))
	require.True(t, d.Above())

	flips := 0
	for i := range 50 {
		lvl := 0.09
		if i%2 == 0 {
			lvl = 0.115
		}
		for _, s := range d.Process(constFrame(testFormat, uint64(i+1), 100, lvl)) {
			if s.Changed {
				flips++
			}
		}
	}
	assert.Zero(t, flips)
	assert.True(t, d.Above())
}

func TestDetector_DBFS(t *testing.T) {
	d := newTestDetector(t, func(c *Config) {
		c.Unit = UnitDBFS
		c.Threshold = -20
		c.Hysteresis = 3
	})

	s := d.Process(constFrame(testFormat, 0, 100, 0.5))
	require.Len(t, s, 1)
	assert.InDelta(t, -6.0206, s[0].Value, 1e-3)
	assert.True(t, s[0].Above)

	s = d.Process(constFrame(testFormat, 1, 100, 0))
	require.Len(t, s, 1)
	assert.InDelta(t, MinDBFS, s[0].Value, 0)
	assert.False(t, s[0].Above)
}

func TestDetector_Smoothing(t *testing.T) {
	d := newTestDetector(t, func(c *Config) { c.Smoothing = 0.5 })

	first := d.Process(constFrame(testFormat, 0, 100, 0.4))
	require.Len(t, first, 1)
	assert.InDelta(t, 0.4, first[0].Value, quantum)

	second := d.Process(constFrame(testFormat, 1, 100, 0))
	require.Len(t, second, 1)
	assert.InDelta(t, 0.2, second[0].Value, quantum)
	assert.InDelta(t, 0, second[0].Raw, 0)
	// 0.2 is still above the lower bound of 0.08.
	assert.True(t, second[0].Above)
}

func TestDetector_SingleWindowSpikeSuppressedBySmoothing(t *testing.T) {
	d := newTestDetector(t, func(c *Config) { c.Smoothing = 0.1 })

	d.Process(constFrame(testFormat, 0, 100, 0))
	s := d.Process(constFrame(testFormat, 1, 100, 0.9))
	require.Len(t, s, 1)
	assert.InDelta(t, 0.09, s[0].Value, 1e-3)
	assert.False(t, s[0].Above)
}

func TestDetector_Gaps(t *testing.T) {
	d := newTestDetector(t, nil)

	for _, seq := range []uint64{0, 1, 4, 5, 9} {
		d.Process(constFrame(testFormat, seq, 10, 0))
	}
	assert.Equal(t, uint64(5), d.Gaps())
}

func TestDetector_Deterministic(t *testing.T) {
	levels := []float64{0.01, 0.3, 0.05, 0.2, 0.0, 0.15, 0.5, 0.02}

	run := func() []Sample {
		d := newTestDetector(t, func(c *Config) { c.Smoothing = 0.6 })
		var all []Sample
		for i, lvl := range levels {
			all = append(all, d.Process(constFrame(testFormat, uint64(i), 70, lvl))...)
		}
		return all
	}

	assert.Equal(t, run(), run())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero_window", func(c *Config) { c.Window = 0 }},
		{"zero_smoothing", func(c *Config) { c.Smoothing = 0 }},
		{"smoothing_above_one", func(c *Config) { c.Smoothing = 1.5 }},
		{"negative_hysteresis", func(c *Config) { c.Hysteresis = -0.1 }},
		{"linear_threshold_above_full_scale", func(c *Config) { c.Threshold = 1.5 }},
		{"linear_threshold_zero", func(c *Config) { c.Threshold = 0 }},
		{"dbfs_positive", func(c *Config) { c.Unit = UnitDBFS; c.Threshold = 3 }},
		{"dbfs_below_floor", func(c *Config) { c.Unit = UnitDBFS; c.Threshold = -200 }},
		{"bad_method", func(c *Config) { c.Method = Method(9) }},
	}

	require.NoError(t, DefaultConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestNewDetector_WindowShorterThanOneSample(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window = 100 * time.Microsecond
	_, err := NewDetector(cfg, testFormat)
	require.Error(t, err)
}

func TestParseMethodAndUnit(t *testing.T) {
	m, err := ParseMethod("PEAK")
	require.NoError(t, err)
	assert.Equal(t, MethodPeak, m)
	assert.Equal(t, "peak", m.String())

	_, err = ParseMethod("loudness")
	require.Error(t, err)

	u, err := ParseUnit("dbfs")
	require.NoError(t, err)
	assert.Equal(t, UnitDBFS, u)
	assert.Equal(t, "dbfs", u.String())

	_, err = ParseUnit("sones")
	require.Error(t, err)
}

func TestDBFS(t *testing.T) {
	assert.InDelta(t, 0, DBFS(1), 1e-9)
	assert.InDelta(t, -20, DBFS(0.1), 1e-9)
	assert.InDelta(t, MinDBFS, DBFS(0), 0)
	assert.InDelta(t, MinDBFS, DBFS(1e-9), 0)
}
